package fetch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOwnerRepoFromPathParsesOwnerAndRepo(t *testing.T) {
	owner, repo, ok := ownerRepoFromPath("/golang/go")
	assert.True(t, ok)
	assert.Equal(t, "golang", owner)
	assert.Equal(t, "go", repo)
}

func TestOwnerRepoFromPathHandlesTrailingSegmentsAndSlashes(t *testing.T) {
	owner, repo, ok := ownerRepoFromPath("/golang/go/issues/123")
	assert.True(t, ok)
	assert.Equal(t, "golang", owner)
	assert.Equal(t, "go", repo)

	owner, repo, ok = ownerRepoFromPath("golang/go/")
	assert.True(t, ok)
	assert.Equal(t, "golang", owner)
	assert.Equal(t, "go", repo)
}

func TestOwnerRepoFromPathRejectsShallowPath(t *testing.T) {
	_, _, ok := ownerRepoFromPath("/golang")
	assert.False(t, ok)

	_, _, ok = ownerRepoFromPath("/")
	assert.False(t, ok)
}
