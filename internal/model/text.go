package model

import "strings"

// normalizeClaimText case-folds and collapses whitespace so claim dedup
// within a task (spec §4.1: insert_claim) treats near-identical phrasings
// as the same claim.
func normalizeClaimText(text string) string {
	fields := strings.Fields(strings.ToLower(text))
	return strings.Join(fields, " ")
}

// TruncateFragment enforces the 500-character fragment cap (spec §3, §8).
func TruncateFragment(text string) string {
	runes := []rune(text)
	if len(runes) <= FragmentMaxLen {
		return text
	}
	return string(runes[:FragmentMaxLen])
}
