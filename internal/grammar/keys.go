package grammar

import (
	"regexp"
	"strings"
)

// allowListBases is the fixed, case-insensitive allow-list of base keys
// whose values hold natural-language text (spec §4.1).
var allowListBases = map[string]bool{
	"description":             true,
	"title":                   true,
	"displaydescription":      true,
	"text":                    true,
	"displaytext":             true,
	"islockedaltmessage":      true,
	"cannotplacemessage":      true,
	"displayname":             true,
	"displaynameshort":        true, // union of observed source variants, per spec §9
	"showmessagetoplayer":     true,
	"showmessagetoallplayers": true,
}

// indexedActionKeyPattern matches the indexed allow-listed forms
// action_N_text and action_N_displayName for any non-negative integer N.
var indexedActionKeyPattern = regexp.MustCompile(`(?i)^action_[0-9]+_(text|displayname)$`)

// IsAllowListedBase reports whether key (compared case-insensitively) is
// itself one of the fixed allow-listed base keys, including the indexed
// action_N_* forms.
func IsAllowListedBase(key string) bool {
	lower := strings.ToLower(key)
	if allowListBases[lower] {
		return true
	}
	return indexedActionKeyPattern.MatchString(lower)
}

// classifiedKey is the result of classifying a KV line's key against the
// allow-list and the localized-key grammar.
type classifiedKey struct {
	base        string // original-case base key text
	baseLower   string
	isLocalized bool
	tag         string // original-case tag, only set when isLocalized
}

// classifyKey determines whether key is an allow-listed base key, an
// allow-listed localized key (<base>_<tag>), or neither. ok is false for
// keys that are not on the allow-list in either form.
func classifyKey(key string) (classifiedKey, bool) {
	if IsAllowListedBase(key) {
		return classifiedKey{base: key, baseLower: strings.ToLower(key)}, true
	}

	// Try every underscore split point from the longest possible base
	// (rightmost split) down to the shortest, so that bases which
	// themselves contain underscores (action_3_text) are preferred over
	// a spurious shorter match.
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] != '_' {
			continue
		}
		base := key[:i]
		tag := key[i+1:]
		if base == "" || tag == "" {
			continue
		}
		if !IsAllowListedBase(base) {
			continue
		}
		if !IsLanguageTag(tag) {
			continue
		}
		return classifiedKey{
			base:        base,
			baseLower:   strings.ToLower(base),
			isLocalized: true,
			tag:         tag,
		}, true
	}

	return classifiedKey{}, false
}
