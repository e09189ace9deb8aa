package grammar

import (
	"sort"
	"strings"
)

// segment is one physical line of the file as the rewriter walks it.
type segment struct {
	raw string // always the original text; used verbatim unless dirty

	isKV    bool
	kv      parsedKV
	section string // section the line belongs to, lower-cased
	class   classifiedKey
	onList  bool // classifyKey succeeded (base or localized allow-listed)

	dirty       bool   // kv.value has been overwritten (existing-sibling rewrite)
	newValue    string // replacement value when dirty
}

func (s segment) render() string {
	if s.isKV && s.dirty {
		p := s.kv
		p.value = s.newValue
		return p.render()
	}
	return s.raw
}

// groupKey identifies one (section, base key) family of KV lines.
type groupKey struct {
	section   string
	baseLower string
}

type group struct {
	baseIdx       int   // index of the base-key segment, or -1
	localizedIdx  []int // indices of localized sibling segments, in file order
	anchorIdx     int   // where to insert new lines after (last member's index)
	anchorIndent  string
	anchorSep     byte
	anchorPre     string
	anchorPost    string
}

// sanitizeTranslation collapses any embedded line breaks in a translated
// string to the literal two-character escape `\n`, so a translation can
// never turn one physical config line into several (spec §4.1 step 7).
func sanitizeTranslation(s string) string {
	replacer := strings.NewReplacer("\r\n", `\n`, "\r", `\n`, "\n", `\n`)
	return replacer.Replace(s)
}

// parseSegments walks lines (without terminators) and produces the
// ordered segment list plus diagnostics, honoring """-block state.
func parseSegments(lines []string) ([]segment, *Result) {
	result := &Result{}
	segments := make([]segment, 0, len(lines))

	currentSection := ""
	inBlock := false

	for _, line := range lines {
		if inBlock {
			segments = append(segments, segment{raw: line})
			if countTripleQuotes(line)%2 == 1 {
				inBlock = false
			}
			continue
		}

		switch {
		case isBlankLine(line), isCommentLine(line):
			segments = append(segments, segment{raw: line})
			continue
		case isSectionHeader(line):
			currentSection = strings.ToLower(strings.TrimSpace(line))
			segments = append(segments, segment{raw: line})
			continue
		}

		kv, ok := parseKVLine(line)
		if !ok {
			// Malformed/unrecognized line shape: preserve verbatim.
			segments = append(segments, segment{raw: line})
			continue
		}

		if countTripleQuotes(kv.value)%2 == 1 {
			// This line opens a multi-line literal block; it and every
			// line until the block closes are preserved byte-for-byte.
			segments = append(segments, segment{raw: line})
			inBlock = true
			continue
		}

		class, onList := classifyKey(kv.key)
		segments = append(segments, segment{
			raw:     line,
			isKV:    true,
			kv:      kv,
			section: currentSection,
			class:   class,
			onList:  onList,
		})
	}

	if inBlock {
		result.warn(len(lines), "unclosed-triple-quote-block", `file ends while a """ literal block is still open; preserved verbatim`)
	}

	return segments, result
}

// buildGroups collects allow-listed KV segments into per-(section,base)
// groups, in first-appearance order.
func buildGroups(segments []segment) (map[groupKey]*group, []groupKey) {
	groups := make(map[groupKey]*group)
	var order []groupKey

	for i, seg := range segments {
		if !seg.isKV || !seg.onList {
			continue
		}
		key := groupKey{section: seg.section, baseLower: seg.class.baseLower}
		g, exists := groups[key]
		if !exists {
			g = &group{baseIdx: -1}
			groups[key] = g
			order = append(order, key)
		}
		if seg.class.isLocalized {
			g.localizedIdx = append(g.localizedIdx, i)
		} else {
			g.baseIdx = i
		}
		g.anchorIdx = i
		g.anchorIndent = seg.kv.indent
		g.anchorSep = seg.kv.sep
		g.anchorPre = seg.kv.pre
		g.anchorPost = seg.kv.post
	}

	return groups, order
}

// sourceText resolves the source text for a group: the base line's own
// value if non-empty, else the first non-empty localized sibling's value
// in file order (spec §4.1 step 4).
func sourceText(segments []segment, g *group) (string, bool) {
	if g.baseIdx >= 0 {
		if v := segments[g.baseIdx].kv.value; v != "" {
			return v, true
		}
	}
	for _, idx := range g.localizedIdx {
		if v := segments[idx].kv.value; v != "" {
			return v, true
		}
	}
	return "", false
}

// insertion is a batch of new rendered lines to splice in after a given
// segment index.
type insertion struct {
	afterIdx int
	lines    []string
}

// applyTranslations mutates segments in place for overwritten siblings and
// returns the insertions to splice in for newly-written variants.
func applyTranslations(segments []segment, groups map[groupKey]*group, order []groupKey, translations map[string]string, spec LanguageSpec) []insertion {
	targetPrimary := ""
	if len(spec.Variants) > 0 {
		targetPrimary = PrimarySubtag(spec.Variants[0])
	}

	var insertions []insertion

	for _, key := range order {
		g := groups[key]
		src, ok := sourceText(segments, g)
		if !ok {
			continue
		}
		translated, ok := translations[src]
		if !ok {
			continue
		}
		sanitized := sanitizeTranslation(translated)

		// Look for an existing localized sibling whose own primary
		// subtag already matches the target language.
		existingIdx := -1
		for _, idx := range g.localizedIdx {
			if PrimarySubtag(segments[idx].class.tag) == targetPrimary {
				existingIdx = idx
				break
			}
		}

		if existingIdx >= 0 {
			if segments[existingIdx].kv.value != sanitized {
				segments[existingIdx].dirty = true
				segments[existingIdx].newValue = sanitized
			}
			continue
		}

		var newLines []string
		for _, variant := range spec.Variants {
			p := parsedKV{
				indent: g.anchorIndent,
				key:    baseKeyText(segments, g) + "_" + variant,
				pre:    g.anchorPre,
				sep:    g.anchorSep,
				post:   g.anchorPost,
				value:  sanitized,
			}
			newLines = append(newLines, p.render())
		}
		insertions = append(insertions, insertion{afterIdx: g.anchorIdx, lines: newLines})
	}

	sort.Slice(insertions, func(i, j int) bool { return insertions[i].afterIdx < insertions[j].afterIdx })
	return insertions
}

// baseKeyText returns the original-case text of the base key for a group,
// preferring the base line itself, falling back to a localized sibling's
// base portion (both carry the same text by construction).
func baseKeyText(segments []segment, g *group) string {
	if g.baseIdx >= 0 {
		return segments[g.baseIdx].kv.key
	}
	if len(g.localizedIdx) > 0 {
		return segments[g.localizedIdx[0]].class.base
	}
	return ""
}

// collectBatch gathers the unique, ordered source-text strings to send to
// the translator (spec §4.1 step 5).
func collectBatch(segments []segment, groups map[groupKey]*group, order []groupKey) []string {
	seen := make(map[string]bool)
	var batch []string
	for _, key := range order {
		g := groups[key]
		src, ok := sourceText(segments, g)
		if !ok || seen[src] {
			continue
		}
		seen[src] = true
		batch = append(batch, src)
	}
	return batch
}

// render reconstructs the full line list (without terminators) from the
// segments and pending insertions.
func render(segments []segment, insertions []insertion) []string {
	insByIdx := make(map[int][]string, len(insertions))
	for _, ins := range insertions {
		insByIdx[ins.afterIdx] = append(insByIdx[ins.afterIdx], ins.lines...)
	}

	out := make([]string, 0, len(segments))
	for i, seg := range segments {
		out = append(out, seg.render())
		if extra, ok := insByIdx[i]; ok {
			out = append(out, extra...)
		}
	}
	return out
}
