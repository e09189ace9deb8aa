// Package grammar implements the structure-preserving rewrite of the
// semi-INI mod configuration grammar: it locates natural-language values
// behind an allow-listed set of keys, resolves them against existing
// localized siblings, sends the unique set to a Translator, and writes the
// localized variants back while leaving every other byte of the file -
// comments, ordering, indentation, multi-line literal blocks - untouched.
package grammar

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// Translator is the structural contract the rewriter needs from a
// translation backend. internal/translator.Client satisfies it; defining
// it here (rather than importing internal/translator) keeps the grammar
// package free of a dependency on the network/retry/degraded-mode
// machinery so it stays unit-testable with a fake in this package's own
// tests.
type Translator interface {
	Translate(ctx context.Context, batch []string, styleHint, targetLanguage string) ([]string, error)
}

// RewriteReport summarizes one file's rewrite for the caller (worker) to
// log and fold into its own task-progress reporting.
type RewriteReport struct {
	Path        string
	Changed     bool
	LinesTotal  int
	GroupsFound int
	BatchSize   int
	Diagnostics *Result
}

// lineEnding describes the terminator style detected in a file so the
// rewritten output reproduces it exactly.
type lineEnding struct {
	terminator    string // "\r\n" or "\n"
	finalNewline  bool   // whether the source ended with a terminator
}

// detectLineEnding picks the *dominant* terminator (spec §4.1 step 1),
// not merely whether CRLF appears at all: a predominantly-LF file
// carrying one stray CRLF must still be split on "\n", or that single
// CRLF line would swallow every subsequent LF-terminated line into one
// segment.
func detectLineEnding(content []byte) lineEnding {
	crlf := bytes.Count(content, []byte("\r\n"))
	lf := bytes.Count(content, []byte("\n")) - crlf

	le := lineEnding{terminator: "\n", finalNewline: len(content) > 0 && content[len(content)-1] == '\n'}
	if crlf > lf {
		le.terminator = "\r\n"
	}
	return le
}

func splitLines(content []byte, le lineEnding) []string {
	text := string(content)
	text = strings.TrimSuffix(text, le.terminator)
	if text == "" {
		return nil
	}
	return strings.Split(text, le.terminator)
}

func joinLines(lines []string, le lineEnding) []byte {
	out := strings.Join(lines, le.terminator)
	if le.finalNewline {
		out += le.terminator
	}
	return []byte(out)
}

// decodeSource converts raw file bytes to UTF-8 text, auto-detecting a
// BOM-less Latin-1 (ISO-8859-1) encoding when the bytes are not valid
// UTF-8. Mod configs in the wild are near-universally UTF-8 or plain
// ASCII; Latin-1 fallback covers the occasional legacy Western-European
// file without pulling in a full charset-detection library for a single
// edge case (see DESIGN.md).
func decodeSource(raw []byte) []byte {
	raw = bytes.TrimPrefix(raw, []byte{0xEF, 0xBB, 0xBF})
	if utf8.Valid(raw) {
		return raw
	}
	decoded := make([]rune, 0, len(raw))
	for _, b := range raw {
		decoded = append(decoded, rune(b))
	}
	return []byte(string(decoded))
}

// RewriteFile reads the file at path, translates every allow-listed
// natural-language value into spec's language (already resolved via
// ResolveLanguage), and atomically overwrites path with the result. It is
// idempotent: re-running it against its own output is a no-op.
func RewriteFile(ctx context.Context, path string, spec LanguageSpec, styleHint string, tr Translator) (RewriteReport, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return RewriteReport{}, fmt.Errorf("grammar: read %s: %w", path, err)
	}

	report, out, changed, err := Rewrite(ctx, raw, spec, styleHint, tr)
	if err != nil {
		return RewriteReport{}, fmt.Errorf("grammar: rewrite %s: %w", path, err)
	}
	report.Path = path
	report.Changed = changed

	if !changed {
		return report, nil
	}

	if err := writeAtomic(path, out); err != nil {
		return RewriteReport{}, fmt.Errorf("grammar: write %s: %w", path, err)
	}
	return report, nil
}

// Rewrite performs the same work as RewriteFile directly over bytes, for
// callers (and tests) that don't want filesystem I/O.
func Rewrite(ctx context.Context, raw []byte, spec LanguageSpec, styleHint string, tr Translator) (RewriteReport, []byte, bool, error) {
	decoded := decodeSource(raw)
	le := detectLineEnding(decoded)
	lines := splitLines(decoded, le)

	segments, result := parseSegments(lines)
	groups, order := buildGroups(segments)
	batch := collectBatch(segments, groups, order)

	report := RewriteReport{
		LinesTotal:  len(lines),
		GroupsFound: len(order),
		BatchSize:   len(batch),
		Diagnostics: result,
	}

	if len(batch) == 0 {
		return report, raw, false, nil
	}

	translated, err := tr.Translate(ctx, batch, styleHint, spec.PromptName)
	if err != nil {
		return report, nil, false, fmt.Errorf("translate batch of %d: %w", len(batch), err)
	}
	if len(translated) != len(batch) {
		return report, nil, false, fmt.Errorf("translator returned %d lines for a batch of %d", len(translated), len(batch))
	}

	translations := make(map[string]string, len(batch))
	for i, src := range batch {
		translations[src] = translated[i]
	}

	insertions := applyTranslations(segments, groups, order, translations, spec)
	if len(insertions) == 0 && !anyDirty(segments) {
		return report, raw, false, nil
	}

	outLines := render(segments, insertions)
	out := joinLines(outLines, le)
	return report, out, true, nil
}

func anyDirty(segments []segment) bool {
	for _, seg := range segments {
		if seg.dirty {
			return true
		}
	}
	return false
}

// writeAtomic writes content to a temp file in the same directory as path
// and renames it into place, so a crash mid-write never leaves a
// truncated or partially-written config behind.
func writeAtomic(path string, content []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".modxlate-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	info, statErr := os.Stat(path)
	if statErr == nil {
		_ = os.Chmod(tmpName, info.Mode())
	}

	return os.Rename(tmpName, path)
}
