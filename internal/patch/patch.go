// Package patch converts proposed file contents into reviewable unified
// diffs using the sergi/go-diff engine.
package patch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
	"golang.org/x/sync/errgroup"

	"github.com/scribepatch/scribepatch/internal/repo"
)

// FileChange is a single proposed file state produced by the model.
type FileChange struct {
	Filename   string `json:"filename"`
	NewContent string `json:"newContent"`
}

// FilePatch is the per-file output unit. Patch holds a unified diff, or an
// embedded error description plus the raw proposed content when diffing
// that file failed.
type FilePatch struct {
	Filename string `json:"filename"`
	Patch    string `json:"patch"`
}

// Reader supplies pre-change file contents, typically a repo snapshot.
type Reader interface {
	ReadFile(path string) (string, error)
}

// Builder computes unified diffs with a fixed amount of context.
type Builder struct {
	dmp          *diffmatchpatch.DiffMatchPatch
	contextLines int
}

// NewBuilder constructs a Builder tuned for code diffs.
func NewBuilder() *Builder {
	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0
	return &Builder{dmp: dmp, contextLines: 3}
}

// Build produces one FilePatch per change, in input order. Files are
// diffed independently and concurrently; a failure on one file is embedded
// in its patch text and never aborts the batch.
func (b *Builder) Build(ctx context.Context, reader Reader, changes []FileChange) []FilePatch {
	out := make([]FilePatch, len(changes))

	g, ctx := errgroup.WithContext(ctx)
	for i, change := range changes {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				out[i] = failedPatch(change, err)
				return nil
			}
			out[i] = b.buildOne(reader, change)
			return nil
		})
	}
	_ = g.Wait()

	return out
}

func (b *Builder) buildOne(reader Reader, change FileChange) (fp FilePatch) {
	fp.Filename = change.Filename

	defer func() {
		if r := recover(); r != nil {
			fp = failedPatch(change, fmt.Errorf("diff engine: %v", r))
		}
	}()

	original, err := reader.ReadFile(change.Filename)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			// Brand-new file: diff against nothing.
			original = ""
		} else {
			return failedPatch(change, err)
		}
	}

	fp.Patch = b.Unified(change.Filename, original, change.NewContent)
	return fp
}

func failedPatch(change FileChange, err error) FilePatch {
	var b strings.Builder
	fmt.Fprintf(&b, "Error generating patch for %s: %v\n", change.Filename, err)
	b.WriteString("Proposed content:\n")
	b.WriteString(change.NewContent)
	return FilePatch{Filename: change.Filename, Patch: b.String()}
}

// Unified renders a unified diff between before and after. Identical
// contents yield an empty string.
func (b *Builder) Unified(filename, before, after string) string {
	if before == after {
		return ""
	}

	a, bb, lineArray := b.dmp.DiffLinesToChars(before, after)
	diffs := b.dmp.DiffMain(a, bb, false)
	diffs = b.dmp.DiffCleanupSemantic(diffs)
	diffs = b.dmp.DiffCharsToLines(diffs, lineArray)

	ops := diffsToOps(diffs)
	hunks := groupHunks(ops, b.contextLines)
	if len(hunks) == 0 {
		return ""
	}

	var out strings.Builder
	fmt.Fprintf(&out, "--- Original %s\n", filename)
	fmt.Fprintf(&out, "+++ Modified %s\n", filename)
	for _, h := range hunks {
		fmt.Fprintf(&out, "@@ -%d,%d +%d,%d @@\n", h.oldStart, h.oldCount, h.newStart, h.newCount)
		for _, l := range h.lines {
			out.WriteString(l.marker())
			out.WriteString(l.content)
			out.WriteString("\n")
		}
	}
	return out.String()
}

type opType int

const (
	opContext opType = iota
	opRemove
	opAdd
)

type op struct {
	typ     opType
	oldLine int // 1-based, 0 when absent
	newLine int
	content string
}

func (o op) marker() string {
	switch o.typ {
	case opRemove:
		return "-"
	case opAdd:
		return "+"
	default:
		return " "
	}
}

type hunk struct {
	oldStart, oldCount int
	newStart, newCount int
	lines              []op
}

// diffsToOps flattens line-level diffs into per-line operations with
// running line numbers on both sides.
func diffsToOps(diffs []diffmatchpatch.Diff) []op {
	var ops []op
	oldLine, newLine := 0, 0

	for _, d := range diffs {
		for _, line := range splitLines(d.Text) {
			switch d.Type {
			case diffmatchpatch.DiffEqual:
				oldLine++
				newLine++
				ops = append(ops, op{typ: opContext, oldLine: oldLine, newLine: newLine, content: line})
			case diffmatchpatch.DiffDelete:
				oldLine++
				ops = append(ops, op{typ: opRemove, oldLine: oldLine, content: line})
			case diffmatchpatch.DiffInsert:
				newLine++
				ops = append(ops, op{typ: opAdd, newLine: newLine, content: line})
			}
		}
	}
	return ops
}

func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// groupHunks clusters changed lines into hunks, merging changes whose
// surrounding context would overlap.
func groupHunks(ops []op, contextLines int) []hunk {
	type span struct{ start, end int }
	var spans []span

	for i, o := range ops {
		if o.typ == opContext {
			continue
		}
		if len(spans) > 0 && i-spans[len(spans)-1].end <= 2*contextLines {
			spans[len(spans)-1].end = i
			continue
		}
		spans = append(spans, span{start: i, end: i})
	}
	if len(spans) == 0 {
		return nil
	}

	hunks := make([]hunk, 0, len(spans))
	for _, sp := range spans {
		start := sp.start - contextLines
		if start < 0 {
			start = 0
		}
		end := sp.end + contextLines
		if end > len(ops)-1 {
			end = len(ops) - 1
		}

		h := hunk{lines: ops[start : end+1]}
		for _, l := range h.lines {
			switch l.typ {
			case opContext:
				h.oldCount++
				h.newCount++
			case opRemove:
				h.oldCount++
			case opAdd:
				h.newCount++
			}
			if h.oldStart == 0 && l.oldLine > 0 {
				h.oldStart = l.oldLine
			}
			if h.newStart == 0 && l.newLine > 0 {
				h.newStart = l.newLine
			}
		}
		hunks = append(hunks, h)
	}
	return hunks
}
