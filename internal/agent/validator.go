package agent

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/kaptinlin/jsonrepair"

	"github.com/scribepatch/scribepatch/internal/patch"
)

// maxDegradedSummary caps how much raw model output is surfaced when the
// response cannot be parsed as a structured result.
const maxDegradedSummary = 500

// ParseOutcome turns a raw model completion into a structured generation
// result. It tries progressively more lenient strategies and never fails:
// a response that resists every strategy yields a degraded outcome whose
// summary carries a truncated copy of the raw text.
func ParseOutcome(raw string) Outcome {
	candidates := []string{raw}

	if stripped := stripFences(raw); stripped != raw {
		candidates = append(candidates, stripped)
	}
	if obj := extractObject(raw); obj != "" {
		candidates = append(candidates, obj)
	}

	for _, c := range candidates {
		if res, ok := decodeResult(c); ok {
			return Outcome{Result: res}
		}
	}

	// Last structured attempt: repair malformed JSON (unquoted keys,
	// trailing commas, single quotes) before giving up.
	for _, c := range candidates {
		repaired, err := jsonrepair.JSONRepair(c)
		if err != nil {
			continue
		}
		if res, ok := decodeResult(repaired); ok {
			return Outcome{Result: res}
		}
	}

	return Outcome{
		Result:   GenerationResult{Summary: truncate(strings.TrimSpace(raw), maxDegradedSummary)},
		Degraded: true,
	}
}

func decodeResult(s string) (GenerationResult, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &fields); err != nil {
		return GenerationResult{}, false
	}

	rawSummary, ok := fields["summary"]
	if !ok {
		return GenerationResult{}, false
	}
	var res GenerationResult
	if err := json.Unmarshal(rawSummary, &res.Summary); err != nil {
		return GenerationResult{}, false
	}

	rawFiles, ok := fields["files"]
	if !ok {
		return GenerationResult{}, false
	}
	if err := json.Unmarshal(rawFiles, &res.Files); err != nil {
		return GenerationResult{}, false
	}

	for i := range res.Files {
		res.Files[i].Filename = normalizeFilename(res.Files[i].Filename)
	}
	res.Files = dropEmpty(res.Files)
	return res, true
}

func dropEmpty(files []patch.FileChange) []patch.FileChange {
	out := files[:0]
	for _, f := range files {
		if f.Filename == "" {
			continue
		}
		out = append(out, f)
	}
	return out
}

func normalizeFilename(name string) string {
	name = strings.TrimSpace(name)
	name = strings.TrimPrefix(name, "./")
	return strings.TrimPrefix(name, "/")
}

// stripFences removes a surrounding markdown code fence, with or without a
// language tag, from the completion text.
func stripFences(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return s
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if i := strings.IndexByte(trimmed, '\n'); i >= 0 {
		// Drop the language tag line ("json", "jsonc", ...).
		first := strings.TrimSpace(trimmed[:i])
		if len(first) <= 10 && !strings.ContainsAny(first, "{}") {
			trimmed = trimmed[i+1:]
		}
	}
	trimmed = strings.TrimSpace(trimmed)
	trimmed = strings.TrimSuffix(trimmed, "```")
	return strings.TrimSpace(trimmed)
}

// extractObject scans for the first balanced top-level JSON object in the
// text, tolerating prose before and after it. Braces inside string literals
// are ignored.
func extractObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	// Never cut a multi-byte rune in half.
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
