package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/openbench/tradearena/internal/metrics"
)

// ParseError reports that no parse stage produced valid JSON
type ParseError struct {
	Snippet string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("no parseable JSON in completion (%q): %v", e.Snippet, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

var (
	fencedBlockRe   = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
)

// ParseJSON extracts and unmarshals the first JSON object in an LLM
// completion. Models wrap JSON in prose or markdown fences more often
// than they return it clean, so parsing runs as a ladder: the raw
// content, then a fenced code block, then the first balanced object,
// then that object with trailing commas stripped.
func ParseJSON(content string, target interface{}) error {
	candidates := []string{strings.TrimSpace(content)}

	if m := fencedBlockRe.FindStringSubmatch(content); m != nil {
		candidates = append(candidates, strings.TrimSpace(m[1]))
	}
	if obj, ok := firstBalancedObject(content); ok {
		candidates = append(candidates, obj, trailingCommaRe.ReplaceAllString(obj, "$1"))
	}

	var lastErr error
	for _, cand := range candidates {
		if cand == "" {
			continue
		}
		err := json.Unmarshal([]byte(cand), target)
		if err == nil {
			return nil
		}
		lastErr = err
	}

	metrics.LLMParseFailures.Inc()
	return &ParseError{Snippet: snippet(content), Err: lastErr}
}

// firstBalancedObject scans for the first top-level {...} span,
// respecting string literals and escapes.
func firstBalancedObject(s string) (string, bool) {
	depth := 0
	start := -1
	inString := false
	escaped := false

	for i, r := range s {
		if escaped {
			escaped = false
			continue
		}
		switch r {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				if depth == 0 {
					start = i
				}
				depth++
			}
		case '}':
			if !inString && depth > 0 {
				depth--
				if depth == 0 {
					return s[start : i+1], true
				}
			}
		}
	}
	return "", false
}

func snippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 120 {
		return s[:120] + "..."
	}
	return s
}
