package llm

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"unicode/utf8"
)

// ParseStructured decodes a model's JSON reply into T. Markdown code fences
// around the object are tolerated. On any decode failure the fallback is
// returned with ok=false and the failure is logged against stage.
func ParseStructured[T any](logger *slog.Logger, stage string, raw string, fallback T) (T, bool) {
	if logger == nil {
		logger = slog.Default()
	}
	cleaned := StripCodeFence(raw)
	if cleaned == "" {
		logger.Warn("structured output empty", "stage", stage)
		return fallback, false
	}
	var out T
	dec := json.NewDecoder(strings.NewReader(cleaned))
	if err := dec.Decode(&out); err != nil {
		logger.Warn("structured output invalid", "stage", stage, "err", err, "raw_prefix", prefix(raw, 200))
		return fallback, false
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		logger.Warn("structured output has trailing data", "stage", stage, "raw_prefix", prefix(raw, 200))
		return fallback, false
	}
	return out, true
}

// StripCodeFence removes a surrounding ```json ... ``` block, if present.
func StripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		lang := strings.TrimSpace(s[:nl])
		if lang == "" || !strings.ContainsAny(lang, "{[") {
			s = s[nl+1:]
		}
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// prefix returns at most n runes of s.
func prefix(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
