package app

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// decodeModelJSON unmarshals a model-produced JSON document into v. Models
// wrap payloads in markdown fences or emit slightly broken JSON often enough
// that a repair pass is part of the normal path, not error handling.
func decodeModelJSON(raw string, v any) error {
	cleaned := stripCodeFences(raw)
	if cleaned == "" {
		return fmt.Errorf("empty response")
	}
	if err := json.Unmarshal([]byte(cleaned), v); err == nil {
		return nil
	}
	repaired, repairErr := jsonrepair.JSONRepair(cleaned)
	if repairErr != nil {
		return fmt.Errorf("unparseable JSON response: %w", repairErr)
	}
	if err := json.Unmarshal([]byte(repaired), v); err != nil {
		return fmt.Errorf("decode repaired JSON: %w", err)
	}
	return nil
}

// stripCodeFences removes a surrounding ```json ... ``` block when present
// and trims anything before the first brace or bracket.
func stripCodeFences(raw string) string {
	s := strings.TrimSpace(raw)
	if start := strings.Index(s, "```"); start >= 0 {
		s = s[start+3:]
		if nl := strings.IndexByte(s, '\n'); nl >= 0 && len(strings.TrimSpace(s[:nl])) <= len("jsonc") {
			s = s[nl+1:]
		}
		if end := strings.LastIndex(s, "```"); end >= 0 {
			s = s[:end]
		}
	}
	s = strings.TrimSpace(s)
	if idx := strings.IndexAny(s, "{["); idx > 0 {
		s = s[idx:]
	}
	return s
}
