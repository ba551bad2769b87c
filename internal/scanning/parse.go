package scanning

import (
	"encoding/json"
	"fmt"
	"strings"
)

// extractDocument pulls the JSON object out of a model response. Vision
// models wrap answers in markdown fences or chatter despite being told not
// to, so we locate the outermost object and verify it decodes before
// handing it on as a RawDocument.
func extractDocument(text string) (RawDocument, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	if start == -1 {
		return nil, invalidFormatErr(fmt.Errorf("no JSON object in response"))
	}
	end := strings.LastIndex(text, "}")
	if end == -1 || end < start {
		return nil, invalidFormatErr(fmt.Errorf("unterminated JSON object in response"))
	}
	text = text[start : end+1]

	var probe map[string]any
	if err := json.Unmarshal([]byte(text), &probe); err != nil {
		return nil, invalidFormatErr(fmt.Errorf("unmarshaling response: %w", err))
	}
	return RawDocument(text), nil
}
