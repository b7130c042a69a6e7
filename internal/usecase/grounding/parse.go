package grounding

import (
	"encoding/json"
	"strings"
)

// parseStructured extracts the JSON answer from a generation reply. Models
// sometimes wrap the object in markdown fences or narration, so the parse
// targets the outermost brace pair.
func parseStructured(raw string) (Answer, bool) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return Answer{}, false
	}

	var answer Answer
	if err := json.Unmarshal([]byte(s[start:end+1]), &answer); err != nil {
		return Answer{}, false
	}
	if answer.Intro == "" && len(answer.Recommendations) == 0 && answer.ClarifyQuestion == "" {
		return Answer{}, false
	}
	return answer, true
}
