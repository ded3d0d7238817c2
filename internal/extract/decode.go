package extract

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/UncleMcDonald/SmartScrape/internal/model"
)

// ParseErrorMessage is the error text of the record returned when a reply
// holds no usable JSON array.
const ParseErrorMessage = "Unable to parse JSON response"

var errNoArray = errors.New("no JSON array found in reply")

// FirstArray returns the first bracket-balanced substring of reply that is a
// well-formed JSON array. Commentary before and after the array is ignored.
func FirstArray(reply string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(reply)
	if strings.HasPrefix(trimmed, "[") && json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed), nil
	}

	for start := strings.IndexByte(reply, '['); start >= 0; {
		if end := matchBracket(reply, start); end > start {
			candidate := reply[start : end+1]
			if json.Valid([]byte(candidate)) {
				return json.RawMessage(candidate), nil
			}
		}
		next := strings.IndexByte(reply[start+1:], '[')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return nil, errNoArray
}

// matchBracket returns the index of the ']' closing the '[' at start, or -1.
// Brackets inside JSON string literals are skipped.
func matchBracket(s string, start int) int {
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
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// ParseRecords decodes a reply into records. It never fails: a reply with no
// usable array yields a single parse-error record. Array elements that are
// not objects are skipped.
func ParseRecords(reply string) []model.Record {
	raw, err := FirstArray(reply)
	if err != nil {
		return []model.Record{model.ErrorRecord(ParseErrorMessage, "Invalid format from LLM")}
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return []model.Record{model.ErrorRecord(ParseErrorMessage, err.Error())}
	}

	records := make([]model.Record, 0, len(items))
	for _, item := range items {
		var rec map[string]any
		if err := json.Unmarshal(item, &rec); err != nil || rec == nil {
			continue
		}
		records = append(records, model.Record(rec))
	}
	if len(items) > 0 && len(records) == 0 {
		return []model.Record{model.ErrorRecord(ParseErrorMessage, "Reply array contains no objects")}
	}
	return records
}

// ParseStrings decodes a reply into a list of non-empty strings. Non-string
// elements are skipped.
func ParseStrings(reply string) ([]string, error) {
	raw, err := FirstArray(reply)
	if err != nil {
		return nil, err
	}
	var items []any
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out, nil
}
