package moderation

import (
	"encoding/json"
	"strconv"
	"strings"
	"unicode/utf8"
)

const maxReasonLength = 200

// extractor turns a model answer into a verdict, or declines.
type extractor func(text string) (Verdict, bool)

// extractors are tried in order; the last one always answers.
var extractors = []extractor{
	embeddedJSONVerdict,
	wordingVerdict,
	topicVerdict,
}

// ParseVerdict reads the model's answer, preferring an embedded JSON object
// and degrading to keyword heuristics with lower confidence.
//
// An object with isValid but no confidence is reported with confidence 0.
// isValid may be a boolean or a string such as "true"; any other value sends
// the answer to the keyword heuristics.
func ParseVerdict(text string) Verdict {
	for _, extract := range extractors {
		if v, ok := extract(text); ok {
			return v
		}
	}
	return topicVerdictFor(text)
}

// embeddedObject returns the span from the first '{' to the last '}'.
func embeddedObject(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

func embeddedJSONVerdict(text string) (Verdict, bool) {
	object, ok := embeddedObject(text)
	if !ok {
		return Verdict{}, false
	}

	var raw struct {
		IsValid    json.RawMessage `json:"isValid"`
		Reason     string          `json:"reason"`
		Confidence *float64        `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(object), &raw); err != nil {
		return Verdict{}, false
	}
	isValid, ok := decodeFlag(raw.IsValid)
	if !ok {
		return Verdict{}, false
	}

	v := Verdict{
		IsValid: isValid,
		Reason:  raw.Reason,
	}
	if raw.Confidence != nil {
		v.Confidence = clampConfidence(*raw.Confidence)
	}
	return v, true
}

// decodeFlag accepts true, false and their quoted spellings.
func decodeFlag(raw json.RawMessage) (bool, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return false, false
	}
	var flag bool
	if err := json.Unmarshal(raw, &flag); err == nil {
		return flag, true
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return false, false
	}
	flag, err := strconv.ParseBool(strings.TrimSpace(text))
	return flag, err == nil
}

// wordingVerdict only applies to prose answers; an answer that contains an
// object which failed to decode is left to topicVerdict.
func wordingVerdict(text string) (Verdict, bool) {
	if _, ok := embeddedObject(text); ok {
		return Verdict{}, false
	}

	lower := strings.ToLower(text)
	isValid := strings.Contains(lower, "valid") &&
		!strings.Contains(lower, "invalid") &&
		!strings.Contains(lower, "not valid")

	return Verdict{
		IsValid:    isValid,
		Reason:     truncate(text, maxReasonLength),
		Confidence: TextHeuristicConfidence,
	}, true
}

func topicVerdict(text string) (Verdict, bool) {
	return topicVerdictFor(text), true
}

func topicVerdictFor(text string) Verdict {
	lower := strings.ToLower(text)
	isValid := strings.Contains(lower, "civic") ||
		strings.Contains(lower, "infrastructure") ||
		strings.Contains(lower, "public")

	return Verdict{
		IsValid:    isValid,
		Reason:     topicHeuristicReason,
		Confidence: TopicHeuristicConfidence,
	}
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
