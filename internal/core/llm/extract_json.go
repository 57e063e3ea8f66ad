package llm

import (
	"encoding/json"
	"strings"
)

// extractJSON tries to extract JSON from a response that might have extra
// text around it, such as a prose preamble or a markdown code fence. When
// both a valid object and a valid array are present the earlier one wins.
// Returns the input unchanged when no valid JSON span is found.
func extractJSON(text string) string {
	objStart, obj := firstValidSpan(text, '{', '}')
	arrStart, arr := firstValidSpan(text, '[', ']')

	switch {
	case obj == "" && arr == "":
		return text
	case obj == "":
		return arr
	case arr == "":
		return obj
	case arrStart < objStart:
		return arr
	default:
		return obj
	}
}

// firstValidSpan finds the widest valid JSON span between the first open
// delimiter and a closing delimiter, shrinking from the right.
func firstValidSpan(text string, open, closing byte) (int, string) {
	start := strings.IndexByte(text, open)
	if start == -1 {
		return -1, ""
	}

	end := strings.LastIndexByte(text, closing)
	for end > start {
		if candidate := text[start : end+1]; json.Valid([]byte(candidate)) {
			return start, candidate
		}

		end = strings.LastIndexByte(text[:end], closing)
	}

	return -1, ""
}
