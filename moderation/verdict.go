package moderation

const (
	// FallbackConfidence is reported whenever the upstream model could not
	// be consulted and the image was let through.
	FallbackConfidence = 50
	// TextHeuristicConfidence is reported when the model answered in prose
	// and the verdict was read from its wording.
	TextHeuristicConfidence = 75
	// TopicHeuristicConfidence is reported when the model answered with a
	// malformed object and only topic keywords could be used.
	TopicHeuristicConfidence = 60

	capacityFallbackReason = "AI validation service is temporarily unavailable. Image uploaded without AI validation."
	errorFallbackReason    = "AI validation temporarily unavailable. Please ensure your image shows a civic issue."
	topicHeuristicReason   = "AI analysis completed with basic text parsing"
)

// Verdict is the gate's answer about an image.
type Verdict struct {
	IsValid    bool   `json:"isValid"`
	Reason     string `json:"reason"`
	Confidence int    `json:"confidence"`
	Fallback   bool   `json:"fallback,omitempty"`
}

// fallbackVerdict lets the image through when the model is unreachable.
func fallbackVerdict(capacity bool) Verdict {
	reason := errorFallbackReason
	if capacity {
		reason = capacityFallbackReason
	}
	return Verdict{
		IsValid:    true,
		Reason:     reason,
		Confidence: FallbackConfidence,
		Fallback:   true,
	}
}

func clampConfidence(c float64) int {
	switch {
	case c < 0:
		return 0
	case c > 100:
		return 100
	default:
		return int(c + 0.5)
	}
}
