package call

import "github.com/gosuda/callsim/internal/domain"

const fallbackConfidence = 0.5

// FallbackUtterance is the in-character line used when reply generation fails.
func FallbackUtterance(state domain.EmotionalState) string {
	switch state {
	case domain.EmotionCalm:
		return "Yes, I understand. What do you need to know?"
	case domain.EmotionAnxious:
		return "I... I'm trying to stay calm. What should I do?"
	case domain.EmotionPanicked:
		return "Please help! I don't know what to do! Please hurry!"
	default:
		return "I... I need help."
	}
}
