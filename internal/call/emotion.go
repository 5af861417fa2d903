package call

import (
	"strings"

	"github.com/gosuda/callsim/internal/domain"
)

//nolint:gochecknoglobals // fixed vocabularies
var (
	panicIndicators = []string{"help", "hurry", "dying", "bleeding", "can't breathe", "please"}
	calmIndicators  = []string{"okay", "fine", "stable", "better", "calm"}
)

// panicThreshold is the number of distinct panic indicators above which a
// caller is considered panicked.
const panicThreshold = 2

// PanicScore counts the distinct panic indicators present in text.
func PanicScore(text string) int {
	return countIndicators(text, panicIndicators)
}

// CalmScore counts the distinct calm indicators present in text.
func CalmScore(text string) int {
	return countIndicators(text, calmIndicators)
}

func countIndicators(text string, indicators []string) int {
	lower := strings.ToLower(text)
	n := 0
	for _, word := range indicators {
		if strings.Contains(lower, word) {
			n++
		}
	}
	return n
}

// NextEmotionalState derives the caller's state after saying text. The result
// depends only on its inputs.
func NextEmotionalState(text string, current domain.EmotionalState) domain.EmotionalState {
	panicHits := PanicScore(text)
	switch {
	case panicHits > panicThreshold:
		return domain.EmotionPanicked
	case panicHits > 0, current == domain.EmotionAnxious, current == domain.EmotionPanicked:
		return domain.EmotionAnxious
	case CalmScore(text) > 0:
		return domain.EmotionCalm
	default:
		return current
	}
}

// OperatorForcesPanic reports whether operator text alone pushes the caller
// into a panicked state.
func OperatorForcesPanic(text string) bool {
	return PanicScore(text) > panicThreshold
}

// Intensity maps a state to the intensity reported to clients.
func Intensity(state domain.EmotionalState) float64 {
	switch state {
	case domain.EmotionCalm:
		return 0.3
	case domain.EmotionAnxious:
		return 0.6
	case domain.EmotionPanicked:
		return 0.85
	case domain.EmotionHysterical:
		return 1.0
	default:
		return 0.5
	}
}
