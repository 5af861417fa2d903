package backends

import (
	"context"
	"slices"
	"unicode"

	"github.com/gosuda/callsim/internal/call"
)

const keywordConfidence = 0.90

// keywordGroup lists the phrases that identify one entity type.
type keywordGroup struct {
	entityType string
	keywords   []string
}

//nolint:gochecknoglobals // fixed vocabulary
var emergencyKeywords = []keywordGroup{
	{"WEAPON", []string{"gun", "knife", "weapon", "rifle", "pistol", "firearm"}},
	{"INJURY", []string{"bleeding", "unconscious", "hurt", "injured", "pain", "wound", "broken"}},
	{"VEHICLE", []string{"car", "truck", "vehicle", "van", "motorcycle", "suv"}},
	{"MEDICAL", []string{"heart attack", "stroke", "seizure", "breathing", "chest pain"}},
	{"TIME_REFERENCE", []string{"minutes ago", "just now", "earlier", "hour ago"}},
	{"LOCATION", []string{"street", "avenue", "highway", "intersection", "apartment", "parking lot"}},
}

// KeywordExtractor finds emergency entities by case-insensitive phrase
// matching. Each phrase is reported once, at its first occurrence. Offsets
// count characters of the original text, not bytes.
type KeywordExtractor struct{}

var _ call.Extractor = KeywordExtractor{}

func (KeywordExtractor) ExtractEntities(ctx context.Context, text string) ([]call.EntityCandidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	folded := foldRunes(text)
	var out []call.EntityCandidate
	for _, group := range emergencyKeywords {
		for _, kw := range group.keywords {
			needle := foldRunes(kw)
			i := indexRunes(folded, needle)
			if i < 0 {
				continue
			}
			out = append(out, call.EntityCandidate{
				Type:       group.entityType,
				Value:      kw,
				Confidence: keywordConfidence,
				StartChar:  i,
				EndChar:    i + len(needle),
				Metadata: map[string]any{
					"detection_method":    "keyword_match",
					"is_emergency_entity": true,
				},
			})
		}
	}
	return out, nil
}

// foldRunes lowercases s one rune at a time so indexes line up with the
// characters of s. strings.ToLower may change the rune count.
func foldRunes(s string) []rune {
	runes := []rune(s)
	for i, r := range runes {
		runes[i] = unicode.ToLower(r)
	}
	return runes
}

func indexRunes(haystack, needle []rune) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if slices.Equal(haystack[i:i+len(needle)], needle) {
			return i
		}
	}
	return -1
}
