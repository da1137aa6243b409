package utils

import (
	"strings"
	"unicode"

	"clinic-triage-backend/models"
)

// Confidence of a classification.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
)

// EmergencyResult is the outcome of scanning one message for emergency
// keywords. Zero matches is a valid negative, not an error.
type EmergencyResult struct {
	IsEmergency     bool
	MatchedKeywords []string
	Categories      []string
	Confidence      Confidence
	Priority        models.Priority
}

// EmergencyClassifier detects medical emergencies with versioned keyword
// sets only. Rules-first by requirement: no model calls, so the set of
// possible false negatives is exactly the complement of the lexicon and
// stays clinician-reviewable.
type EmergencyClassifier struct {
	lexicon []KeywordSet
}

func NewEmergencyClassifier() *EmergencyClassifier {
	return &EmergencyClassifier{lexicon: emergencyLexicon}
}

// Classify scans the text for emergency keywords. English and romanized
// Hindi phrases match against the normalized text, Devanagari phrases
// against the raw text.
func (ec *EmergencyClassifier) Classify(text string) EmergencyResult {
	normalized := NormalizeText(text)

	var result EmergencyResult
	seen := make(map[string]bool)
	for _, set := range ec.lexicon {
		matched := false
		for _, kw := range set.Latin {
			if strings.Contains(normalized, kw) {
				result.MatchedKeywords = append(result.MatchedKeywords, kw)
				matched = true
			}
		}
		for _, kw := range set.Devanagari {
			if strings.Contains(text, kw) {
				result.MatchedKeywords = append(result.MatchedKeywords, kw)
				matched = true
			}
		}
		if matched && !seen[set.Category] {
			seen[set.Category] = true
			result.Categories = append(result.Categories, set.Category)
		}
	}

	if len(result.MatchedKeywords) == 0 {
		return result
	}

	result.IsEmergency = true
	result.Confidence = scoreConfidence(result.MatchedKeywords, strongIndicators)
	result.Priority = models.PriorityP1
	if onlyImmediateThreats(result.Categories) {
		result.Priority = models.PriorityP0
	}
	return result
}

// onlyImmediateThreats reports whether every matched category is in the
// immediate-threat set (unconscious, cardiac arrest).
func onlyImmediateThreats(categories []string) bool {
	for _, c := range categories {
		if !immediateThreatCategories[c] {
			return false
		}
	}
	return len(categories) > 0
}

// scoreConfidence: two or more matches, or a single match from the strong
// indicator allowlist, is high; any other single match is medium.
func scoreConfidence(matched []string, strong []string) Confidence {
	if len(matched) >= 2 {
		return ConfidenceHigh
	}
	for _, s := range strong {
		if matched[0] == s {
			return ConfidenceHigh
		}
	}
	return ConfidenceMedium
}

// NormalizeText lowercases, unifies curly apostrophes and collapses runs
// of whitespace so keyword matching is stable across clients.
func NormalizeText(text string) string {
	lower := strings.ToLower(text)
	lower = strings.ReplaceAll(lower, "’", "'")
	lower = strings.ReplaceAll(lower, "‘", "'")
	return strings.Join(strings.Fields(lower), " ")
}

// DetectLanguage returns "hi" when the text contains Devanagari script,
// otherwise "en". Used to pick the draft template language.
func DetectLanguage(text string) string {
	for _, r := range text {
		if unicode.Is(unicode.Devanagari, r) {
			return "hi"
		}
	}
	return "en"
}
