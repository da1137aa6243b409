package utils

import "strings"

// AppointmentIntent is what the patient wants done with an appointment.
type AppointmentIntent string

const (
	IntentBook       AppointmentIntent = "book"
	IntentReschedule AppointmentIntent = "reschedule"
	IntentCancel     AppointmentIntent = "cancel"
)

// DayPreference extracted from a message.
type DayPreference string

const (
	DayToday         DayPreference = "today"
	DayTomorrow      DayPreference = "tomorrow"
	DayAfterTomorrow DayPreference = "day_after_tomorrow"
)

// TimeOfDay preference extracted from a message.
type TimeOfDay string

const (
	TimeMorning   TimeOfDay = "morning"
	TimeAfternoon TimeOfDay = "afternoon"
	TimeEvening   TimeOfDay = "evening"
)

// AppointmentResult is the outcome of probing one message for
// appointment-related phrasing.
type AppointmentResult struct {
	IsAppointmentRelated bool
	Intent               AppointmentIntent
	Confidence           Confidence
	MatchedKeywords      []string
}

// TimePreference holds the day/time-of-day tokens found in a message.
// Empty fields mean no preference was expressed.
type TimePreference struct {
	PreferredDay  DayPreference
	PreferredTime TimeOfDay
}

// AppointmentClassifier detects book/reschedule/cancel intent with the
// same keyword substring matching as the emergency classifier.
type AppointmentClassifier struct {
	lexicon []KeywordSet
}

func NewAppointmentClassifier() *AppointmentClassifier {
	return &AppointmentClassifier{lexicon: appointmentLexicon}
}

// Classify probes the intent sets in strict order (cancel, reschedule,
// book). The first set with any match wins; all matches within it are
// collected for the confidence score. "I can't come tomorrow" must never
// be absorbed by the book set.
func (ac *AppointmentClassifier) Classify(text string) AppointmentResult {
	normalized := NormalizeText(text)

	for _, set := range ac.lexicon {
		matched := collectMatches(normalized, text, set)
		if len(matched) == 0 {
			continue
		}
		return AppointmentResult{
			IsAppointmentRelated: true,
			Intent:               AppointmentIntent(set.Category),
			Confidence:           scoreConfidence(matched, nil),
			MatchedKeywords:      matched,
		}
	}
	return AppointmentResult{}
}

// ExtractTimePreference scans day tokens most-specific first (so
// "tomorrow" cannot swallow "day after tomorrow") and time-of-day tokens
// evening first.
func ExtractTimePreference(text string) TimePreference {
	normalized := NormalizeText(text)

	var pref TimePreference
	for _, set := range dayLexicon {
		if len(collectMatches(normalized, text, set)) > 0 {
			pref.PreferredDay = DayPreference(set.Category)
			break
		}
	}
	for _, set := range timeLexicon {
		if len(collectMatches(normalized, text, set)) > 0 {
			pref.PreferredTime = TimeOfDay(set.Category)
			break
		}
	}
	return pref
}

func collectMatches(normalized, raw string, set KeywordSet) []string {
	var matched []string
	for _, kw := range set.Latin {
		if strings.Contains(normalized, kw) {
			matched = append(matched, kw)
		}
	}
	for _, kw := range set.Devanagari {
		if strings.Contains(raw, kw) {
			matched = append(matched, kw)
		}
	}
	return matched
}
