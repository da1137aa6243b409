package utils

import (
	"fmt"
	"strings"
)

// GenerateDraft builds the canned reply that pre-populates the approval
// queue for an appointment-related message. Pure function of its inputs;
// the draft is never sent without human approval.
func GenerateDraft(intent AppointmentIntent, patientName string, prefs TimePreference, language string) string {
	name := strings.TrimSpace(patientName)
	if language == "hi" {
		return hindiDraft(intent, name, prefs)
	}
	return englishDraft(intent, name, prefs)
}

func englishDraft(intent AppointmentIntent, name string, prefs TimePreference) string {
	greeting := "Hello"
	if name != "" {
		greeting = fmt.Sprintf("Hello %s", name)
	}

	switch intent {
	case IntentBook:
		when := englishWhen(prefs)
		if when != "" {
			return fmt.Sprintf("%s, we have received your appointment request for %s. The clinic will confirm your slot shortly.", greeting, when)
		}
		return fmt.Sprintf("%s, we have received your appointment request. The clinic will confirm your slot shortly.", greeting)
	case IntentReschedule:
		return fmt.Sprintf("%s, we have noted your request to reschedule. The clinic will get back to you with new available timings.", greeting)
	case IntentCancel:
		return fmt.Sprintf("%s, your cancellation request has been received. Please let us know if you would like to book another time.", greeting)
	default:
		return fmt.Sprintf("%s, thank you for your message. The clinic will respond shortly.", greeting)
	}
}

func hindiDraft(intent AppointmentIntent, name string, prefs TimePreference) string {
	greeting := "नमस्ते"
	if name != "" {
		greeting = fmt.Sprintf("नमस्ते %s", name)
	}

	switch intent {
	case IntentBook:
		when := hindiWhen(prefs)
		if when != "" {
			return fmt.Sprintf("%s, %s के लिए आपका अपॉइंटमेंट अनुरोध मिल गया है। क्लिनिक जल्द ही समय की पुष्टि करेगा।", greeting, when)
		}
		return fmt.Sprintf("%s, आपका अपॉइंटमेंट अनुरोध मिल गया है। क्लिनिक जल्द ही समय की पुष्टि करेगा।", greeting)
	case IntentReschedule:
		return fmt.Sprintf("%s, अपॉइंटमेंट बदलने का आपका अनुरोध मिल गया है। क्लिनिक नए समय के साथ संपर्क करेगा।", greeting)
	case IntentCancel:
		return fmt.Sprintf("%s, आपका अपॉइंटमेंट रद्द करने का अनुरोध मिल गया है। नया समय चाहिए तो बताइए।", greeting)
	default:
		return fmt.Sprintf("%s, आपका संदेश मिल गया है। क्लिनिक जल्द ही जवाब देगा।", greeting)
	}
}

func englishWhen(prefs TimePreference) string {
	var day string
	switch prefs.PreferredDay {
	case DayToday:
		day = "today"
	case DayTomorrow:
		day = "tomorrow"
	case DayAfterTomorrow:
		day = "the day after tomorrow"
	}

	var tod string
	switch prefs.PreferredTime {
	case TimeMorning:
		tod = "morning"
	case TimeAfternoon:
		tod = "afternoon"
	case TimeEvening:
		tod = "evening"
	}

	switch {
	case day != "" && tod != "":
		return fmt.Sprintf("%s %s", day, tod)
	case day != "":
		return day
	case tod != "":
		return fmt.Sprintf("the %s", tod)
	}
	return ""
}

func hindiWhen(prefs TimePreference) string {
	var day string
	switch prefs.PreferredDay {
	case DayToday:
		day = "आज"
	case DayTomorrow:
		day = "कल"
	case DayAfterTomorrow:
		day = "परसों"
	}

	var tod string
	switch prefs.PreferredTime {
	case TimeMorning:
		tod = "सुबह"
	case TimeAfternoon:
		tod = "दोपहर"
	case TimeEvening:
		tod = "शाम"
	}

	switch {
	case day != "" && tod != "":
		return fmt.Sprintf("%s %s", day, tod)
	case day != "":
		return day
	case tod != "":
		return tod
	}
	return ""
}
