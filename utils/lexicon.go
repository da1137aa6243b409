package utils

// Keyword lexicons for the rules-based classifiers. Kept as tagged static
// data in one place so clinicians can review exactly which phrases trigger
// which category. Bump LexiconVersion whenever a set changes.
//
// Latin entries are matched against normalized text (lowercased, collapsed
// whitespace, unified apostrophes) and cover literal English plus romanized
// Hindi. Devanagari entries are matched against the raw text since case
// folding does not apply.

const LexiconVersion = "2025.08"

// Emergency categories.
const (
	CategoryChestPain     = "chest_pain"
	CategoryBreathless    = "breathlessness"
	CategoryHighBP        = "high_bp"
	CategoryUnconscious   = "unconscious"
	CategoryCardiacArrest = "cardiac_arrest"
)

// KeywordSet is one category's trigger phrases in both scripts.
type KeywordSet struct {
	Category   string
	Latin      []string
	Devanagari []string
}

var emergencyLexicon = []KeywordSet{
	{
		Category: CategoryChestPain,
		Latin: []string{
			"chest pain", "pain in chest", "heart pain", "chest is hurting",
			"seene me dard", "seene mein dard", "chhati me dard", "chhati mein dard",
		},
		Devanagari: []string{"सीने में दर्द", "छाती में दर्द"},
	},
	{
		Category: CategoryBreathless,
		Latin: []string{
			"can't breathe", "cannot breathe", "breathless", "breathing problem",
			"shortness of breath", "saans nahi aa", "saans lene me dikkat",
			"saans lene mein dikkat", "saans phool",
		},
		Devanagari: []string{"सांस नहीं आ", "सांस लेने में दिक्कत", "सांस फूल"},
	},
	{
		Category: CategoryHighBP,
		Latin: []string{
			"bp very high", "very high bp", "high blood pressure", "bp high hai",
			"bp bahut high", "bp bahut zyada",
		},
		Devanagari: []string{"बीपी बहुत", "ब्लड प्रेशर बहुत"},
	},
	{
		Category: CategoryUnconscious,
		Latin: []string{
			"unconscious", "fainted", "not waking up", "collapsed",
			"behosh", "behosh ho gaya", "behosh ho gayi",
		},
		Devanagari: []string{"बेहोश"},
	},
	{
		Category: CategoryCardiacArrest,
		Latin: []string{
			"cardiac arrest", "heart attack", "heart stopped", "no pulse",
			"dil ka daura", "nabz nahi",
		},
		Devanagari: []string{"दिल का दौरा", "हार्ट अटैक", "नब्ज़ नहीं", "नब्ज नहीं"},
	},
}

// strongIndicators are single phrases that alone justify high confidence.
var strongIndicators = []string{
	"unconscious", "cardiac arrest", "no pulse", "heart stopped",
	"behosh", "dil ka daura", "nabz nahi",
	"बेहोश", "दिल का दौरा", "नब्ज़ नहीं", "नब्ज नहीं",
}

// immediateThreatCategories derive P0; any other emergency match is P1.
var immediateThreatCategories = map[string]bool{
	CategoryUnconscious:   true,
	CategoryCardiacArrest: true,
}

// Appointment intent sets. Probe order is load-bearing: cancellation
// phrasing ("can't come") must win over booking phrasing, and reschedule
// over book, so the sets are consulted cancel first, book last.
var appointmentLexicon = []KeywordSet{
	{
		Category: string(IntentCancel),
		Latin: []string{
			"cancel", "can't come", "cannot come", "won't come", "not coming",
			"unable to come", "cancel karna", "nahi aa paunga", "nahi aa paungi",
			"nahi aa sakta", "nahi aa sakti",
		},
		Devanagari: []string{"रद्द", "नहीं आ पाऊंगा", "नहीं आ पाऊंगी", "नहीं आ सकता", "नहीं आ सकती"},
	},
	{
		Category: string(IntentReschedule),
		Latin: []string{
			"reschedule", "postpone", "change my appointment", "change the appointment",
			"another day", "some other day", "shift my appointment",
			"aage badha", "time badal", "date badal",
		},
		Devanagari: []string{"बदलना", "बदल दीजिये", "टाल", "आगे बढ़ा"},
	},
	{
		Category: string(IntentBook),
		Latin: []string{
			"book", "appointment", "booking", "slot", "checkup", "check up",
			"want to see the doctor", "consult", "milna hai", "dikhana hai",
			"appointment chahiye", "time milega",
		},
		Devanagari: []string{"अपॉइंटमेंट", "दिखाना है", "मिलना है", "समय मिलेगा"},
	},
}

// Day tokens in specificity order: "day after tomorrow" contains
// "tomorrow", so the more specific set must be probed first.
var dayLexicon = []KeywordSet{
	{
		Category:   string(DayAfterTomorrow),
		Latin:      []string{"day after tomorrow", "parso", "parson"},
		Devanagari: []string{"परसों"},
	},
	{
		Category:   string(DayTomorrow),
		Latin:      []string{"tomorrow", "kal"},
		Devanagari: []string{"कल"},
	},
	{
		Category:   string(DayToday),
		Latin:      []string{"today", "aaj", "abhi"},
		Devanagari: []string{"आज", "अभी"},
	},
}

// Time-of-day tokens, evening probed first.
var timeLexicon = []KeywordSet{
	{
		Category:   string(TimeEvening),
		Latin:      []string{"evening", "night", "shaam", "raat"},
		Devanagari: []string{"शाम", "रात"},
	},
	{
		Category:   string(TimeAfternoon),
		Latin:      []string{"afternoon", "dopahar"},
		Devanagari: []string{"दोपहर"},
	},
	{
		Category:   string(TimeMorning),
		Latin:      []string{"morning", "subah"},
		Devanagari: []string{"सुबह"},
	},
}
