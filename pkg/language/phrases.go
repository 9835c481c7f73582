package language

import "fmt"

// PhraseKey identifies a canned phrase.
type PhraseKey string

const (
	// PhraseSnapshotPrompt is the default description prompt used when the
	// user asked nothing.
	PhraseSnapshotPrompt PhraseKey = "snapshot_prompt"
	// PhraseHistoryLabel introduces the previous turns in a prompt.
	PhraseHistoryLabel PhraseKey = "history_label"
	// PhraseVisionUnavailable is spoken when no description backend exists.
	PhraseVisionUnavailable PhraseKey = "vision_unavailable"
	// PhraseAnalysisFailed is spoken when every description backend failed.
	PhraseAnalysisFailed PhraseKey = "analysis_failed"
	// PhraseAudioFailed replaces a response whose synthesis failed.
	PhraseAudioFailed PhraseKey = "audio_failed"
	// PhraseErrorTemplate wraps an error message; it has one %s verb.
	PhraseErrorTemplate PhraseKey = "error_template"
	// PhraseUnexpectedError is the generic apology for unhandled errors.
	PhraseUnexpectedError PhraseKey = "unexpected_error"
	// PhraseRateLimited is spoken to rejected clients.
	PhraseRateLimited PhraseKey = "rate_limited"
)

var phrases = map[Language]map[PhraseKey]string{
	English: {
		PhraseSnapshotPrompt:    "Describe what you see in detail, focusing on obstacles and important objects.",
		PhraseHistoryLabel:      "Previous context:",
		PhraseVisionUnavailable: "Sorry, AI service is not available.",
		PhraseAnalysisFailed:    "Sorry, I couldn't analyze the image. Please try again.",
		PhraseAudioFailed:       "Sorry, I couldn't generate audio response.",
		PhraseErrorTemplate:     "Sorry, an error occurred: %s",
		PhraseUnexpectedError:   "Sorry, an unexpected error occurred. Please try again.",
		PhraseRateLimited:       "Rate limit exceeded. Please wait before making another request.",
	},
	Hindi: {
		PhraseSnapshotPrompt:    "विस्तार से बताएं कि आप क्या देखते हैं, बाधाओं और महत्वपूर्ण वस्तुओं पर ध्यान केंद्रित करें।",
		PhraseHistoryLabel:      "पिछला संदर्भ:",
		PhraseVisionUnavailable: "क्षमा करें, AI सेवा उपलब्ध नहीं है।",
		PhraseAnalysisFailed:    "क्षमा करें, मैं छवि का विश्लेषण नहीं कर सका। कृपया पुनः प्रयास करें।",
		PhraseAudioFailed:       "क्षमा करें, मैं ऑडियो प्रतिक्रिया उत्पन्न नहीं कर सका।",
		PhraseErrorTemplate:     "क्षमा करें, एक त्रुटि हुई: %s",
		PhraseUnexpectedError:   "क्षमा करें, एक अप्रत्याशित त्रुटि हुई। कृपया पुनः प्रयास करें।",
		PhraseRateLimited:       "अनुरोध सीमा पार हो गई। कृपया दूसरा अनुरोध करने से पहले प्रतीक्षा करें।",
	},
}

// Phrase returns the canned phrase for key in l, using the baseline language
// when l has no entry.
func Phrase(l Language, key PhraseKey) string {
	if table, ok := phrases[l]; ok {
		if p, ok := table[key]; ok {
			return p
		}
	}
	return phrases[Baseline][key]
}

// ErrorPhrase formats the spoken error message for msg in l.
func ErrorPhrase(l Language, msg string) string {
	if msg == "" {
		msg = "unknown error"
	}
	return fmt.Sprintf(Phrase(l, PhraseErrorTemplate), msg)
}
