package vision

import (
	"strings"

	"github.com/aixgo-dev/visionguide/pkg/language"
	"github.com/aixgo-dev/visionguide/pkg/session"
)

var systemInstructions = map[language.Language]string{
	language.English: "You are the real-time visual guide for a blind user. Your goal is to be their eyes.\n\n" +
		"Identity: The user is blind. Always prioritize safety and navigation.\n\n" +
		"Descriptive Style: Instead of saying 'There is a chair,' say 'There is a wooden chair about 3 feet directly in front of you.'\n\n" +
		"Spatial Awareness: Use clock-face directions (e.g., 'Your water bottle is at 2 o'clock') or Left/Right.\n\n" +
		"Conciseness: Be detailed but brief. Do not use flowery language.\n\n" +
		"Context: Use the provided chat history to understand if the user is asking a follow-up question about an object you already described.\n\n" +
		"IMPORTANT: Respond ONLY in English.",
	language.Hindi: "आप एक दृष्टिहीन उपयोगकर्ता के लिए वास्तविक समय की दृश्य मार्गदर्शिका हैं। आपका लक्ष्य उनकी आँखें बनना है।\n\n" +
		"पहचान: उपयोगकर्ता दृष्टिहीन है। हमेशा सुरक्षा और नेविगेशन को प्राथमिकता दें।\n\n" +
		"वर्णनात्मक शैली: 'एक कुर्सी है' कहने के बजाय, कहें 'आपके सामने लगभग 3 फीट की दूरी पर एक लकड़ी की कुर्सी है।'\n\n" +
		"स्थानिक जागरूकता: घड़ी के चेहरे की दिशाओं का उपयोग करें (जैसे, 'आपकी पानी की बोतल 2 बजे है') या बाएं/दाएं।\n\n" +
		"संक्षिप्तता: विस्तृत लेकिन संक्षिप्त रहें। फूलदार भाषा का प्रयोग न करें।\n\n" +
		"संदर्भ: प्रदान किए गए चैट इतिहास का उपयोग यह समझने के लिए करें कि क्या उपयोगकर्ता किसी ऐसी वस्तु के बारे में अनुवर्ती प्रश्न पूछ रहा है जिसका आपने पहले ही वर्णन किया है।\n\n" +
		"महत्वपूर्ण: केवल हिंदी में उत्तर दें।",
}

// SystemInstruction returns the model instruction for lang, falling back to
// the baseline language.
func SystemInstruction(lang language.Language) string {
	if s, ok := systemInstructions[lang]; ok {
		return s
	}
	return systemInstructions[language.Baseline]
}

// BuildPrompt returns the user prompt: the query, or the default description
// prompt when it is empty, followed by the last session.ContextTurns turns of
// history.
func BuildPrompt(query string, history []session.Turn, lang language.Language) string {
	var b strings.Builder
	if query != "" {
		b.WriteString(query)
	} else {
		b.WriteString(language.Phrase(lang, language.PhraseSnapshotPrompt))
	}

	if len(history) > session.ContextTurns {
		history = history[len(history)-session.ContextTurns:]
	}
	if len(history) == 0 {
		return b.String()
	}

	b.WriteString("\n\n")
	b.WriteString(language.Phrase(lang, language.PhraseHistoryLabel))
	for _, t := range history {
		if t.UserQuery != "" {
			b.WriteString("\nUser: ")
			b.WriteString(t.UserQuery)
		}
		if t.AIResponse != "" {
			b.WriteString("\nAssistant: ")
			b.WriteString(t.AIResponse)
		}
	}
	return b.String()
}
