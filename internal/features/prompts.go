package features

import (
	"fmt"
	"strings"

	"github.com/survey-analytics/engine/internal/llm"
)

const implicitSystemPrompt = `Ești un analist de produse digitale specializat în servicii publice digitale din România.

Identifică funcționalitățile (features) menționate implicit în răspunsurile text ale %s.

Returnează JSON:
{"features": [
  {
    "feature": "Nume funcționalitate (ex: Plată online, Notificări SMS)",
    "description": "Descriere detaliată a funcționalității",
    "priority": "high|medium|low",
    "mentions": număr de mențiuni,
    "sentiment": -1.0-1.0,
    "relatedQuestions": ["id-uri de întrebări"]
  }
]}

Reguli:
- Doar funcționalități concrete, nu concepte abstracte
- Grupează funcționalitățile similare ("plată card", "plată online" → "Plată online")
- Sentiment pozitiv dacă e dorită, negativ dacă e frustrantă
- Prioritate: high (>50%% mențiuni), medium (20-50%%), low (<20%%)
- Maxim %d funcționalități`

const categorizeSystemPrompt = `Grupează funcționalitățile în categorii logice.

Returnează JSON:
{"categories": [{"name": "Plăți", "features": ["Plată online"]}]}

Folosește exact numele primite. Categorii posibile: Plăți, Notificări, Formular Digital, Autentificare, Integrări, Raportare.`

const maxPromptTokens = 12000

func populationName(respondentType string) string {
	if respondentType == "official" {
		return "funcționarilor publici"
	}
	return "cetățenilor"
}

func implicitUserPrompt(questionID string, responses []string) string {
	var b strings.Builder
	for i, r := range responses {
		fmt.Fprintf(&b, "%d. %q\n", i+1, r)
	}
	return fmt.Sprintf(`Întrebare: %s
Răspunsuri text (%d total):
%s

Identifică funcționalitățile menționate și returnează JSON-ul.`,
		questionID, len(responses), llm.TruncateToTokenLimit(strings.TrimRight(b.String(), "\n"), maxPromptTokens))
}

func categorizeUserPrompt(names []string) string {
	return "Funcționalități:\n" + strings.Join(names, "\n")
}
