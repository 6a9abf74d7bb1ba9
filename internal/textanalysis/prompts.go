package textanalysis

import (
	"fmt"
	"strings"

	"github.com/survey-analytics/engine/internal/llm"
)

const analysisSystemPrompt = `Ești un analist de date expert specializat în analiza feedback-ului pentru servicii publice digitale în România.

Analizează răspunsurile text ale cetățenilor sau funcționarilor la chestionarul despre digitalizarea serviciilor publice și returnează un obiect JSON cu structura:
{
  "themes": [{"name": "Nume temă", "score": 0.0-1.0, "mentions": număr, "keywords": ["cuvinte"], "sentiment": -1.0-1.0}],
  "sentiment": {"overall": -1.0-1.0, "label": "positive|negative|neutral", "distribution": {"positive": 0-100, "neutral": 0-100, "negative": 0-100}, "confidence": 0.0-1.0},
  "keyPhrases": ["fraze exacte din răspunsuri"],
  "topQuotes": ["3-5 citate reprezentative, nemodificate"],
  "summary": "Rezumat în 2-3 propoziții",
  "wordFrequency": [{"word": "cuvânt", "count": număr}]
}

Reguli:
- Analizează în limba română
- Maxim 10 teme, ordonate după relevanță
- Distribuția sentimentului însumează 100
- Frecvența cuvintelor: top 20, fără cuvinte comune ("de", "la", "și")`

const sentimentSystemPrompt = `Analizează sentimentul textului în limba română.
Returnează JSON: {"overall": -1.0-1.0, "label": "positive|negative|neutral", "distribution": {"positive": 0-100, "neutral": 0-100, "negative": 0-100}, "confidence": 0.0-1.0}`

const themesSystemPrompt = `Identifică teme recurente în răspunsurile text (limba română).
Returnează JSON {"themes": [...]} cu maxim %d teme de forma:
{"name": "Nume temă", "score": 0.0-1.0, "mentions": număr, "keywords": ["cuvinte"], "sentiment": -1.0-1.0}`

const keyPhrasesSystemPrompt = `Extrage maxim %d fraze cheie din răspunsurile text (limba română).
Returnează JSON {"phrases": ["frază 1", "frază 2"]}. Frazele trebuie să fie exacte din text, nemodificate.`

func analysisUserPrompt(questionText, respondentType string, responses []string) string {
	respondent := "cetățean"
	if respondentType == "official" {
		respondent = "funcționar public"
	}

	block := llm.TruncateToTokenLimit(numbered(responses), maxResponseTokens)
	return fmt.Sprintf(`Întrebare: %q
Tip respondent: %s

Răspunsuri text (%d total):
%s

Analizează aceste răspunsuri și returnează JSON-ul cerut.`, questionText, respondent, len(responses), block)
}

func numbered(texts []string) string {
	var b strings.Builder
	for i, t := range texts {
		fmt.Fprintf(&b, "%d. %q\n", i+1, t)
	}
	return strings.TrimRight(b.String(), "\n")
}
