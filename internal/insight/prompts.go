package insight

import (
	"fmt"
	"strings"

	"github.com/survey-analytics/engine/internal/features"
	"github.com/survey-analytics/engine/internal/textanalysis"
)

const holisticSystemPrompt = `Ești un consultant strategic pentru digitalizarea serviciilor publice în România.

Primești sinteza unui chestionar (teme, sentiment, funcționalități cerute) și scrii:
- un REZUMAT EXECUTIV de 2-3 propoziții, profesional, în limba română
- 2-4 RECOMANDĂRI ACȚIONABILE

Fiecare recomandare are:
- action: ce trebuie făcut (concret, specific)
- priority: high|medium|low
- impact: impactul așteptat (1-2 propoziții)
- timeline: quick-win (1-3 luni) | short-term (3-6 luni) | long-term (6-12+ luni)
- effort: low|medium|high
- reasoning: de ce această recomandare (1-2 propoziții)

Returnează JSON:
{
  "summary": "Rezumat executiv",
  "recommendations": [
    {"action": "...", "priority": "high", "impact": "...", "timeline": "quick-win", "effort": "low", "reasoning": "..."}
  ]
}`

func holisticUserPrompt(surveyType string, respondents, questions int, themes []textanalysis.Theme, sentiment float64, label textanalysis.SentimentLabel, matrix []features.PriorityMatrixEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Tip chestionar: %s\n", surveyType)
	fmt.Fprintf(&b, "Respondenți: %d\nÎntrebări: %d\n", respondents, questions)
	fmt.Fprintf(&b, "Sentiment general: %s (%.2f)\n", label, sentiment)

	if len(themes) > 0 {
		b.WriteString("\nTeme principale:\n")
		for _, t := range themes[:min(len(themes), 5)] {
			fmt.Fprintf(&b, "- %s (%d mențiuni, sentiment %.2f)\n", t.Name, t.Mentions, t.Sentiment)
		}
	}

	if len(matrix) > 0 {
		b.WriteString("\nTop funcționalități dorite:\n")
		for _, f := range matrix[:min(len(matrix), 5)] {
			fmt.Fprintf(&b, "- %s (popularitate: %.0f%%, prioritate: %s)\n", f.Feature, f.Popularity, f.Priority)
		}
	}

	b.WriteString("\nGenerează rezumatul și recomandările strategice.")
	return b.String()
}
