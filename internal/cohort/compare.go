package cohort

import (
	"fmt"
	"math"
	"sort"

	"github.com/survey-analytics/engine/pkg/utils"
)

const (
	maxFeatureDifferences = 10
	// featureGapThreshold is the share difference, in points, that marks a
	// feature preference as significant.
	featureGapThreshold = 15
)

// compareAll compares every pair of age cohorts, urban against rural and
// frequent against rare users.
func compareAll(cohorts []Cohort, metrics []Metrics) []Comparison {
	byKind := make(map[Kind][]Metrics)
	byID := make(map[string]Metrics)
	for i, c := range cohorts {
		byKind[c.Kind] = append(byKind[c.Kind], metrics[i])
		byID[c.ID] = metrics[i]
	}

	var out []Comparison
	age := byKind[KindAge]
	for i := 0; i < len(age); i++ {
		for j := i + 1; j < len(age); j++ {
			out = append(out, Compare(age[i], age[j]))
		}
	}
	if urban, ok := byID["urban"]; ok {
		if rural, ok := byID["rural"]; ok {
			out = append(out, Compare(urban, rural))
		}
	}
	if frequent, ok := byID["frequent_users"]; ok {
		if rare, ok := byID["rare_users"]; ok {
			out = append(out, Compare(frequent, rare))
		}
	}
	return out
}

// Compare reports how c1 differs from c2. Differences are c1 minus c2.
func Compare(c1, c2 Metrics) Comparison {
	cmp := Comparison{
		Cohort1:             c1.CohortID,
		Cohort2:             c2.CohortID,
		FeatureDifferences:  featureDifferences(c1, c2),
		SentimentDifference: utils.Round(c1.AverageSentiment-c2.AverageSentiment, 2),
		ReadinessDifference: utils.Round(c1.DigitalReadiness-c2.DigitalReadiness, 1),
	}
	cmp.Insights = insights(c1, c2, cmp)
	cmp.Recommendations = recommendations(c1, c2, cmp)
	return cmp
}

func featureDifferences(c1, c2 Metrics) []FeatureDifference {
	shares1 := make(map[string]float64, len(c1.TopFeatures))
	shares2 := make(map[string]float64, len(c2.TopFeatures))
	var names []string
	for _, f := range c1.TopFeatures {
		shares1[f.Feature] = f.Percentage
		names = append(names, f.Feature)
	}
	for _, f := range c2.TopFeatures {
		if _, ok := shares1[f.Feature]; !ok {
			names = append(names, f.Feature)
		}
		shares2[f.Feature] = f.Percentage
	}

	out := make([]FeatureDifference, len(names))
	for i, name := range names {
		diff := utils.Round(shares1[name]-shares2[name], 1)
		out[i] = FeatureDifference{
			Feature:           name,
			Cohort1Percentage: shares1[name],
			Cohort2Percentage: shares2[name],
			Difference:        diff,
			Significant:       math.Abs(diff) > featureGapThreshold,
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return math.Abs(out[i].Difference) > math.Abs(out[j].Difference)
	})
	if len(out) > maxFeatureDifferences {
		out = out[:maxFeatureDifferences]
	}
	return out
}

func significantFeatures(diffs []FeatureDifference) []FeatureDifference {
	var out []FeatureDifference
	for _, d := range diffs {
		if d.Significant {
			out = append(out, d)
		}
	}
	return out
}

func insights(c1, c2 Metrics, cmp Comparison) []string {
	var out []string

	if d := cmp.SentimentDifference; math.Abs(d) > 0.2 {
		direction := "mai negativ"
		if d > 0 {
			direction = "mai pozitiv"
		}
		out = append(out, fmt.Sprintf("%s are un sentiment %s față de %s (diferență: %.2f)",
			c1.CohortName, direction, c2.CohortName, math.Abs(d)))
	}

	if d := cmp.ReadinessDifference; math.Abs(d) > 0.5 {
		direction := "inferior"
		if d > 0 {
			direction = "superior"
		}
		out = append(out, fmt.Sprintf("%s au un scor de pregătire digitală %s față de %s (%.1f puncte diferență)",
			c1.CohortName, direction, c2.CohortName, math.Abs(d)))
	}

	if significant := significantFeatures(cmp.FeatureDifferences); len(significant) > 0 {
		out = append(out, fmt.Sprintf("Diferențe semnificative în preferințe: %d funcționalități cu diferență >%d%%",
			len(significant), featureGapThreshold))
		top := significant[0]
		preferring := c2.CohortName
		if top.Difference > 0 {
			preferring = c1.CohortName
		}
		out = append(out, fmt.Sprintf("%q este preferată semnificativ de %s (%.1f%% diferență)",
			top.Feature, preferring, math.Abs(top.Difference)))
	}

	p1, p2 := len(c1.PainPoints), len(c2.PainPoints)
	if p1-p2 >= 2 || p2-p1 >= 2 {
		more := c1.CohortName
		if p2 > p1 {
			more = c2.CohortName
		}
		out = append(out, fmt.Sprintf("%s raportează mai multe probleme (%d vs %d)", more, max(p1, p2), min(p1, p2)))
	}

	return out
}

func recommendations(c1, c2 Metrics, cmp Comparison) []string {
	var out []string

	switch d := cmp.ReadinessDifference; {
	case d > 0.5:
		out = append(out, fmt.Sprintf("Oferiți suport tehnic suplimentar pentru %s pentru a crește pregătirea digitală", c2.CohortName))
	case d < -0.5:
		out = append(out, fmt.Sprintf("Oferiți suport tehnic suplimentar pentru %s pentru a crește pregătirea digitală", c1.CohortName))
	}

	if len(significantFeatures(cmp.FeatureDifferences)) > 0 {
		out = append(out, "Personalizați interfața în funcție de cohorta utilizatorului pentru a evidenția funcționalitățile relevante")
	}

	if d := cmp.SentimentDifference; math.Abs(d) > 0.3 {
		lower := c1.CohortName
		if d > 0 {
			lower = c2.CohortName
		}
		out = append(out, fmt.Sprintf("Investigați cauzele satisfacției mai scăzute la %s și implementați îmbunătățiri targetate", lower))
	}

	for _, p := range append(append([]PainPoint{}, c1.PainPoints...), c2.PainPoints...) {
		if p.Severity == SeverityHigh {
			out = append(out, fmt.Sprintf("Prioritizați rezolvarea problemelor de severitate înaltă: %s", p.Issue))
			break
		}
	}

	if len(out) == 0 {
		out = append(out, "Continuați monitorizarea diferențelor între cohorte pentru a identifica oportunități de îmbunătățire")
	}
	return out
}
