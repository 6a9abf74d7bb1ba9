package cohort

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/survey-analytics/engine/internal/demographics"
	"github.com/survey-analytics/engine/internal/storage/models"
	"github.com/survey-analytics/engine/internal/storage/models/modelstest"
)

func fiveRespondents() *models.Dataset {
	b := modelstest.NewBuilder("citizen")

	r1 := b.Respondent(models.Respondent{AgeCategory: "18-25", County: "Cluj", Locality: "Cluj-Napoca"})
	b.Text(r1, "q1_frequency", "Zilnic").Rating(r1, "q2_usefulness", 5).Rating(r1, "q3_readiness", 5)
	b.Choices(r1, "q4_features", "Plată online", "Chat")
	b.Text(r1, "q7_concerns", "Aplicația e complicată și lentă")

	r2 := b.Respondent(models.Respondent{AgeCategory: "26-35", County: "Iași", Locality: "Iași"})
	b.Text(r2, "q1_frequency", "Săptămânal").Rating(r2, "q2_usefulness", 4).Rating(r2, "q3_readiness", 4)
	b.Choices(r2, "q4_features", "Plată online")

	r3 := b.Respondent(models.Respondent{AgeCategory: "46-60", County: "Vaslui", Locality: "Sat Mic"})
	b.Text(r3, "q1_frequency", "Rar").Rating(r3, "q2_usefulness", 2).Rating(r3, "q3_readiness", 2)
	b.Choices(r3, "q4_features", "Programări")
	b.Text(r3, "q7_concerns", "Nu știu unde găsesc formularul, e complicat")

	r4 := b.Respondent(models.Respondent{AgeCategory: "60+", County: "Vaslui", Locality: "Comuna Valea"})
	b.Rating(r4, "q2_usefulness", 1).Rating(r4, "q3_readiness", 1)
	b.Choices(r4, "q4_features", "Programări")
	b.Text(r4, "q7_concerns", "Mi-e frică de risc pentru datele mele")

	r5 := b.Respondent(models.Respondent{})
	b.Text(r5, "q1_frequency", "Niciodată")

	return b.Dataset()
}

func newTestAnalyzer(kinds ...Kind) *Analyzer {
	return NewAnalyzer(Config{Questions: demographics.DefaultQuestionMap(), Kinds: kinds})
}

func findCohort(t *testing.T, report *Report, id string) (Cohort, Metrics) {
	t.Helper()
	for i, c := range report.Cohorts {
		if c.ID == id {
			return c, report.Metrics[i]
		}
	}
	t.Fatalf("cohort %s not found", id)
	return Cohort{}, Metrics{}
}

func TestAnalyze_Cohorts(t *testing.T) {
	report, err := newTestAnalyzer().Analyze(context.Background(), fiveRespondents())
	require.NoError(t, err)

	var ids []string
	for _, c := range report.Cohorts {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []string{
		"young_digitals", "middle_aged", "seniors",
		"urban", "rural",
		"frequent_users", "occasional_users", "rare_users",
	}, ids)

	young, youngMetrics := findCohort(t, report, "young_digitals")
	assert.Equal(t, 2, young.Size)
	assert.Equal(t, 40.0, young.Percentage)
	assert.Equal(t, 0.75, youngMetrics.AverageSentiment)
	assert.Equal(t, "positive", youngMetrics.SentimentLabel)
	assert.Equal(t, Distribution{Positive: 100}, youngMetrics.SentimentDistribution)
	assert.Equal(t, 4.5, youngMetrics.DigitalReadiness)
	assert.Equal(t, []FeatureShare{
		{Feature: "Plată online", Count: 2, Percentage: 100},
		{Feature: "Chat", Count: 1, Percentage: 50},
	}, youngMetrics.TopFeatures)

	urban, _ := findCohort(t, report, "urban")
	assert.Equal(t, []string{"r001", "r002"}, urban.RespondentIDs)

	rare, rareMetrics := findCohort(t, report, "rare_users")
	assert.Equal(t, []string{"r004", "r005"}, rare.RespondentIDs)
	assert.Equal(t, []FrequencyShare{{Frequency: "Niciodată", Count: 1, Percentage: 100}}, rareMetrics.FrequencyDistribution)

	_, middle := findCohort(t, report, "middle_aged")
	require.Len(t, middle.PainPoints, 2)
	assert.Equal(t, PainPoint{Issue: "Interfață complicată", Mentions: 1, Severity: SeverityHigh}, middle.PainPoints[0])
	assert.Equal(t, "Lipsă informații", middle.PainPoints[1].Issue)

	_, seniors := findCohort(t, report, "seniors")
	assert.Equal(t, []PainPoint{{Issue: "Securitate", Mentions: 1, Severity: SeverityHigh}}, seniors.PainPoints)
	assert.Equal(t, "negative", seniors.SentimentLabel)
}

func TestAnalyze_ComparisonsAndSummary(t *testing.T) {
	report, err := newTestAnalyzer().Analyze(context.Background(), fiveRespondents())
	require.NoError(t, err)

	require.Len(t, report.Comparisons, 5)
	first := report.Comparisons[0]
	assert.Equal(t, "young_digitals", first.Cohort1)
	assert.Equal(t, "middle_aged", first.Cohort2)
	assert.Equal(t, 1.25, first.SentimentDifference)
	assert.Equal(t, 2.5, first.ReadinessDifference)

	require.Len(t, first.FeatureDifferences, 3)
	assert.Equal(t, "Plată online", first.FeatureDifferences[0].Feature)
	assert.Equal(t, "Programări", first.FeatureDifferences[1].Feature)
	assert.Equal(t, -100.0, first.FeatureDifferences[1].Difference)
	for _, d := range first.FeatureDifferences {
		assert.True(t, d.Significant)
	}

	assert.Equal(t, "Tineri Nativi Digitali are un sentiment mai pozitiv față de Maturi Activi (diferență: 1.25)", first.Insights[0])
	assert.Contains(t, first.Insights, `"Plată online" este preferată semnificativ de Tineri Nativi Digitali (100.0% diferență)`)
	assert.Equal(t, "Oferiți suport tehnic suplimentar pentru Maturi Activi pentru a crește pregătirea digitală", first.Recommendations[0])

	assert.Equal(t, "urban", report.Comparisons[3].Cohort1)
	assert.Equal(t, "frequent_users", report.Comparisons[4].Cohort1)
	assert.Equal(t, "rare_users", report.Comparisons[4].Cohort2)

	s := report.Summary
	assert.Equal(t, 8, s.TotalCohorts)
	assert.Equal(t, "Rural/Localități Mici", s.LargestCohort)
	assert.Equal(t, "Maturi Activi", s.SmallestCohort)
	assert.Equal(t, "Tineri Nativi Digitali", s.MostEngaged)
	require.Len(t, s.KeyFindings, 5)
	assert.Equal(t, "Identificate 8 cohorte distincte", s.KeyFindings[0])
	assert.Equal(t, first.Insights[0], s.KeyFindings[3])
}

func TestAnalyze_SelectedKinds(t *testing.T) {
	report, err := newTestAnalyzer(KindUsage).Analyze(context.Background(), fiveRespondents())
	require.NoError(t, err)

	assert.Len(t, report.Cohorts, 3)
	require.Len(t, report.Comparisons, 1)
	assert.Equal(t, "frequent_users", report.Comparisons[0].Cohort1)
}

func TestAnalyze_Errors(t *testing.T) {
	_, err := newTestAnalyzer().Analyze(context.Background(), nil)
	assert.Error(t, err)

	_, err = newTestAnalyzer().Analyze(context.Background(), &models.Dataset{})
	assert.Error(t, err)
}

func TestRatingSentiment_Mixed(t *testing.T) {
	b := modelstest.NewBuilder("citizen")
	for _, r := range []int{5, 5, 1, 1, 3} {
		b.Rating("x", "q2_usefulness", r)
	}

	avg, label, dist := ratingSentiment(b.Dataset().Responses)

	assert.Zero(t, avg)
	assert.Equal(t, "mixed", label)
	assert.Equal(t, Distribution{Positive: 40, Neutral: 20, Negative: 40}, dist)

	_, label, dist = ratingSentiment(nil)
	assert.Equal(t, "neutral", label)
	assert.Equal(t, 100.0, dist.Neutral)
}

func TestCompare_Threshold(t *testing.T) {
	a := Metrics{CohortID: "a", CohortName: "A", TopFeatures: []FeatureShare{{Feature: "X", Percentage: 40}, {Feature: "Y", Percentage: 30}}}
	b := Metrics{CohortID: "b", CohortName: "B", TopFeatures: []FeatureShare{{Feature: "X", Percentage: 25}, {Feature: "Y", Percentage: 14.9}}}

	cmp := Compare(a, b)

	require.Len(t, cmp.FeatureDifferences, 2)
	assert.Equal(t, FeatureDifference{Feature: "Y", Cohort1Percentage: 30, Cohort2Percentage: 14.9, Difference: 15.1, Significant: true}, cmp.FeatureDifferences[0])
	assert.False(t, cmp.FeatureDifferences[1].Significant)
	assert.Equal(t, []string{"Personalizați interfața în funcție de cohorta utilizatorului pentru a evidenția funcționalitățile relevante"}, cmp.Recommendations)
}
