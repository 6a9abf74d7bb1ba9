// Package cohort segments respondents by age, location and usage and
// compares the segments.
package cohort

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/survey-analytics/engine/internal/demographics"
	"github.com/survey-analytics/engine/internal/storage/models"
	"github.com/survey-analytics/engine/pkg/logger"
	"github.com/survey-analytics/engine/pkg/utils"
)

const (
	maxTopFeatures = 10
	maxPainPoints  = 5
	notAvailable   = "N/A"
)

// DefaultUrbanLocalities are matched as substrings of a respondent's
// locality, ignoring case and diacritics.
var DefaultUrbanLocalities = []string{
	"București", "Cluj", "Timișoara", "Iași", "Constanța",
	"Craiova", "Brașov", "Galați", "Ploiești", "Oradea",
}

// DefaultPainPointQuestions are question id fragments whose text answers
// are scanned for pain points.
var DefaultPainPointQuestions = []string{"suggestions", "concerns", "useful"}

var painPointKeywords = []struct {
	issue    string
	keywords []string
}{
	{"Interfață complicată", []string{"complicat", "confuz", "dificil", "greu de folosit"}},
	{"Lipsă informații", []string{"nu știu", "informații insuficiente", "lipsă explicații"}},
	{"Probleme tehnice", []string{"eroare", "bug", "nu funcționează", "crash"}},
	{"Timp de procesare lung", []string{"lent", "așteptare", "durează mult"}},
	{"Lipsa funcționalități", []string{"nu pot", "nu există", "lipsește"}},
	{"Securitate", []string{"nesigur", "îngrijorare", "risc", "datele mele"}},
}

type Config struct {
	Questions          demographics.QuestionMap
	Kinds              []Kind
	UrbanLocalities    []string
	PainPointQuestions []string
}

type Analyzer struct {
	cfg   Config
	urban []string
}

func NewAnalyzer(cfg Config) *Analyzer {
	if len(cfg.Kinds) == 0 {
		cfg.Kinds = []Kind{KindAge, KindLocation, KindUsage}
	}
	if len(cfg.UrbanLocalities) == 0 {
		cfg.UrbanLocalities = DefaultUrbanLocalities
	}
	if len(cfg.PainPointQuestions) == 0 {
		cfg.PainPointQuestions = DefaultPainPointQuestions
	}

	urban := make([]string, 0, len(cfg.UrbanLocalities))
	for _, u := range cfg.UrbanLocalities {
		if key := utils.CanonicalKey(u); key != "" {
			urban = append(urban, key)
		}
	}
	return &Analyzer{cfg: cfg, urban: urban}
}

var (
	errNilDataset    = errors.New("nil dataset")
	errNoRespondents = errors.New("no respondents to segment")
)

func (a *Analyzer) Analyze(ctx context.Context, ds *models.Dataset) (*Report, error) {
	if ds == nil {
		return nil, errNilDataset
	}
	if len(ds.Respondents) == 0 {
		return nil, errNoRespondents
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	enc := demographics.NewEncoder(a.cfg.Questions, ds.Respondents, ds.Responses)

	var cohorts []Cohort
	for _, kind := range a.cfg.Kinds {
		switch kind {
		case KindAge:
			cohorts = append(cohorts, a.ageCohorts(ds.Respondents)...)
		case KindLocation:
			cohorts = append(cohorts, a.locationCohorts(ds.Respondents)...)
		case KindUsage:
			cohorts = append(cohorts, a.usageCohorts(enc)...)
		}
	}

	byRespondent := make(map[string][]models.Response)
	for _, resp := range ds.Responses {
		byRespondent[resp.RespondentID] = append(byRespondent[resp.RespondentID], resp)
	}

	metrics := make([]Metrics, len(cohorts))
	for i, c := range cohorts {
		metrics[i] = a.cohortMetrics(c, enc, byRespondent)
	}

	report := &Report{
		Cohorts:     cohorts,
		Metrics:     metrics,
		Comparisons: compareAll(cohorts, metrics),
	}
	report.Summary = summarize(cohorts, metrics, report.Comparisons)

	logger.Info("Cohort analysis complete",
		zap.String("survey_type", ds.SurveyType),
		zap.Int("cohorts", len(cohorts)),
		zap.Int("comparisons", len(report.Comparisons)),
	)
	return report, nil
}

func newCohort(id, name, description string, kind Kind, ids []string, total int) Cohort {
	return Cohort{
		ID:            id,
		Name:          name,
		Description:   description,
		Kind:          kind,
		RespondentIDs: ids,
		Size:          len(ids),
		Percentage:    utils.Round(100*float64(len(ids))/float64(total), 1),
	}
}

func nonEmpty(cohorts ...Cohort) []Cohort {
	out := make([]Cohort, 0, len(cohorts))
	for _, c := range cohorts {
		if c.Size > 0 {
			out = append(out, c)
		}
	}
	return out
}

func (a *Analyzer) ageCohorts(respondents []models.Respondent) []Cohort {
	var young, middle, seniors []string
	for _, r := range respondents {
		switch r.AgeCategory {
		case "18-25", "26-35":
			young = append(young, r.ID)
		case "36-45", "46-60":
			middle = append(middle, r.ID)
		case "60+":
			seniors = append(seniors, r.ID)
		}
	}

	total := len(respondents)
	return nonEmpty(
		newCohort("young_digitals", "Tineri Nativi Digitali", "Vârsta 18-35 ani - nativi digitali cu experiență tehnologică", KindAge, young, total),
		newCohort("middle_aged", "Maturi Activi", "Vârsta 36-60 ani - activi profesional cu experiență variată", KindAge, middle, total),
		newCohort("seniors", "Seniori", "Peste 60 ani - pot necesita suport suplimentar pentru digital", KindAge, seniors, total),
	)
}

func (a *Analyzer) isUrban(locality string) bool {
	key := utils.CanonicalKey(locality)
	if key == "" {
		return false
	}
	for _, city := range a.urban {
		if strings.Contains(key, city) {
			return true
		}
	}
	return false
}

func (a *Analyzer) locationCohorts(respondents []models.Respondent) []Cohort {
	var urban, rural []string
	for _, r := range respondents {
		if a.isUrban(r.Locality) {
			urban = append(urban, r.ID)
		} else {
			rural = append(rural, r.ID)
		}
	}

	total := len(respondents)
	return nonEmpty(
		newCohort("urban", "Urban", "Orașe mari - acces mai bun la infrastructură digitală", KindLocation, urban, total),
		newCohort("rural", "Rural/Localități Mici", "Sate și orașe mici - posibil acces limitat la infrastructură", KindLocation, rural, total),
	)
}

func (a *Analyzer) usageCohorts(enc *demographics.Encoder) []Cohort {
	var frequent, occasional, rare []string
	for _, r := range enc.Respondents() {
		score, _ := enc.Value(r, demographics.VarFrequency)
		switch {
		case score >= 4:
			frequent = append(frequent, r.ID)
		case score >= 2:
			occasional = append(occasional, r.ID)
		default:
			rare = append(rare, r.ID)
		}
	}

	total := len(enc.Respondents())
	return nonEmpty(
		newCohort("frequent_users", "Utilizatori Frecvenți", "Zilnic/Săptămânal - utilizatori activi ai serviciilor publice", KindUsage, frequent, total),
		newCohort("occasional_users", "Utilizatori Ocazionali", "Lunar/Rar - utilizare periodică", KindUsage, occasional, total),
		newCohort("rare_users", "Utilizatori Rari", "Niciodată - non-utilizatori sau foarte rar", KindUsage, rare, total),
	)
}

func (a *Analyzer) cohortMetrics(c Cohort, enc *demographics.Encoder, byRespondent map[string][]models.Response) Metrics {
	var responses []models.Response
	for _, id := range c.RespondentIDs {
		responses = append(responses, byRespondent[id]...)
	}

	m := Metrics{
		CohortID:              c.ID,
		CohortName:            c.Name,
		TopFeatures:           a.topFeatures(responses, c.Size),
		PainPoints:            a.painPoints(responses),
		DigitalReadiness:      a.readiness(c, enc),
		FrequencyDistribution: a.frequencyDistribution(c, enc),
	}
	m.AverageSentiment, m.SentimentLabel, m.SentimentDistribution = ratingSentiment(responses)
	return m
}

func (a *Analyzer) topFeatures(responses []models.Response, size int) []FeatureShare {
	counts := make(map[string]int)
	for _, resp := range responses {
		if !slices.Contains(a.cfg.Questions.Features, resp.QuestionID) {
			continue
		}
		for _, choice := range resp.AnswerChoices {
			if choice = strings.TrimSpace(choice); choice != "" {
				counts[choice]++
			}
		}
	}

	out := make([]FeatureShare, 0, len(counts))
	for f, n := range counts {
		share := 0.0
		if size > 0 {
			share = utils.Round(100*float64(n)/float64(size), 1)
		}
		out = append(out, FeatureShare{Feature: f, Count: n, Percentage: share})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Feature < out[j].Feature
	})
	if len(out) > maxTopFeatures {
		out = out[:maxTopFeatures]
	}
	return out
}

// ratingSentiment maps 1..5 ratings onto [-1,1]. The label is mixed when
// neither side dominates but both exceed 30%.
func ratingSentiment(responses []models.Response) (float64, string, Distribution) {
	var sum float64
	counts := make([]int, 3) // positive, neutral, negative
	n := 0
	for _, resp := range responses {
		if !resp.HasRating() {
			continue
		}
		rating := *resp.AnswerRating
		sum += utils.Clamp((float64(rating)-3)/2, -1, 1)
		n++
		switch {
		case rating >= 4:
			counts[0]++
		case rating == 3:
			counts[1]++
		default:
			counts[2]++
		}
	}
	if n == 0 {
		return 0, "neutral", Distribution{Neutral: 100}
	}

	shares := utils.Percentages(counts)
	dist := Distribution{Positive: shares[0], Neutral: shares[1], Negative: shares[2]}
	avg := sum / float64(n)

	label := "neutral"
	switch {
	case avg > 0.3:
		label = "positive"
	case avg < -0.3:
		label = "negative"
	case dist.Positive > 30 && dist.Negative > 30:
		label = "mixed"
	}
	return utils.Round(avg, 2), label, dist
}

func (a *Analyzer) painPoints(responses []models.Response) []PainPoint {
	counts := make(map[string]int)
	texts := 0
	for _, resp := range responses {
		text := utils.CanonicalKey(resp.AnswerText)
		if text == "" {
			continue
		}
		texts++
		if !a.scansForPain(resp.QuestionID) {
			continue
		}
		for _, p := range painPointKeywords {
			for _, kw := range p.keywords {
				if strings.Contains(text, utils.CanonicalKey(kw)) {
					counts[p.issue]++
					break
				}
			}
		}
	}
	if texts == 0 {
		texts = 1
	}

	out := make([]PainPoint, 0, len(counts))
	for _, p := range painPointKeywords {
		n, ok := counts[p.issue]
		if !ok {
			continue
		}
		share := 100 * float64(n) / float64(texts)
		severity := SeverityLow
		switch {
		case share > 40:
			severity = SeverityHigh
		case share > 20:
			severity = SeverityMedium
		}
		out = append(out, PainPoint{Issue: p.issue, Mentions: n, Severity: severity})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Mentions > out[j].Mentions })
	if len(out) > maxPainPoints {
		out = out[:maxPainPoints]
	}
	return out
}

func (a *Analyzer) scansForPain(questionID string) bool {
	for _, fragment := range a.cfg.PainPointQuestions {
		if strings.Contains(questionID, fragment) {
			return true
		}
	}
	return false
}

func (a *Analyzer) readiness(c Cohort, enc *demographics.Encoder) float64 {
	var sum float64
	n := 0
	for _, id := range c.RespondentIDs {
		if rating, ok := enc.Rating(id, a.cfg.Questions.Readiness...); ok {
			sum += float64(rating)
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return utils.Round(sum/float64(n), 1)
}

func (a *Analyzer) frequencyDistribution(c Cohort, enc *demographics.Encoder) []FrequencyShare {
	counts := make(map[string]int)
	answered := 0
	for _, id := range c.RespondentIDs {
		answer, ok := enc.FrequencyAnswer(id)
		if !ok {
			continue
		}
		answered++
		if label, ok := demographics.FrequencyLabel(answer); ok {
			answer = label
		}
		counts[answer]++
	}

	out := make([]FrequencyShare, 0, len(counts))
	for f, n := range counts {
		out = append(out, FrequencyShare{
			Frequency:  f,
			Count:      n,
			Percentage: utils.Round(100*float64(n)/float64(answered), 1),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Frequency < out[j].Frequency
	})
	return out
}

func summarize(cohorts []Cohort, metrics []Metrics, comparisons []Comparison) Summary {
	s := Summary{
		TotalCohorts:   len(cohorts),
		LargestCohort:  notAvailable,
		SmallestCohort: notAvailable,
		MostEngaged:    notAvailable,
	}
	if len(cohorts) > 0 {
		largest, smallest := cohorts[0], cohorts[0]
		for _, c := range cohorts[1:] {
			if c.Size > largest.Size {
				largest = c
			}
			if c.Size < smallest.Size {
				smallest = c
			}
		}
		s.LargestCohort = largest.Name
		s.SmallestCohort = smallest.Name
	}
	if len(metrics) > 0 {
		best, bestShare := metrics[0], dailyShare(metrics[0])
		for _, m := range metrics[1:] {
			if share := dailyShare(m); share > bestShare {
				best, bestShare = m, share
			}
		}
		s.MostEngaged = best.CohortName
	}

	s.KeyFindings = []string{
		fmt.Sprintf("Identificate %d cohorte distincte", s.TotalCohorts),
		fmt.Sprintf("Cea mai mare cohortă: %s", s.LargestCohort),
	}
	if len(metrics) > 0 {
		s.KeyFindings = append(s.KeyFindings, fmt.Sprintf("Cel mai angajat segment: %s", s.MostEngaged))
	}
	for i, c := range comparisons {
		if i == 2 {
			break
		}
		if len(c.Insights) > 0 {
			s.KeyFindings = append(s.KeyFindings, c.Insights[0])
		}
	}
	return s
}

func dailyShare(m Metrics) float64 {
	daily := demographics.FrequencyOrder[0]
	for _, f := range m.FrequencyDistribution {
		if f.Frequency == daily {
			return f.Percentage
		}
	}
	return 0
}
