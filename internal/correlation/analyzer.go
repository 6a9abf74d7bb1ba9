// Package correlation measures pairwise associations between encoded
// survey variables and turns them into findings.
package correlation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/survey-analytics/engine/internal/demographics"
	"github.com/survey-analytics/engine/internal/storage/models"
	"github.com/survey-analytics/engine/pkg/logger"
)

type Strength string

const (
	StrengthVeryWeak   Strength = "very_weak"
	StrengthWeak       Strength = "weak"
	StrengthModerate   Strength = "moderate"
	StrengthStrong     Strength = "strong"
	StrengthVeryStrong Strength = "very_strong"
)

var strengthLabels = map[Strength]string{
	StrengthVeryWeak:   "foarte slabă",
	StrengthWeak:       "slabă",
	StrengthModerate:   "moderată",
	StrengthStrong:     "puternică",
	StrengthVeryStrong: "foarte puternică",
}

type Direction string

const (
	DirectionPositive Direction = "positive"
	DirectionNegative Direction = "negative"
	DirectionNone     Direction = "none"
)

type Result struct {
	Variables      [2]string `json:"variables"`
	Coefficient    float64   `json:"coefficient"`
	PValue         float64   `json:"p_value"`
	Significant    bool      `json:"significant"`
	Strength       Strength  `json:"strength"`
	Direction      Direction `json:"direction"`
	Interpretation string    `json:"interpretation"`
	SampleSize     int       `json:"sample_size"`
}

func (r Result) involves(v demographics.Variable) bool {
	return r.Variables[0] == string(v) || r.Variables[1] == string(v)
}

type Matrix struct {
	Variables    []string    `json:"variables"`
	Coefficients [][]float64 `json:"coefficients"`
	PValues      [][]float64 `json:"p_values"`
	SampleSizes  [][]int     `json:"sample_sizes"`
}

type Report struct {
	Correlations    []Result `json:"correlations"`
	Matrix          *Matrix  `json:"matrix,omitempty"`
	KeyFindings     []string `json:"key_findings"`
	Recommendations []string `json:"recommendations"`
}

// DefaultPairs are analyzed when Config.Pairs is empty.
var DefaultPairs = [][2]demographics.Variable{
	{demographics.VarAgeCategory, demographics.VarDigitalReadiness},
	{demographics.VarFrequency, demographics.VarUsefulness},
	{demographics.VarAgeCategory, demographics.VarSecurity},
	{demographics.VarCounty, demographics.VarDigitalReadiness},
	{demographics.VarFrequency, demographics.VarSecurity},
}

// MatrixVariables are the ordinal variables of the full matrix.
var MatrixVariables = []demographics.Variable{
	demographics.VarAgeCategory,
	demographics.VarDigitalReadiness,
	demographics.VarFrequency,
	demographics.VarUsefulness,
	demographics.VarSecurity,
}

type Config struct {
	Questions     demographics.QuestionMap
	Pairs         [][2]demographics.Variable
	IncludeMatrix bool
}

type Analyzer struct {
	cfg Config
}

func NewAnalyzer(cfg Config) *Analyzer {
	if len(cfg.Pairs) == 0 {
		cfg.Pairs = DefaultPairs
	}
	return &Analyzer{cfg: cfg}
}

var errNilDataset = errors.New("nil dataset")

func (a *Analyzer) Analyze(ctx context.Context, ds *models.Dataset) (*Report, error) {
	if ds == nil {
		return nil, errNilDataset
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	enc := demographics.NewEncoder(a.cfg.Questions, ds.Respondents, ds.Responses)

	report := &Report{Correlations: []Result{}}
	for _, pair := range a.cfg.Pairs {
		if r, ok := analyzePair(enc, pair[0], pair[1]); ok {
			report.Correlations = append(report.Correlations, r)
		}
	}
	if a.cfg.IncludeMatrix {
		report.Matrix = BuildMatrix(enc, MatrixVariables)
	}
	report.KeyFindings = KeyFindings(report.Correlations)
	report.Recommendations = Recommendations(report.Correlations)

	logger.Info("Correlation analysis complete",
		zap.String("survey_type", ds.SurveyType),
		zap.Int("correlations", len(report.Correlations)),
		zap.Bool("matrix", report.Matrix != nil),
	)
	return report, nil
}

func analyzePair(enc *demographics.Encoder, v1, v2 demographics.Variable) (Result, bool) {
	c, ok := demographics.Correlate(enc, v1, v2)
	if !ok {
		return Result{}, false
	}

	strength := StrengthFor(c.Coefficient)
	direction := DirectionFor(c.Coefficient)
	return Result{
		Variables:      [2]string{c.Variable1, c.Variable2},
		Coefficient:    c.Coefficient,
		PValue:         c.PValue,
		Significant:    c.Significant,
		Strength:       strength,
		Direction:      direction,
		Interpretation: Interpret(v1, v2, c.Coefficient, strength, direction),
		SampleSize:     c.SampleSize,
	}, true
}

func StrengthFor(r float64) Strength {
	switch abs := math.Abs(r); {
	case abs >= 0.8:
		return StrengthVeryStrong
	case abs >= 0.6:
		return StrengthStrong
	case abs >= 0.4:
		return StrengthModerate
	case abs >= 0.2:
		return StrengthWeak
	default:
		return StrengthVeryWeak
	}
}

func DirectionFor(r float64) Direction {
	switch {
	case math.Abs(r) < 0.1:
		return DirectionNone
	case r > 0:
		return DirectionPositive
	default:
		return DirectionNegative
	}
}

func Interpret(v1, v2 demographics.Variable, r float64, s Strength, d Direction) string {
	if d == DirectionNone {
		return fmt.Sprintf("Nu există o corelație semnificativă între %s și %s.", v1.Label(), v2.Label())
	}
	direction := "pozitivă"
	if d == DirectionNegative {
		direction = "negativă"
	}
	return fmt.Sprintf("Corelație %s %s (r=%.2f) între %s și %s.",
		strengthLabels[s], direction, r, v1.Label(), v2.Label())
}

// BuildMatrix correlates every pair of variables. The diagonal is 1 with
// p-value 0; pairs with too few joint observations stay at 0 with p-value 1.
func BuildMatrix(enc *demographics.Encoder, variables []demographics.Variable) *Matrix {
	n := len(variables)
	m := &Matrix{
		Variables:    make([]string, n),
		Coefficients: make([][]float64, n),
		PValues:      make([][]float64, n),
		SampleSizes:  make([][]int, n),
	}
	for i, v := range variables {
		m.Variables[i] = string(v)
		m.Coefficients[i] = make([]float64, n)
		m.PValues[i] = make([]float64, n)
		m.SampleSizes[i] = make([]int, n)
	}

	for i := 0; i < n; i++ {
		m.Coefficients[i][i] = 1
		m.SampleSizes[i][i] = len(enc.Respondents())
		for j := i + 1; j < n; j++ {
			m.PValues[i][j], m.PValues[j][i] = 1, 1
			c, ok := demographics.Correlate(enc, variables[i], variables[j])
			if !ok {
				continue
			}
			m.Coefficients[i][j], m.Coefficients[j][i] = c.Coefficient, c.Coefficient
			m.PValues[i][j], m.PValues[j][i] = c.PValue, c.PValue
			m.SampleSizes[i][j], m.SampleSizes[j][i] = c.SampleSize, c.SampleSize
		}
	}
	return m
}

func KeyFindings(results []Result) []string {
	var findings []string

	if r, ok := strongest(results, DirectionPositive); ok {
		findings = append(findings, fmt.Sprintf("Cea mai puternică corelație pozitivă: %s (p<0.05)", r.Interpretation))
	}
	if r, ok := strongest(results, DirectionNegative); ok {
		findings = append(findings, fmt.Sprintf("Cea mai puternică corelație negativă: %s (p<0.05)", r.Interpretation))
	}

	significant, strong := 0, 0
	for _, r := range results {
		if !r.Significant {
			continue
		}
		significant++
		if r.Strength == StrengthStrong || r.Strength == StrengthVeryStrong {
			strong++
		}
	}
	findings = append(findings, fmt.Sprintf("%d din %d corelații sunt semnificative statistic (p<0.05)", significant, len(results)))
	if strong > 0 {
		findings = append(findings, fmt.Sprintf("Corelații puternice identificate: %d", strong))
	}
	return findings
}

func strongest(results []Result, d Direction) (Result, bool) {
	var candidates []Result
	for _, r := range results {
		if r.Direction == d && r.Significant {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) == 0 {
		return Result{}, false
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return math.Abs(candidates[i].Coefficient) > math.Abs(candidates[j].Coefficient)
	})
	return candidates[0], true
}

const (
	recommendAge      = "Personalizați interfața și funcționalitățile pe baza categoriei de vârstă a utilizatorilor"
	recommendUsage    = "Utilizatorii frecvenți consideră serviciile mai utile - prioritizați îmbunătățiri pentru user experience"
	recommendSecurity = "Preocupările de securitate variază semnificativ - implementați comunicare transparentă despre măsurile de securitate"
	recommendRegional = "Există diferențe regionale - considerați campanii de adoptare adaptate local"
	recommendDefault  = "Continuați colectarea datelor pentru identificarea unor corelații semnificative"
)

func Recommendations(results []Result) []string {
	anySignificant := func(match func(Result) bool) bool {
		for _, r := range results {
			if r.Significant && match(r) {
				return true
			}
		}
		return false
	}

	var out []string
	if anySignificant(func(r Result) bool { return r.involves(demographics.VarAgeCategory) }) {
		out = append(out, recommendAge)
	}
	if anySignificant(func(r Result) bool {
		return r.involves(demographics.VarFrequency) && r.involves(demographics.VarUsefulness) && r.Direction == DirectionPositive
	}) {
		out = append(out, recommendUsage)
	}
	if anySignificant(func(r Result) bool { return r.involves(demographics.VarSecurity) }) {
		out = append(out, recommendSecurity)
	}
	if anySignificant(func(r Result) bool { return r.involves(demographics.VarCounty) }) {
		out = append(out, recommendRegional)
	}
	if len(out) == 0 {
		out = append(out, recommendDefault)
	}
	return out
}
