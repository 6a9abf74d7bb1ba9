package demographics

import (
	"strings"

	"github.com/survey-analytics/engine/internal/storage/models"
	"github.com/survey-analytics/engine/pkg/utils"
)

// QuestionMap names the questions that carry derived variables.
type QuestionMap struct {
	Frequency  string
	Usefulness string
	Readiness  []string
	Features   []string
	Security   []string
}

func DefaultQuestionMap() QuestionMap {
	return QuestionMap{
		Frequency:  "q1_frequency",
		Usefulness: "q2_usefulness",
		Readiness:  []string{"q3_readiness"},
		Features:   []string{"q4_features", "q8_internal_tools"},
		Security:   []string{"q6_security", "q11_security"},
	}
}

// Variable is a numeric encoding of a respondent attribute or answer.
type Variable string

const (
	VarAgeCategory      Variable = "age_category"
	VarCounty           Variable = "county"
	VarDigitalReadiness Variable = "digital_readiness"
	VarFrequency        Variable = "frequency"
	VarUsefulness       Variable = "usefulness_rating"
	VarSecurity         Variable = "security_concerns"
)

var variableLabels = map[Variable]string{
	VarAgeCategory:      "categoria de vârstă",
	VarCounty:           "județul",
	VarDigitalReadiness: "pregătirea digitală",
	VarFrequency:        "frecvența de utilizare",
	VarUsefulness:       "evaluarea utilității",
	VarSecurity:         "preocupările de securitate",
}

// Label is the human-readable name used in generated text.
func (v Variable) Label() string {
	if l, ok := variableLabels[v]; ok {
		return l
	}
	return string(v)
}

// AgeOrder is the ordinal scale of age categories.
var AgeOrder = []string{"18-25", "26-35", "36-45", "46-60", "60+"}

// FrequencyOrder lists usage frequency answers from most to least frequent.
var FrequencyOrder = []string{"Zilnic", "Săptămânal", "Lunar", "Rar", "Niciodată"}

var frequencyScores = map[string]float64{
	"zilnic":     5,
	"saptamanal": 4,
	"lunar":      3,
	"rar":        2,
	"niciodata":  1,
}

// AgeRank returns the 1-based position of category on AgeOrder.
func AgeRank(category string) (int, bool) {
	for i, c := range AgeOrder {
		if c == category {
			return i + 1, true
		}
	}
	return 0, false
}

// FrequencyScore maps a frequency answer to 1..5, ignoring case and
// diacritics.
func FrequencyScore(answer string) (float64, bool) {
	score, ok := frequencyScores[utils.CanonicalKey(answer)]
	return score, ok
}

// FrequencyLabel returns the canonical spelling of a frequency answer.
func FrequencyLabel(answer string) (string, bool) {
	key := utils.CanonicalKey(answer)
	for _, f := range FrequencyOrder {
		if utils.CanonicalKey(f) == key {
			return f, true
		}
	}
	return "", false
}

// countyCode folds a county name into a stable nominal code in [0,100).
func countyCode(county string) float64 {
	var h int32
	for _, r := range county {
		h = h*31 + int32(r)
	}
	code := int(h) % 100
	if code < 0 {
		code = -code
	}
	return float64(code)
}

// Encoder resolves Variables for respondents from their responses.
type Encoder struct {
	questions    QuestionMap
	respondents  []models.Respondent
	byRespondent map[string]map[string]models.Response
}

func NewEncoder(questions QuestionMap, respondents []models.Respondent, responses []models.Response) *Encoder {
	byRespondent := make(map[string]map[string]models.Response, len(respondents))
	for _, resp := range responses {
		answers, ok := byRespondent[resp.RespondentID]
		if !ok {
			answers = make(map[string]models.Response)
			byRespondent[resp.RespondentID] = answers
		}
		// first answer wins
		if _, seen := answers[resp.QuestionID]; !seen {
			answers[resp.QuestionID] = resp
		}
	}
	return &Encoder{
		questions:    questions,
		respondents:  respondents,
		byRespondent: byRespondent,
	}
}

func (e *Encoder) Respondents() []models.Respondent {
	return e.respondents
}

// Answer returns the respondent's answer to questionID.
func (e *Encoder) Answer(respondentID, questionID string) (models.Response, bool) {
	resp, ok := e.byRespondent[respondentID][questionID]
	return resp, ok
}

// Rating returns the first rating among questionIDs.
func (e *Encoder) Rating(respondentID string, questionIDs ...string) (int, bool) {
	for _, id := range questionIDs {
		if resp, ok := e.Answer(respondentID, id); ok && resp.HasRating() {
			return *resp.AnswerRating, true
		}
	}
	return 0, false
}

// FrequencyAnswer returns the respondent's usage frequency answer text.
func (e *Encoder) FrequencyAnswer(respondentID string) (string, bool) {
	resp, ok := e.Answer(respondentID, e.questions.Frequency)
	if !ok {
		return "", false
	}
	if text := strings.TrimSpace(resp.AnswerText); text != "" {
		return text, true
	}
	if len(resp.AnswerChoices) > 0 {
		return resp.AnswerChoices[0], true
	}
	return "", false
}

// Value encodes v for respondent r.
func (e *Encoder) Value(r models.Respondent, v Variable) (float64, bool) {
	switch v {
	case VarAgeCategory:
		rank, ok := AgeRank(r.AgeCategory)
		return float64(rank), ok
	case VarCounty:
		if strings.TrimSpace(r.County) == "" {
			return 0, false
		}
		return countyCode(r.County), true
	case VarDigitalReadiness:
		rating, ok := e.Rating(r.ID, e.questions.Readiness...)
		return float64(rating), ok
	case VarUsefulness:
		rating, ok := e.Rating(r.ID, e.questions.Usefulness)
		return float64(rating), ok
	case VarSecurity:
		rating, ok := e.Rating(r.ID, e.questions.Security...)
		return float64(rating), ok
	case VarFrequency:
		answer, ok := e.FrequencyAnswer(r.ID)
		if !ok {
			return 0, false
		}
		return FrequencyScore(answer)
	}
	return 0, false
}

// Pairs returns the joint observations of v1 and v2 in respondent order.
func (e *Encoder) Pairs(v1, v2 Variable) (xs, ys []float64) {
	for _, r := range e.respondents {
		x, ok := e.Value(r, v1)
		if !ok {
			continue
		}
		y, ok := e.Value(r, v2)
		if !ok {
			continue
		}
		xs = append(xs, x)
		ys = append(ys, y)
	}
	return xs, ys
}
