package models

import (
	"fmt"
	"time"
)

type RespondentType string

const (
	RespondentCitizen  RespondentType = "citizen"
	RespondentOfficial RespondentType = "official"
)

func (t RespondentType) Valid() bool {
	return t == RespondentCitizen || t == RespondentOfficial
}

func ParseRespondentType(s string) (RespondentType, error) {
	t := RespondentType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown respondent type %q", s)
	}
	return t, nil
}

type QuestionType string

const (
	QuestionText           QuestionType = "text"
	QuestionShortText      QuestionType = "short_text"
	QuestionSingleChoice   QuestionType = "single_choice"
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionRating         QuestionType = "rating"
)

func (t QuestionType) Valid() bool {
	switch t {
	case QuestionText, QuestionShortText, QuestionSingleChoice, QuestionMultipleChoice, QuestionRating:
		return true
	}
	return false
}

// IsFreeText reports whether answers are free-form text.
func (t QuestionType) IsFreeText() bool {
	return t == QuestionText || t == QuestionShortText
}

func (t QuestionType) IsChoice() bool {
	return t == QuestionSingleChoice || t == QuestionMultipleChoice
}

// Unknown labels buckets for respondents missing an attribute.
const Unknown = "Necunoscut"

const UnknownAgeCategory = Unknown

type Respondent struct {
	ID             string         `json:"id"`
	RespondentType RespondentType `json:"respondent_type"`
	AgeCategory    string         `json:"age_category,omitempty"`
	County         string         `json:"county"`
	Locality       string         `json:"locality"`
	Department     string         `json:"department,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

type Response struct {
	ID            string    `json:"id"`
	RespondentID  string    `json:"respondent_id"`
	QuestionID    string    `json:"question_id"`
	AnswerText    string    `json:"answer_text,omitempty"`
	AnswerChoices []string  `json:"answer_choices,omitempty"`
	AnswerRating  *int      `json:"answer_rating,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func (r Response) HasRating() bool {
	return r.AnswerRating != nil
}

type Question struct {
	ID         string       `json:"id"`
	Text       string       `json:"text"`
	Type       QuestionType `json:"type"`
	SurveyType string       `json:"survey_type"`
	OrderIndex int          `json:"order_index"`
}

// Dataset is everything the analytics core reads for one survey type.
type Dataset struct {
	SurveyType  string       `json:"survey_type"`
	Questions   []Question   `json:"questions"`
	Respondents []Respondent `json:"respondents"`
	Responses   []Response   `json:"responses"`
}

// Filter keeps respondents of the given type and their responses. An empty
// type keeps everything.
func (d *Dataset) Filter(t RespondentType) *Dataset {
	if t == "" {
		return d
	}

	out := &Dataset{SurveyType: d.SurveyType, Questions: d.Questions}
	keep := make(map[string]struct{}, len(d.Respondents))
	for _, r := range d.Respondents {
		if r.RespondentType == t {
			out.Respondents = append(out.Respondents, r)
			keep[r.ID] = struct{}{}
		}
	}
	for _, resp := range d.Responses {
		if _, ok := keep[resp.RespondentID]; ok {
			out.Responses = append(out.Responses, resp)
		}
	}
	return out
}

// StoredInsight is a persisted holistic insight row.
type StoredInsight struct {
	ID               string    `json:"id"`
	SurveyType       string    `json:"survey_type"`
	AnalysisID       string    `json:"analysis_id"`
	KeyThemes        string    `json:"key_themes"`
	SentimentScore   float64   `json:"sentiment_score"`
	SentimentLabel   string    `json:"sentiment_label"`
	Recommendations  string    `json:"recommendations"`
	FeatureRequests  string    `json:"feature_requests"`
	AISummary        string    `json:"ai_summary"`
	TotalQuestions   int       `json:"total_questions"`
	TotalResponses   int       `json:"total_responses"`
	ModelVersion     string    `json:"model_version"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	ConfidenceScore  float64   `json:"confidence_score"`
	GeneratedAt      time.Time `json:"generated_at"`
}

type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// AnalysisRun is the audit record of one orchestrator invocation.
type AnalysisRun struct {
	ID                string     `json:"id"`
	SurveyType        string     `json:"survey_type"`
	RespondentType    string     `json:"respondent_type,omitempty"`
	QuestionsAnalyzed int        `json:"questions_analyzed"`
	ResponsesAnalyzed int        `json:"responses_analyzed"`
	TokensUsed        int        `json:"tokens_used"`
	Status            RunStatus  `json:"status"`
	ErrorMessage      string     `json:"error_message,omitempty"`
	StartedAt         time.Time  `json:"started_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
}
