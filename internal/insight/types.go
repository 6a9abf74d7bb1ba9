package insight

import (
	"time"

	"github.com/survey-analytics/engine/internal/cohort"
	"github.com/survey-analytics/engine/internal/correlation"
	"github.com/survey-analytics/engine/internal/demographics"
	"github.com/survey-analytics/engine/internal/features"
	"github.com/survey-analytics/engine/internal/storage/models"
	"github.com/survey-analytics/engine/internal/textanalysis"
)

type Request struct {
	SurveyType     string                `json:"survey_type"`
	RespondentType models.RespondentType `json:"respondent_type,omitempty"`
	ForceRefresh   bool                  `json:"force_refresh"`
}

// Recommendation is one prioritized action proposed by the insights model.
type Recommendation struct {
	Action    string `json:"action"`
	Priority  string `json:"priority"`
	Impact    string `json:"impact"`
	Timeline  string `json:"timeline"`
	Effort    string `json:"effort"`
	Reasoning string `json:"reasoning"`
}

// HolisticInsight is the strategic summary of one survey type. It replaces
// the previous insight for the same survey type.
type HolisticInsight struct {
	SurveyType       string                      `json:"survey_type"`
	KeyThemes        []textanalysis.Theme        `json:"key_themes"`
	SentimentScore   float64                     `json:"sentiment_score"`
	SentimentLabel   textanalysis.SentimentLabel `json:"sentiment_label"`
	Recommendations  []string                    `json:"recommendations"`
	ActionPlan       []Recommendation            `json:"action_plan"`
	FeatureRequests  []string                    `json:"feature_requests"`
	AISummary        string                      `json:"ai_summary"`
	TotalQuestions   int                         `json:"total_questions"`
	TotalResponses   int                         `json:"total_responses"`
	ModelVersion     string                      `json:"model_version"`
	PromptTokens     int                         `json:"prompt_tokens"`
	CompletionTokens int                         `json:"completion_tokens"`
	ConfidenceScore  float64                     `json:"confidence_score"`
	GeneratedAt      time.Time                   `json:"generated_at"`
}

type Metadata struct {
	SurveyType     string                      `json:"survey_type"`
	RespondentType string                      `json:"respondent_type"`
	Respondents    int                         `json:"respondents"`
	Responses      int                         `json:"responses"`
	Questions      int                         `json:"questions"`
	TextQuestions  int                         `json:"text_questions"`
	Counties       int                         `json:"counties"`
	Localities     int                         `json:"localities"`
	MeanSentiment  float64                     `json:"mean_sentiment"`
	SentimentLabel textanalysis.SentimentLabel `json:"sentiment_label"`
	GeneratedAt    time.Time                   `json:"generated_at"`
}

// QuestionAnalysis pairs a free-text question with its analysis.
type QuestionAnalysis struct {
	QuestionID   string              `json:"question_id"`
	QuestionText string              `json:"question_text"`
	Analysis     textanalysis.Output `json:"analysis"`
}

// SecondaryFailure records a secondary analysis omitted from a report.
type SecondaryFailure struct {
	Analysis string `json:"analysis"`
	Error    string `json:"error"`
}

type Report struct {
	AnalysisID        string              `json:"analysis_id"`
	Metadata          Metadata            `json:"metadata"`
	Insight           HolisticInsight     `json:"insight"`
	TextAnalyses      []QuestionAnalysis  `json:"text_analyses"`
	Demographics      demographics.Output `json:"demographics"`
	Features          features.Output     `json:"features"`
	Correlations      *correlation.Report `json:"correlations,omitempty"`
	Cohorts           *cohort.Report      `json:"cohorts,omitempty"`
	SecondaryFailures []SecondaryFailure  `json:"secondary_failures,omitempty"`
	Cached            bool                `json:"cached"`
}
