package features

import "strings"

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Rank orders tiers: high 3, medium 2, low 1.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

// ParsePriority reads a model-provided tier, defaulting to medium.
func ParsePriority(s string) Priority {
	switch p := Priority(strings.ToLower(strings.TrimSpace(s))); p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return p
	}
	return PriorityMedium
}

func higher(a, b Priority) Priority {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

type FeatureRequest struct {
	Feature          string   `json:"feature"`
	Description      string   `json:"description"`
	Priority         Priority `json:"priority"`
	Count            int      `json:"count"`
	Sentiment        float64  `json:"sentiment"`
	RelatedQuestions []string `json:"related_questions"`
}

type PriorityMatrixEntry struct {
	Feature      string   `json:"feature"`
	Popularity   float64  `json:"popularity"`
	AIImportance float64  `json:"ai_importance"`
	Sentiment    float64  `json:"sentiment"`
	Priority     Priority `json:"priority"`
	ROI          float64  `json:"roi"`
}

// ChoiceData holds every option selected for one multiple-choice question.
type ChoiceData struct {
	QuestionID      string
	SelectedOptions []string
	// RespondentCount is the number of respondents who answered; zero when
	// unknown.
	RespondentCount int
}

type TextData struct {
	QuestionID string
	Responses  []string
}

type Input struct {
	RespondentType string
	MultipleChoice []ChoiceData
	TextResponses  []TextData
}

type Output struct {
	Features       []FeatureRequest      `json:"features"`
	PriorityMatrix []PriorityMatrixEntry `json:"priority_matrix"`
}

type Category struct {
	Name     string   `json:"name"`
	Features []string `json:"features"`
}
