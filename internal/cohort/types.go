package cohort

type Kind string

const (
	KindAge      Kind = "age"
	KindLocation Kind = "location"
	KindUsage    Kind = "usage"
)

type Cohort struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	Kind          Kind     `json:"kind"`
	RespondentIDs []string `json:"respondent_ids"`
	Size          int      `json:"size"`
	Percentage    float64  `json:"percentage"`
}

type FeatureShare struct {
	Feature    string  `json:"feature"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

type FrequencyShare struct {
	Frequency  string  `json:"frequency"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

type PainPoint struct {
	Issue    string   `json:"issue"`
	Mentions int      `json:"mentions"`
	Severity Severity `json:"severity"`
}

type Distribution struct {
	Positive float64 `json:"positive"`
	Neutral  float64 `json:"neutral"`
	Negative float64 `json:"negative"`
}

type Metrics struct {
	CohortID              string           `json:"cohort_id"`
	CohortName            string           `json:"cohort_name"`
	TopFeatures           []FeatureShare   `json:"top_features"`
	AverageSentiment      float64          `json:"average_sentiment"`
	SentimentLabel        string           `json:"sentiment_label"`
	SentimentDistribution Distribution     `json:"sentiment_distribution"`
	PainPoints            []PainPoint      `json:"pain_points"`
	DigitalReadiness      float64          `json:"digital_readiness"`
	FrequencyDistribution []FrequencyShare `json:"frequency_distribution"`
}

type FeatureDifference struct {
	Feature           string  `json:"feature"`
	Cohort1Percentage float64 `json:"cohort1_percentage"`
	Cohort2Percentage float64 `json:"cohort2_percentage"`
	Difference        float64 `json:"difference"`
	Significant       bool    `json:"significant"`
}

type Comparison struct {
	Cohort1             string              `json:"cohort1"`
	Cohort2             string              `json:"cohort2"`
	FeatureDifferences  []FeatureDifference `json:"feature_differences"`
	SentimentDifference float64             `json:"sentiment_difference"`
	ReadinessDifference float64             `json:"readiness_difference"`
	Insights            []string            `json:"insights"`
	Recommendations     []string            `json:"recommendations"`
}

type Summary struct {
	TotalCohorts   int      `json:"total_cohorts"`
	LargestCohort  string   `json:"largest_cohort"`
	SmallestCohort string   `json:"smallest_cohort"`
	MostEngaged    string   `json:"most_engaged"`
	KeyFindings    []string `json:"key_findings"`
}

type Report struct {
	Cohorts     []Cohort     `json:"cohorts"`
	Metrics     []Metrics    `json:"metrics"`
	Comparisons []Comparison `json:"comparisons"`
	Summary     Summary      `json:"summary"`
}
