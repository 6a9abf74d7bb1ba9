package textanalysis

// Theme is a recurring topic found in free-text answers.
type Theme struct {
	Name      string   `json:"name"`
	Score     float64  `json:"score"`
	Mentions  int      `json:"mentions"`
	Keywords  []string `json:"keywords"`
	Sentiment float64  `json:"sentiment"`
}

type SentimentLabel string

const (
	SentimentPositive SentimentLabel = "positive"
	SentimentNeutral  SentimentLabel = "neutral"
	SentimentNegative SentimentLabel = "negative"
)

// LabelFor thresholds a [-1,1] score at ±0.3.
func LabelFor(score float64) SentimentLabel {
	switch {
	case score > 0.3:
		return SentimentPositive
	case score < -0.3:
		return SentimentNegative
	default:
		return SentimentNeutral
	}
}

// Distribution holds percentages that sum to 100.
type Distribution struct {
	Positive float64 `json:"positive"`
	Neutral  float64 `json:"neutral"`
	Negative float64 `json:"negative"`
}

type SentimentAnalysis struct {
	Overall      float64        `json:"overall"`
	Label        SentimentLabel `json:"label"`
	Distribution Distribution   `json:"distribution"`
	Confidence   float64        `json:"confidence"`
}

// NeutralSentiment is the value used whenever no sentiment could be measured.
func NeutralSentiment() SentimentAnalysis {
	return SentimentAnalysis{
		Label:        SentimentNeutral,
		Distribution: Distribution{Neutral: 100},
	}
}

type WordCount struct {
	Word  string `json:"word"`
	Count int    `json:"count"`
}

type Input struct {
	QuestionID     string
	QuestionText   string
	RespondentType string
	Responses      []string
}

type Output struct {
	Themes        []Theme           `json:"themes"`
	Sentiment     SentimentAnalysis `json:"sentiment"`
	KeyPhrases    []string          `json:"key_phrases"`
	TopQuotes     []string          `json:"top_quotes"`
	Summary       string            `json:"summary"`
	WordFrequency []WordCount       `json:"word_frequency"`
	// ResponseCount is the number of non-blank responses analyzed.
	ResponseCount int  `json:"response_count"`
	Fallback      bool `json:"fallback"`
}
