package llm

type ProfileName string

const (
	ProfileAnalysis      ProfileName = "analysis"
	ProfileInsights      ProfileName = "insights"
	ProfileSummarization ProfileName = "summarization"
)

// Profile is a named model configuration.
type Profile struct {
	Model       string
	Temperature float32
	MaxTokens   int
}

func DefaultProfiles() map[ProfileName]Profile {
	return map[ProfileName]Profile{
		ProfileAnalysis: {
			Model:       "gpt-4-turbo-preview",
			Temperature: 0.3,
			MaxTokens:   4096,
		},
		ProfileInsights: {
			Model:       "gpt-4",
			Temperature: 0.5,
			MaxTokens:   2048,
		},
		ProfileSummarization: {
			Model:       "gpt-3.5-turbo",
			Temperature: 0.4,
			MaxTokens:   1024,
		},
	}
}
