package demographics

type AgeBucket struct {
	Category   string  `json:"category"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

type CountySpread struct {
	County     string `json:"county"`
	Localities int    `json:"localities"`
	Responses  int    `json:"responses"`
	// Sentiment is the mean rating proxy in [-1,1]; nil without ratings.
	Sentiment *float64 `json:"sentiment,omitempty"`
}

type AgeFeature struct {
	Age     string `json:"age"`
	Feature string `json:"feature"`
	Count   int    `json:"count"`
}

type LocationReadiness struct {
	County         string  `json:"county"`
	Locality       string  `json:"locality"`
	ReadinessScore float64 `json:"readiness_score"`
	Responses      int     `json:"responses"`
}

type FrequencyUsefulness struct {
	Frequency string  `json:"frequency"`
	AvgRating float64 `json:"avg_rating"`
	Responses int     `json:"responses"`
}

type CrossTabs struct {
	AgeXFeatures         []AgeFeature          `json:"age_x_features"`
	LocationXReadiness   []LocationReadiness   `json:"location_x_readiness"`
	FrequencyXUsefulness []FrequencyUsefulness `json:"frequency_x_usefulness"`
}

type Correlation struct {
	Variable1      string  `json:"variable1"`
	Variable2      string  `json:"variable2"`
	Coefficient    float64 `json:"coefficient"`
	PValue         float64 `json:"p_value"`
	Significant    bool    `json:"significant"`
	SampleSize     int     `json:"sample_size"`
	Interpretation string  `json:"interpretation"`
}

type Output struct {
	AgeDistribution  []AgeBucket    `json:"age_distribution"`
	GeographicSpread []CountySpread `json:"geographic_spread"`
	CrossTabs        CrossTabs      `json:"cross_tabs"`
	Correlations     []Correlation  `json:"correlations"`
}

type ChiSquareResult struct {
	ChiSquare        float64 `json:"chi_square"`
	DegreesOfFreedom int     `json:"degrees_of_freedom"`
	PValue           float64 `json:"p_value"`
	Significant      bool    `json:"significant"`
}

type RatingCount struct {
	Rating int `json:"rating"`
	Count  int `json:"count"`
}

type RatingSummary struct {
	Count        int           `json:"count"`
	Average      float64       `json:"average"`
	Median       float64       `json:"median"`
	Mode         float64       `json:"mode"`
	Distribution []RatingCount `json:"distribution"`
	// NPS is the share of top ratings minus the share of ratings of 2 or less.
	NPS float64 `json:"nps"`
}
