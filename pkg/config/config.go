package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	SQLite   SQLiteConfig
	Redis    RedisConfig
	LLM      LLMConfig
	Analysis AnalysisConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Host                 string
	Port                 int
	ReadTimeout          int
	WriteTimeout         int
	BodyLimit            int
	MaxRequestsPerMinute int
	AllowedOrigins       []string
	Development          bool
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type LLMConfig struct {
	APIKey     string
	BaseURL    string
	TimeoutSec int
	// Models overrides the model id per profile name.
	Models map[string]string
	// Breaker settings; zero FailureThreshold disables the breaker.
	FailureThreshold int
	OpenTimeoutSec   int
	// MaxAttempts per completion for rate limits and provider 5xx errors.
	MaxAttempts int
}

type AnalysisConfig struct {
	CacheTTLHours      int
	Concurrency        int
	FrequencyQuestion  string
	UsefulnessQuestion string
	FeatureQuestions   []string
	ReadinessQuestions []string
	SecurityQuestions  []string
	UrbanLocalities    []string
	SurveyTypes        []string
	// Retry bounds for persisting insights.
	PersistAttempts int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func (c AnalysisConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLHours) * time.Hour
}

func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// Load reads config.yaml from the usual locations. A missing file is not
// an error; defaults and SURVEY_ANALYTICS_* variables still apply.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile reads the config from path, or searches the default locations
// when path is empty.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/survey-analytics")
	}

	v.SetEnvPrefix("SURVEY_ANALYTICS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) validate() error {
	if c.Analysis.Concurrency < 1 {
		return fmt.Errorf("invalid config: analysis.concurrency must be at least 1, got %d", c.Analysis.Concurrency)
	}
	if c.Analysis.CacheTTLHours < 0 {
		return fmt.Errorf("invalid config: analysis.cacheTTLHours must not be negative")
	}
	if c.Analysis.PersistAttempts < 1 {
		return fmt.Errorf("invalid config: analysis.persistAttempts must be at least 1, got %d", c.Analysis.PersistAttempts)
	}
	if c.Server.MaxRequestsPerMinute < 1 {
		return fmt.Errorf("invalid config: server.maxRequestsPerMinute must be at least 1, got %d", c.Server.MaxRequestsPerMinute)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 300)
	v.SetDefault("server.bodyLimit", 1048576)
	v.SetDefault("server.maxRequestsPerMinute", 30)
	v.SetDefault("server.development", false)

	v.SetDefault("sqlite.path", "./data/survey.db")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	v.SetDefault("llm.timeoutSec", 60)
	v.SetDefault("llm.failureThreshold", 5)
	v.SetDefault("llm.openTimeoutSec", 30)
	v.SetDefault("llm.maxAttempts", 3)

	v.SetDefault("analysis.cacheTTLHours", 24)
	v.SetDefault("analysis.concurrency", 4)
	v.SetDefault("analysis.frequencyQuestion", "q1_frequency")
	v.SetDefault("analysis.usefulnessQuestion", "q2_usefulness")
	v.SetDefault("analysis.featureQuestions", []string{"q4_features", "q8_internal_tools"})
	v.SetDefault("analysis.readinessQuestions", []string{"q3_readiness"})
	v.SetDefault("analysis.securityQuestions", []string{"q6_security", "q11_security"})
	v.SetDefault("analysis.persistAttempts", 3)
	v.SetDefault("analysis.surveyTypes", []string{"citizen", "official"})

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")
}
