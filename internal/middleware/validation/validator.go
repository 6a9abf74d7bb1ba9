package validation

import (
	"regexp"
	"slices"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/survey-analytics/engine/internal/insight"
	"github.com/survey-analytics/engine/internal/storage/models"
)

// AnalyzeRequestKey holds the validated *insight.Request in fiber locals.
const AnalyzeRequestKey = "analyze_request"

var surveyTypePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,63}$`)

type Config struct {
	// SurveyTypes restricts accepted survey types; empty accepts any
	// well-formed identifier.
	SurveyTypes         []string
	AllowedContentTypes []string
	Logger              *zap.Logger
}

func (cfg Config) withDefaults() Config {
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{"application/json"}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return cfg
}

// Middleware rejects write requests with a body of an unexpected type.
func Middleware(cfg Config) fiber.Handler {
	cfg = cfg.withDefaults()

	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodPost && c.Method() != fiber.MethodPut {
			return c.Next()
		}

		contentType := c.Get(fiber.HeaderContentType)
		if contentType == "" {
			return c.Next()
		}
		for _, allowed := range cfg.AllowedContentTypes {
			if strings.HasPrefix(contentType, allowed) {
				return c.Next()
			}
		}

		return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
			"error": "Unsupported content type",
		})
	}
}

// AnalyzeRequest parses and checks the analyze body, then stores it under
// AnalyzeRequestKey.
func AnalyzeRequest(cfg Config) fiber.Handler {
	cfg = cfg.withDefaults()

	return func(c *fiber.Ctx) error {
		var body struct {
			SurveyType     string `json:"survey_type"`
			RespondentType string `json:"respondent_type"`
			ForceRefresh   bool   `json:"force_refresh"`
		}
		if err := c.BodyParser(&body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid JSON format",
			})
		}

		surveyType := sanitizeString(body.SurveyType)
		if msg := checkSurveyType(cfg, surveyType); msg != "" {
			cfg.Logger.Warn("Rejected analyze request",
				zap.String("ip", c.IP()),
				zap.String("survey_type", surveyType),
			)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": msg,
				"field": "survey_type",
			})
		}

		respondentType := models.RespondentType(sanitizeString(body.RespondentType))
		if respondentType != "" && !respondentType.Valid() {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "respondent_type must be citizen or official",
				"field": "respondent_type",
			})
		}

		c.Locals(AnalyzeRequestKey, &insight.Request{
			SurveyType:     surveyType,
			RespondentType: respondentType,
			ForceRefresh:   body.ForceRefresh,
		})
		return c.Next()
	}
}

// SurveyTypeParam checks the :surveyType route parameter.
func SurveyTypeParam(cfg Config) fiber.Handler {
	cfg = cfg.withDefaults()

	return func(c *fiber.Ctx) error {
		if msg := checkSurveyType(cfg, c.Params("surveyType")); msg != "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": msg,
				"field": "survey_type",
			})
		}
		return c.Next()
	}
}

func checkSurveyType(cfg Config, surveyType string) string {
	switch {
	case surveyType == "":
		return "survey_type is required"
	case !surveyTypePattern.MatchString(surveyType):
		return "survey_type must be a lowercase identifier"
	case len(cfg.SurveyTypes) > 0 && !slices.Contains(cfg.SurveyTypes, surveyType):
		return "survey_type must be one of " + strings.Join(cfg.SurveyTypes, ", ")
	}
	return ""
}

func sanitizeString(input string) string {
	input = strings.TrimSpace(input)
	input = strings.ReplaceAll(input, "\x00", "")
	return input
}
