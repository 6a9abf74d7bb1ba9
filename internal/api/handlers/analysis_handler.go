package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/survey-analytics/engine/internal/insight"
	"github.com/survey-analytics/engine/internal/middleware/validation"
	"github.com/survey-analytics/engine/internal/storage/models"
	"github.com/survey-analytics/engine/internal/storage/sqlite"
	"github.com/survey-analytics/engine/pkg/logger"
)

const maxInsightHistory = 50

type Analyzer interface {
	Analyze(ctx context.Context, req insight.Request) (*insight.Report, error)
}

type InsightReader interface {
	LatestInsight(ctx context.Context, surveyType string) (*models.StoredInsight, error)
	ListInsights(ctx context.Context, surveyType string, limit int) ([]models.StoredInsight, error)
}

type AnalysisHandler struct {
	engine   Analyzer
	insights InsightReader
}

func NewAnalysisHandler(engine Analyzer, insights InsightReader) *AnalysisHandler {
	return &AnalysisHandler{
		engine:   engine,
		insights: insights,
	}
}

// Analyze expects validation.AnalyzeRequest to have run first.
func (h *AnalysisHandler) Analyze(c *fiber.Ctx) error {
	req, ok := c.Locals(validation.AnalyzeRequestKey).(*insight.Request)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	report, err := h.engine.Analyze(c.UserContext(), *req)
	if err != nil {
		return analysisError(c, req.SurveyType, err)
	}

	return c.JSON(report)
}

func analysisError(c *fiber.Ctx, surveyType string, err error) error {
	var verr *insight.ValidationError
	if errors.As(err, &verr) {
		status := fiber.StatusBadRequest
		if errors.Is(err, insight.ErrNoQuestions) || errors.Is(err, insight.ErrNoRespondents) || errors.Is(err, insight.ErrNoResponses) {
			status = fiber.StatusUnprocessableEntity
		}
		return c.Status(status).JSON(fiber.Map{
			"error": verr.Error(),
			"field": verr.Field,
		})
	}

	logger.Error("Failed to analyze survey", zap.String("survey_type", surveyType), zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Failed to analyze survey",
	})
}

// LatestInsight returns the stored insight that currently represents a
// survey type.
func (h *AnalysisHandler) LatestInsight(c *fiber.Ctx) error {
	surveyType := c.Params("surveyType")

	stored, err := h.insights.LatestInsight(c.UserContext(), surveyType)
	if errors.Is(err, sqlite.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "No insight generated for survey type " + surveyType,
		})
	}
	if err != nil {
		logger.Error("Failed to load insight", zap.String("survey_type", surveyType), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load insight",
		})
	}

	return c.JSON(newInsightView(stored))
}

func (h *AnalysisHandler) InsightHistory(c *fiber.Ctx) error {
	surveyType := c.Params("surveyType")

	limit, err := strconv.Atoi(c.Query("limit", "10"))
	if err != nil || limit < 1 || limit > maxInsightHistory {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "limit must be between 1 and " + strconv.Itoa(maxInsightHistory),
		})
	}

	stored, err := h.insights.ListInsights(c.UserContext(), surveyType, limit)
	if err != nil {
		logger.Error("Failed to list insights", zap.String("survey_type", surveyType), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list insights",
		})
	}

	views := make([]insightView, 0, len(stored))
	for i := range stored {
		views = append(views, newInsightView(&stored[i]))
	}

	return c.JSON(fiber.Map{
		"survey_type": surveyType,
		"history":     views,
	})
}

// insightView exposes the JSON columns of a stored insight as nested JSON.
type insightView struct {
	*models.StoredInsight
	KeyThemes       json.RawMessage `json:"key_themes"`
	Recommendations json.RawMessage `json:"recommendations"`
	FeatureRequests json.RawMessage `json:"feature_requests"`
}

func newInsightView(s *models.StoredInsight) insightView {
	return insightView{
		StoredInsight:   s,
		KeyThemes:       rawOrNull(s.KeyThemes),
		Recommendations: rawOrNull(s.Recommendations),
		FeatureRequests: rawOrNull(s.FeatureRequests),
	}
}

func rawOrNull(s string) json.RawMessage {
	if s == "" || !json.Valid([]byte(s)) {
		return json.RawMessage("null")
	}
	return json.RawMessage(s)
}
