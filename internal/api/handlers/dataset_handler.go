package handlers

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/survey-analytics/engine/internal/ingestion"
	"github.com/survey-analytics/engine/pkg/logger"
)

type DatasetImporter interface {
	Process(ctx context.Context, r io.Reader) (*ingestion.Summary, error)
}

// CacheInvalidator drops cached analyses once new data lands.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, analysisType string) error
}

type DatasetHandler struct {
	importer DatasetImporter
	cache    CacheInvalidator
}

func NewDatasetHandler(importer DatasetImporter, cache CacheInvalidator) *DatasetHandler {
	return &DatasetHandler{
		importer: importer,
		cache:    cache,
	}
}

func (h *DatasetHandler) Import(c *fiber.Ctx) error {
	if len(c.Body()) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Dataset body is required",
		})
	}

	summary, err := h.importer.Process(c.UserContext(), bytes.NewReader(c.Body()))
	if errors.Is(err, ingestion.ErrInvalidDataset) {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if err != nil {
		logger.Error("Failed to import dataset", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to import dataset",
		})
	}

	if h.cache != nil {
		if err := h.cache.Invalidate(c.UserContext(), ""); err != nil {
			logger.Warn("Failed to invalidate analysis cache", zap.Error(err))
		}
	}

	return c.Status(fiber.StatusCreated).JSON(summary)
}
