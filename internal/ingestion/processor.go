package ingestion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/survey-analytics/engine/internal/metrics"
	"github.com/survey-analytics/engine/internal/storage/models"
	"github.com/survey-analytics/engine/pkg/logger"
	"github.com/survey-analytics/engine/pkg/utils"
)

const maxReportedIssues = 5

// ErrInvalidDataset marks input rejected before anything was stored.
var ErrInvalidDataset = eris.New("ingestion: invalid dataset")

// Importer persists a validated dataset.
type Importer interface {
	ImportDataset(ctx context.Context, ds *models.Dataset) error
}

// Summary counts what one import wrote and skipped.
type Summary struct {
	SurveyType  string `json:"survey_type"`
	Questions   int    `json:"questions"`
	Respondents int    `json:"respondents"`
	Responses   int    `json:"responses"`
	Skipped     int    `json:"skipped"`
	// Checksum is the sha256 of the raw input.
	Checksum string `json:"checksum"`
}

type Processor struct {
	store Importer
	now   func() time.Time
}

func NewProcessor(store Importer) *Processor {
	return &Processor{
		store: store,
		now:   time.Now,
	}
}

func (p *Processor) ProcessFile(ctx context.Context, path string) (*Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingestion: open %s", path)
	}
	defer f.Close()

	return p.Process(ctx, f)
}

// Process reads a JSON dataset, validates and normalizes it, then imports it
// as a whole. Nothing is written when any record is invalid.
func (p *Processor) Process(ctx context.Context, r io.Reader) (*Summary, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "ingestion: read dataset")
	}

	var ds models.Dataset
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&ds); err != nil {
		return nil, eris.Wrapf(ErrInvalidDataset, "decode dataset: %v", err)
	}

	summary, err := p.Normalize(&ds)
	if err != nil {
		return nil, err
	}
	summary.Checksum = utils.HashString(string(raw))

	logger.Info("Importing dataset",
		zap.String("survey_type", ds.SurveyType),
		zap.Int("questions", summary.Questions),
		zap.Int("respondents", summary.Respondents),
		zap.Int("responses", summary.Responses),
		zap.Int("skipped", summary.Skipped),
		zap.String("checksum", summary.Checksum),
	)

	if err := p.store.ImportDataset(ctx, &ds); err != nil {
		return nil, eris.Wrap(err, "ingestion: store dataset")
	}

	metrics.RecordsImported.WithLabelValues("question").Add(float64(summary.Questions))
	metrics.RecordsImported.WithLabelValues("respondent").Add(float64(summary.Respondents))
	metrics.RecordsImported.WithLabelValues("response").Add(float64(summary.Responses))

	return summary, nil
}

// Normalize fills ids and timestamps, trims answers and drops empty
// responses. It fails listing the first invalid records.
func (p *Processor) Normalize(ds *models.Dataset) (*Summary, error) {
	ds.SurveyType = strings.TrimSpace(ds.SurveyType)
	if ds.SurveyType == "" {
		return nil, eris.Wrap(ErrInvalidDataset, "survey_type is required")
	}

	var issues []string
	now := p.now().UTC()

	questions := make(map[string]struct{}, len(ds.Questions))
	for i := range ds.Questions {
		q := &ds.Questions[i]
		q.ID = strings.TrimSpace(q.ID)
		if q.ID == "" {
			issues = append(issues, fmt.Sprintf("question %d: missing id", i))
			continue
		}
		if !q.Type.Valid() {
			issues = append(issues, fmt.Sprintf("question %s: unsupported type %q", q.ID, q.Type))
		}
		if q.SurveyType == "" {
			q.SurveyType = ds.SurveyType
		}
		if q.OrderIndex == 0 {
			q.OrderIndex = i
		}
		questions[q.ID] = struct{}{}
	}

	respondents := make(map[string]struct{}, len(ds.Respondents))
	for i := range ds.Respondents {
		r := &ds.Respondents[i]
		if r.ID == "" {
			r.ID = uuid.New().String()
		}
		if !r.RespondentType.Valid() {
			issues = append(issues, fmt.Sprintf("respondent %s: unknown respondent_type %q", r.ID, r.RespondentType))
		}
		r.AgeCategory = strings.TrimSpace(r.AgeCategory)
		r.County = strings.TrimSpace(r.County)
		r.Locality = strings.TrimSpace(r.Locality)
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		if r.UpdatedAt.IsZero() {
			r.UpdatedAt = r.CreatedAt
		}
		respondents[r.ID] = struct{}{}
	}

	kept := ds.Responses[:0]
	skipped := 0
	for i, resp := range ds.Responses {
		if _, ok := respondents[resp.RespondentID]; !ok {
			issues = append(issues, fmt.Sprintf("response %d: unknown respondent %q", i, resp.RespondentID))
			continue
		}
		if _, ok := questions[resp.QuestionID]; !ok {
			issues = append(issues, fmt.Sprintf("response %d: unknown question %q", i, resp.QuestionID))
			continue
		}
		if resp.AnswerRating != nil && *resp.AnswerRating < 0 {
			issues = append(issues, fmt.Sprintf("response %d: negative rating", i))
			continue
		}

		resp.AnswerText = strings.TrimSpace(resp.AnswerText)
		resp.AnswerChoices = trimChoices(resp.AnswerChoices)
		if resp.AnswerText == "" && len(resp.AnswerChoices) == 0 && resp.AnswerRating == nil {
			skipped++
			continue
		}

		if resp.ID == "" {
			resp.ID = ResponseID(resp.RespondentID, resp.QuestionID)
		}
		if resp.CreatedAt.IsZero() {
			resp.CreatedAt = now
		}
		kept = append(kept, resp)
	}
	ds.Responses = kept

	if len(issues) > 0 {
		shown := issues[:min(len(issues), maxReportedIssues)]
		return nil, eris.Wrapf(ErrInvalidDataset, "%d invalid records: %s", len(issues), strings.Join(shown, "; "))
	}

	return &Summary{
		SurveyType:  ds.SurveyType,
		Questions:   len(ds.Questions),
		Respondents: len(ds.Respondents),
		Responses:   len(ds.Responses),
		Skipped:     skipped,
	}, nil
}

// ResponseID derives a stable id so that re-importing a file updates rows
// instead of duplicating them.
func ResponseID(respondentID, questionID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(respondentID+"/"+questionID)).String()
}

func trimChoices(choices []string) []string {
	out := choices[:0]
	for _, c := range choices {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
