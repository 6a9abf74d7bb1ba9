package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/survey-analytics/engine/internal/storage/models"
	"github.com/survey-analytics/engine/pkg/logger"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("not found")

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	// Pragmas go in the DSN so that every pooled connection enforces them.
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS survey_questions (
		id TEXT PRIMARY KEY,
		text TEXT NOT NULL,
		type TEXT NOT NULL,
		survey_type TEXT NOT NULL,
		order_index INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_questions_survey ON survey_questions(survey_type);

	CREATE TABLE IF NOT EXISTS survey_respondents (
		id TEXT PRIMARY KEY,
		respondent_type TEXT NOT NULL,
		age_category TEXT,
		county TEXT NOT NULL DEFAULT '',
		locality TEXT NOT NULL DEFAULT '',
		department TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_respondents_type ON survey_respondents(respondent_type);

	CREATE TABLE IF NOT EXISTS survey_responses (
		id TEXT PRIMARY KEY,
		respondent_id TEXT NOT NULL,
		question_id TEXT NOT NULL,
		answer_text TEXT,
		answer_choices TEXT,
		answer_rating INTEGER,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (respondent_id) REFERENCES survey_respondents(id) ON DELETE CASCADE,
		FOREIGN KEY (question_id) REFERENCES survey_questions(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_responses_question ON survey_responses(question_id);
	CREATE INDEX IF NOT EXISTS idx_responses_respondent ON survey_responses(respondent_id);

	CREATE TABLE IF NOT EXISTS survey_holistic_insights (
		id TEXT PRIMARY KEY,
		survey_type TEXT NOT NULL,
		analysis_id TEXT NOT NULL,
		key_themes TEXT NOT NULL,
		sentiment_score REAL NOT NULL,
		sentiment_label TEXT NOT NULL,
		recommendations TEXT NOT NULL,
		feature_requests TEXT NOT NULL,
		ai_summary TEXT,
		total_questions INTEGER NOT NULL,
		total_responses INTEGER NOT NULL,
		model_version TEXT,
		prompt_tokens INTEGER DEFAULT 0,
		completion_tokens INTEGER DEFAULT 0,
		confidence_score REAL,
		generated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_insights_survey ON survey_holistic_insights(survey_type, generated_at);

	CREATE TABLE IF NOT EXISTS analysis_runs (
		id TEXT PRIMARY KEY,
		survey_type TEXT NOT NULL,
		respondent_type TEXT,
		questions_analyzed INTEGER NOT NULL DEFAULT 0,
		responses_analyzed INTEGER NOT NULL DEFAULT 0,
		tokens_used INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		error_message TEXT,
		started_at INTEGER NOT NULL,
		completed_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON analysis_runs(started_at);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (c *Client) InsertQuestion(ctx context.Context, q *models.Question) error {
	return insertQuestion(ctx, c.db, q)
}

func insertQuestion(ctx context.Context, db execer, q *models.Question) error {
	query := `
		INSERT INTO survey_questions (id, text, type, survey_type, order_index)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			text = excluded.text,
			type = excluded.type,
			survey_type = excluded.survey_type,
			order_index = excluded.order_index
	`

	_, err := db.ExecContext(ctx, query, q.ID, q.Text, string(q.Type), q.SurveyType, q.OrderIndex)
	if err != nil {
		return fmt.Errorf("failed to insert question: %w", err)
	}
	return nil
}

func (c *Client) InsertRespondent(ctx context.Context, r *models.Respondent) error {
	return insertRespondent(ctx, c.db, r)
}

func insertRespondent(ctx context.Context, db execer, r *models.Respondent) error {
	query := `
		INSERT INTO survey_respondents (id, respondent_type, age_category, county, locality, department, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			respondent_type = excluded.respondent_type,
			age_category = excluded.age_category,
			county = excluded.county,
			locality = excluded.locality,
			department = excluded.department,
			updated_at = excluded.updated_at
	`

	_, err := db.ExecContext(ctx, query,
		r.ID,
		string(r.RespondentType),
		nullString(r.AgeCategory),
		r.County,
		r.Locality,
		nullString(r.Department),
		r.CreatedAt.Unix(),
		r.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert respondent: %w", err)
	}
	return nil
}

func (c *Client) InsertResponse(ctx context.Context, r *models.Response) error {
	return insertResponse(ctx, c.db, r)
}

func insertResponse(ctx context.Context, db execer, r *models.Response) error {
	var choices sql.NullString
	if len(r.AnswerChoices) > 0 {
		data, err := json.Marshal(r.AnswerChoices)
		if err != nil {
			return fmt.Errorf("failed to marshal answer choices: %w", err)
		}
		choices = sql.NullString{String: string(data), Valid: true}
	}

	var rating sql.NullInt64
	if r.AnswerRating != nil {
		rating = sql.NullInt64{Int64: int64(*r.AnswerRating), Valid: true}
	}

	query := `
		INSERT INTO survey_responses (id, respondent_id, question_id, answer_text, answer_choices, answer_rating, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			answer_text = excluded.answer_text,
			answer_choices = excluded.answer_choices,
			answer_rating = excluded.answer_rating
	`

	_, err := db.ExecContext(ctx, query,
		r.ID,
		r.RespondentID,
		r.QuestionID,
		nullString(r.AnswerText),
		choices,
		rating,
		r.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert response: %w", err)
	}
	return nil
}

// ImportDataset upserts every record of ds in one transaction.
func (c *Client) ImportDataset(ctx context.Context, ds *models.Dataset) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i := range ds.Questions {
		if err := insertQuestion(ctx, tx, &ds.Questions[i]); err != nil {
			return err
		}
	}
	for i := range ds.Respondents {
		if err := insertRespondent(ctx, tx, &ds.Respondents[i]); err != nil {
			return err
		}
	}
	for i := range ds.Responses {
		if err := insertResponse(ctx, tx, &ds.Responses[i]); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit import: %w", err)
	}

	logger.Info("Dataset imported",
		zap.String("survey_type", ds.SurveyType),
		zap.Int("questions", len(ds.Questions)),
		zap.Int("respondents", len(ds.Respondents)),
		zap.Int("responses", len(ds.Responses)),
	)
	return nil
}

// LoadSurvey returns the questions of surveyType, the responses to them and
// the respondents who gave those responses.
func (c *Client) LoadSurvey(ctx context.Context, surveyType string) (*models.Dataset, error) {
	ds := &models.Dataset{SurveyType: surveyType}

	questions, err := c.questions(ctx, surveyType)
	if err != nil {
		return nil, err
	}
	ds.Questions = questions

	responses, err := c.responses(ctx, surveyType)
	if err != nil {
		return nil, err
	}
	ds.Responses = responses

	respondents, err := c.respondents(ctx, surveyType)
	if err != nil {
		return nil, err
	}
	ds.Respondents = respondents

	logger.Debug("Survey loaded",
		zap.String("survey_type", surveyType),
		zap.Int("questions", len(ds.Questions)),
		zap.Int("respondents", len(ds.Respondents)),
		zap.Int("responses", len(ds.Responses)),
	)
	return ds, nil
}

func (c *Client) questions(ctx context.Context, surveyType string) ([]models.Question, error) {
	query := `SELECT id, text, type, survey_type, order_index FROM survey_questions WHERE survey_type = ? ORDER BY order_index, id`

	rows, err := c.db.QueryContext(ctx, query, surveyType)
	if err != nil {
		return nil, fmt.Errorf("failed to get questions: %w", err)
	}
	defer rows.Close()

	var questions []models.Question
	for rows.Next() {
		var q models.Question
		var qType string
		if err := rows.Scan(&q.ID, &q.Text, &qType, &q.SurveyType, &q.OrderIndex); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		q.Type = models.QuestionType(qType)
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

func (c *Client) responses(ctx context.Context, surveyType string) ([]models.Response, error) {
	query := `
		SELECT r.id, r.respondent_id, r.question_id, r.answer_text, r.answer_choices, r.answer_rating, r.created_at
		FROM survey_responses r
		JOIN survey_questions q ON q.id = r.question_id
		WHERE q.survey_type = ?
		ORDER BY r.created_at, r.id
	`

	rows, err := c.db.QueryContext(ctx, query, surveyType)
	if err != nil {
		return nil, fmt.Errorf("failed to get responses: %w", err)
	}
	defer rows.Close()

	var responses []models.Response
	for rows.Next() {
		var r models.Response
		var text, choices sql.NullString
		var rating sql.NullInt64
		var createdAt int64

		if err := rows.Scan(&r.ID, &r.RespondentID, &r.QuestionID, &text, &choices, &rating, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		r.AnswerText = text.String
		if choices.Valid {
			if err := json.Unmarshal([]byte(choices.String), &r.AnswerChoices); err != nil {
				return nil, fmt.Errorf("failed to decode choices of response %s: %w", r.ID, err)
			}
		}
		if rating.Valid {
			v := int(rating.Int64)
			r.AnswerRating = &v
		}
		r.CreatedAt = time.Unix(createdAt, 0)
		responses = append(responses, r)
	}
	return responses, rows.Err()
}

func (c *Client) respondents(ctx context.Context, surveyType string) ([]models.Respondent, error) {
	query := `
		SELECT id, respondent_type, age_category, county, locality, department, created_at, updated_at
		FROM survey_respondents
		WHERE id IN (
			SELECT r.respondent_id FROM survey_responses r
			JOIN survey_questions q ON q.id = r.question_id
			WHERE q.survey_type = ?
		)
		ORDER BY created_at, id
	`

	rows, err := c.db.QueryContext(ctx, query, surveyType)
	if err != nil {
		return nil, fmt.Errorf("failed to get respondents: %w", err)
	}
	defer rows.Close()

	var respondents []models.Respondent
	for rows.Next() {
		var r models.Respondent
		var rType string
		var age, department sql.NullString
		var createdAt, updatedAt int64

		if err := rows.Scan(&r.ID, &rType, &age, &r.County, &r.Locality, &department, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		r.RespondentType = models.RespondentType(rType)
		r.AgeCategory = age.String
		r.Department = department.String
		r.CreatedAt = time.Unix(createdAt, 0)
		r.UpdatedAt = time.Unix(updatedAt, 0)
		respondents = append(respondents, r)
	}
	return respondents, rows.Err()
}

func (c *Client) SaveHolisticInsight(ctx context.Context, in *models.StoredInsight) error {
	query := `
		INSERT INTO survey_holistic_insights (id, survey_type, analysis_id, key_themes, sentiment_score, sentiment_label,
			recommendations, feature_requests, ai_summary, total_questions, total_responses, model_version,
			prompt_tokens, completion_tokens, confidence_score, generated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.ExecContext(ctx, query,
		in.ID,
		in.SurveyType,
		in.AnalysisID,
		in.KeyThemes,
		in.SentimentScore,
		in.SentimentLabel,
		in.Recommendations,
		in.FeatureRequests,
		in.AISummary,
		in.TotalQuestions,
		in.TotalResponses,
		in.ModelVersion,
		in.PromptTokens,
		in.CompletionTokens,
		in.ConfidenceScore,
		in.GeneratedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert holistic insight: %w", err)
	}

	logger.Info("Holistic insight stored",
		zap.String("analysis_id", in.AnalysisID),
		zap.String("survey_type", in.SurveyType),
		zap.Float64("confidence", in.ConfidenceScore),
	)
	return nil
}

const insightColumns = `id, survey_type, analysis_id, key_themes, sentiment_score, sentiment_label, recommendations,
	feature_requests, ai_summary, total_questions, total_responses, model_version, prompt_tokens,
	completion_tokens, confidence_score, generated_at`

// LatestInsight returns the newest insight of surveyType, which supersedes
// every earlier one.
func (c *Client) LatestInsight(ctx context.Context, surveyType string) (*models.StoredInsight, error) {
	query := `SELECT ` + insightColumns + ` FROM survey_holistic_insights WHERE survey_type = ? ORDER BY generated_at DESC LIMIT 1`

	in, err := scanInsight(c.db.QueryRowContext(ctx, query, surveyType))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("insight for %s: %w", surveyType, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get insight: %w", err)
	}
	return in, nil
}

// ListInsights returns insights newest first, optionally for one survey type.
func (c *Client) ListInsights(ctx context.Context, surveyType string, limit int) ([]models.StoredInsight, error) {
	query := `SELECT ` + insightColumns + ` FROM survey_holistic_insights`
	args := []any{}
	if surveyType != "" {
		query += ` WHERE survey_type = ?`
		args = append(args, surveyType)
	}
	query += ` ORDER BY generated_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list insights: %w", err)
	}
	defer rows.Close()

	var insights []models.StoredInsight
	for rows.Next() {
		in, err := scanInsight(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		insights = append(insights, *in)
	}
	return insights, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInsight(row scanner) (*models.StoredInsight, error) {
	var in models.StoredInsight
	var summary, model sql.NullString
	var confidence sql.NullFloat64
	var generatedAt int64

	err := row.Scan(
		&in.ID,
		&in.SurveyType,
		&in.AnalysisID,
		&in.KeyThemes,
		&in.SentimentScore,
		&in.SentimentLabel,
		&in.Recommendations,
		&in.FeatureRequests,
		&summary,
		&in.TotalQuestions,
		&in.TotalResponses,
		&model,
		&in.PromptTokens,
		&in.CompletionTokens,
		&confidence,
		&generatedAt,
	)
	if err != nil {
		return nil, err
	}

	in.AISummary = summary.String
	in.ModelVersion = model.String
	in.ConfidenceScore = confidence.Float64
	in.GeneratedAt = time.UnixMilli(generatedAt).UTC()
	return &in, nil
}

// RecordRun inserts or updates the audit row of an analysis run.
func (c *Client) RecordRun(ctx context.Context, run *models.AnalysisRun) error {
	var completedAt sql.NullInt64
	if run.CompletedAt != nil {
		completedAt = sql.NullInt64{Int64: run.CompletedAt.UnixMilli(), Valid: true}
	}

	query := `
		INSERT INTO analysis_runs (id, survey_type, respondent_type, questions_analyzed, responses_analyzed,
			tokens_used, status, error_message, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			tokens_used = excluded.tokens_used,
			status = excluded.status,
			error_message = excluded.error_message,
			completed_at = excluded.completed_at
	`

	_, err := c.db.ExecContext(ctx, query,
		run.ID,
		run.SurveyType,
		nullString(run.RespondentType),
		run.QuestionsAnalyzed,
		run.ResponsesAnalyzed,
		run.TokensUsed,
		string(run.Status),
		nullString(run.ErrorMessage),
		run.StartedAt.UnixMilli(),
		completedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record analysis run: %w", err)
	}
	return nil
}

func (c *Client) RecentRuns(ctx context.Context, limit int) ([]models.AnalysisRun, error) {
	query := `
		SELECT id, survey_type, respondent_type, questions_analyzed, responses_analyzed, tokens_used,
			status, error_message, started_at, completed_at
		FROM analysis_runs
		ORDER BY started_at DESC
		LIMIT ?
	`

	rows, err := c.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis runs: %w", err)
	}
	defer rows.Close()

	var runs []models.AnalysisRun
	for rows.Next() {
		var r models.AnalysisRun
		var respondentType, errorMessage sql.NullString
		var status string
		var startedAt int64
		var completedAt sql.NullInt64

		err := rows.Scan(&r.ID, &r.SurveyType, &respondentType, &r.QuestionsAnalyzed, &r.ResponsesAnalyzed,
			&r.TokensUsed, &status, &errorMessage, &startedAt, &completedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		r.RespondentType = respondentType.String
		r.ErrorMessage = errorMessage.String
		r.Status = models.RunStatus(status)
		r.StartedAt = time.UnixMilli(startedAt).UTC()
		if completedAt.Valid {
			t := time.UnixMilli(completedAt.Int64).UTC()
			r.CompletedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Ping verifies the database is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
