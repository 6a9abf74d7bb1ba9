package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/survey-analytics/engine/internal/storage/models"
	"github.com/survey-analytics/engine/pkg/config"
)

const citizenDataset = `{
  "survey_type": "citizen",
  "questions": [
    {"id": "q4_features", "text": "Ce funcționalități doriți?", "type": "multiple_choice"},
    {"id": "q5_suggestions", "text": "Sugestii", "type": "text"}
  ],
  "respondents": [
    {"id": "r001", "respondent_type": "citizen", "age_category": "26-35", "county": "Cluj", "locality": "Cluj-Napoca"},
    {"id": "r002", "respondent_type": "citizen", "age_category": "46-60", "county": "Iași", "locality": "Pașcani"}
  ],
  "responses": [
    {"respondent_id": "r001", "question_id": "q4_features", "answer_choices": ["Plată online"]},
    {"respondent_id": "r001", "question_id": "q5_suggestions", "answer_text": "Vreau să plătesc taxele online"},
    {"respondent_id": "r002", "question_id": "q4_features", "answer_choices": ["Plată online", "Programări"]}
  ]
}`

// setupCLI points the commands at a temp database and a completion API that
// always fails, so analyses run on their deterministic fallbacks.
func setupCLI(t *testing.T) {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"unavailable","type":"server_error"}}`))
	}))
	t.Cleanup(srv.Close)

	cfg = &config.Config{
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "survey.db")},
		LLM:    config.LLMConfig{APIKey: "test", BaseURL: srv.URL + "/v1", TimeoutSec: 5},
		Analysis: config.AnalysisConfig{
			Concurrency:     2,
			CacheTTLHours:   1,
			PersistAttempts: 1,
			SurveyTypes:     []string{"citizen"},
		},
	}
}

// execute runs one command with fresh output.
func execute(cmd *cobra.Command, out *bytes.Buffer) error {
	out.Reset()
	cmd.SetOut(out)
	cmd.SetContext(context.Background())
	return cmd.RunE(cmd, nil)
}

func TestCommands_Metadata(t *testing.T) {
	assert.NotNil(t, importCmd.Flags().Lookup("file"))
	assert.NotNil(t, analyzeCmd.Flags().Lookup("survey-type"))
	assert.NotNil(t, analyzeCmd.Flags().Lookup("respondent-type"))
	assert.NotNil(t, analyzeCmd.Flags().Lookup("force"))
	assert.NotNil(t, showCmd.Flags().Lookup("survey-type"))
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("config"))
}

func TestImportAnalyzeShow(t *testing.T) {
	setupCLI(t)

	path := filepath.Join(t.TempDir(), "citizen.json")
	require.NoError(t, os.WriteFile(path, []byte(citizenDataset), 0o600))

	var out bytes.Buffer
	t.Cleanup(func() {
		importFilePath = ""
		_ = analyzeCmd.Flags().Set("survey-type", "")
		_ = showCmd.Flags().Set("survey-type", "")
	})

	importFilePath = path
	require.NoError(t, execute(importCmd, &out))
	var summary map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &summary))
	assert.EqualValues(t, 3, summary["responses"])

	require.NoError(t, showCmd.Flags().Set("survey-type", "citizen"))
	err := execute(showCmd, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run analyze first")

	require.NoError(t, analyzeCmd.Flags().Set("survey-type", "citizen"))
	require.NoError(t, execute(analyzeCmd, &out))
	var report map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.NotEmpty(t, report["analysis_id"])

	require.NoError(t, execute(showCmd, &out))
	var stored map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &stored))
	assert.Equal(t, report["analysis_id"], stored["analysis_id"])
	assert.Equal(t, "citizen", stored["survey_type"])
}

func TestAnalyze_RejectsBadFlags(t *testing.T) {
	setupCLI(t)
	analyzeCmd.SetContext(context.Background())
	t.Cleanup(func() {
		_ = analyzeCmd.Flags().Set("survey-type", "")
		_ = analyzeCmd.Flags().Set("respondent-type", "")
	})

	err := analyzeCmd.RunE(analyzeCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--survey-type or --all is required")

	require.NoError(t, analyzeCmd.Flags().Set("survey-type", "citizen"))
	require.NoError(t, analyzeCmd.Flags().Set("respondent-type", "mayor"))
	err = analyzeCmd.RunE(analyzeCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--respondent-type")
}

func TestAnalyzeRequest_AllCarriesForceAndRespondentType(t *testing.T) {
	t.Cleanup(func() {
		_ = analyzeCmd.Flags().Set("all", "false")
		_ = analyzeCmd.Flags().Set("force", "false")
		_ = analyzeCmd.Flags().Set("respondent-type", "")
	})

	require.NoError(t, analyzeCmd.Flags().Set("all", "true"))
	require.NoError(t, analyzeCmd.Flags().Set("force", "true"))
	require.NoError(t, analyzeCmd.Flags().Set("respondent-type", "official"))

	req, all, err := analyzeRequest(analyzeCmd)
	require.NoError(t, err)
	assert.True(t, all)
	assert.True(t, req.ForceRefresh)
	assert.Equal(t, models.RespondentOfficial, req.RespondentType)
	assert.Empty(t, req.SurveyType)
}

func TestImport_RejectsInvalidFile(t *testing.T) {
	setupCLI(t)
	importCmd.SetContext(context.Background())
	t.Cleanup(func() { importFilePath = "" })

	path := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"survey_type":"citizen","questions":[{"id":"q1","type":"matrix"}]}`), 0o600))
	importFilePath = path

	err := importCmd.RunE(importCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unsupported type "matrix"`)
}
