package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/survey-analytics/engine/internal/container"
	"github.com/survey-analytics/engine/internal/insight"
	"github.com/survey-analytics/engine/internal/storage/models"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run the holistic analysis of a survey type",
	Long: `Run text, demographic, feature, correlation and cohort analysis over the
stored responses of one survey type and print the report as JSON.

Examples:
  # Analyze every citizen survey respondent
  surveyctl analyze --survey-type citizen

  # Only the public officials, ignoring the cached report
  surveyctl analyze --survey-type citizen --respondent-type official --force

  # Every configured survey type
  surveyctl analyze --all`,
	RunE: runAnalyze,
}

func init() {
	f := analyzeCmd.Flags()
	f.String("survey-type", "", "survey type to analyze")
	f.String("respondent-type", "", "restrict to citizen or official respondents")
	f.Bool("force", false, "ignore the cached report")
	f.Bool("all", false, "analyze every configured survey type")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	req, all, err := analyzeRequest(cmd)
	if err != nil {
		return err
	}

	c, err := container.New(cfg)
	if err != nil {
		return eris.Wrap(err, "analyze: init")
	}
	defer c.Close()

	if all {
		reports, err := c.Engine.AnalyzeAll(ctx, cfg.Analysis.SurveyTypes, req)
		if err != nil {
			return eris.Wrap(err, "analyze: all survey types")
		}
		return printJSON(cmd.OutOrStdout(), reports)
	}

	report, err := c.Engine.Analyze(ctx, req)
	if err != nil {
		return eris.Wrapf(err, "analyze: %s", req.SurveyType)
	}
	return printJSON(cmd.OutOrStdout(), report)
}

// analyzeRequest reads the flags into a request. With --all the survey type
// is filled in per configured type.
func analyzeRequest(cmd *cobra.Command) (insight.Request, bool, error) {
	surveyType, _ := cmd.Flags().GetString("survey-type")
	respondent, _ := cmd.Flags().GetString("respondent-type")
	force, _ := cmd.Flags().GetBool("force")
	all, _ := cmd.Flags().GetBool("all")

	if surveyType == "" && !all {
		return insight.Request{}, false, eris.New("analyze: --survey-type or --all is required")
	}

	req := insight.Request{SurveyType: surveyType, ForceRefresh: force}
	if respondent != "" {
		rt, err := models.ParseRespondentType(respondent)
		if err != nil {
			return insight.Request{}, false, eris.Wrap(err, "analyze: --respondent-type")
		}
		req.RespondentType = rt
	}
	return req, all, nil
}
