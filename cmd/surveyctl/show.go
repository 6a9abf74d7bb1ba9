package main

import (
	"errors"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/survey-analytics/engine/internal/container"
	"github.com/survey-analytics/engine/internal/storage/sqlite"
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the stored insight of a survey type",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		surveyType, _ := cmd.Flags().GetString("survey-type")
		history, _ := cmd.Flags().GetInt("history")
		if surveyType == "" {
			return eris.New("show: --survey-type is required")
		}
		if history < 0 {
			return eris.Errorf("show: --history must not be negative (got %d)", history)
		}

		c, err := container.New(cfg)
		if err != nil {
			return eris.Wrap(err, "show: init")
		}
		defer c.Close()

		if history > 0 {
			insights, err := c.Store.ListInsights(ctx, surveyType, history)
			if err != nil {
				return eris.Wrapf(err, "show: history of %s", surveyType)
			}
			return printJSON(cmd.OutOrStdout(), insights)
		}

		stored, err := c.Store.LatestInsight(ctx, surveyType)
		if errors.Is(err, sqlite.ErrNotFound) {
			return eris.Errorf("show: no insight generated for %s yet, run analyze first", surveyType)
		}
		if err != nil {
			return eris.Wrapf(err, "show: %s", surveyType)
		}
		return printJSON(cmd.OutOrStdout(), stored)
	},
}

func init() {
	showCmd.Flags().String("survey-type", "", "survey type to show (required)")
	showCmd.Flags().Int("history", 0, "list the last N insights instead of the latest")
	_ = showCmd.MarkFlagRequired("survey-type")
	rootCmd.AddCommand(showCmd)
}
