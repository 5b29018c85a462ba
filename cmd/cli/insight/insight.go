package insight

import (
	"encoding/json"
	"github.com/myrjola/profilescan/cmd/cli/score"
	"github.com/myrjola/profilescan/internal/ai"
	"github.com/myrjola/profilescan/internal/classify"
	"github.com/myrjola/profilescan/internal/errors"
	"github.com/myrjola/profilescan/internal/insights"
	"github.com/myrjola/profilescan/internal/models"
	"github.com/myrjola/profilescan/internal/questionbank"
	"github.com/spf13/cobra"
	"log/slog"
	"os"
	"time"
)

var Group = &cobra.Group{
	ID:    "insights",
	Title: "Insight operations",
}

func init() {
	Explain.Flags().String("type", "", "assessment type, attachment_style or relationship_pattern")
	Explain.Flags().String("responses", "", "path to a JSON array of responses")
	Explain.Flags().String("version", "", "question bank version, defaults to the latest")
	Explain.Flags().String("context", "", "optional JSON object describing the respondent")
	Explain.Flags().Duration("timeout", 30*time.Second, "timeout for a single narrative attempt") //nolint:mnd // cli default
	_ = Explain.MarkFlagRequired("type")
	_ = Explain.MarkFlagRequired("responses")
}

type explanation struct {
	Classification models.ClassificationResult `json:"classification"`
	Insights       models.InsightPayload       `json:"insights"`
	Degraded       bool                        `json:"degraded"`
	Attempts       int                         `json:"attempts"`
}

var Explain = &cobra.Command{
	Use:     "explain",
	GroupID: "insights",
	Short:   "Classify responses and generate insights",
	Long: `Classifies a complete set of responses and generates the insight payload with OpenAI.
Without OPENAI_API_KEY the static fallback insights are printed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		t, _ := cmd.Flags().GetString("type")
		path, _ := cmd.Flags().GetString("responses")
		version, _ := cmd.Flags().GetString("version")
		rawContext, _ := cmd.Flags().GetString("context")
		timeout, _ := cmd.Flags().GetDuration("timeout")
		logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), nil))

		var respondent models.RespondentContext
		if rawContext != "" {
			if err := json.Unmarshal([]byte(rawContext), &respondent); err != nil {
				return errors.Wrap(err, "decode context")
			}
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrap(err, "read responses", slog.String("path", path))
		}
		responses, err := score.ParseResponses(data)
		if err != nil {
			return err
		}
		bank, err := questionbank.NewEmbedded()
		if err != nil {
			return errors.Wrap(err, "load question banks")
		}
		definition, err := score.Definition(ctx, bank, models.AssessmentType(t), version)
		if err != nil {
			return err
		}
		result, err := score.Classify(definition, responses, classify.DefaultSecondaryMargin)
		if err != nil {
			return err
		}

		var generator insights.NarrativeGenerator
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			generator = ai.NewClient(logger, ai.Config{
				APIKey:  key,
				BaseURL: os.Getenv("PROFILESCAN_OPENAI_BASE_URL"),
				Model:   os.Getenv("PROFILESCAN_OPENAI_MODEL"),
			})
		}
		orchestrator, err := insights.NewOrchestrator(logger, generator, nil, insights.Config{
			AttemptTimeout: timeout,
			MaxAttempts:    insights.DefaultConfig().MaxAttempts,
			RetryBackoff:   insights.DefaultConfig().RetryBackoff,
		})
		if err != nil {
			return errors.Wrap(err, "new orchestrator")
		}
		outcome, err := orchestrator.GenerateInsights(ctx, definition.AssessmentType, result, respondent)
		if err != nil {
			return errors.Wrap(err, "generate insights")
		}

		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		if err = encoder.Encode(explanation{
			Classification: result,
			Insights:       outcome.Payload,
			Degraded:       outcome.Degraded,
			Attempts:       outcome.Attempts,
		}); err != nil {
			return errors.Wrap(err, "encode output")
		}
		return nil
	},
}
