package score

import (
	"context"
	"encoding/json"
	"github.com/myrjola/profilescan/internal/classify"
	"github.com/myrjola/profilescan/internal/errors"
	"github.com/myrjola/profilescan/internal/models"
	"github.com/myrjola/profilescan/internal/questionbank"
	"github.com/myrjola/profilescan/internal/scoring"
	"github.com/myrjola/profilescan/internal/validity"
	"github.com/spf13/cobra"
	"io"
	"log/slog"
	"os"
)

var Group = &cobra.Group{
	ID:    "score",
	Title: "Scoring",
}

func init() {
	Score.Flags().String("type", "", "assessment type, attachment_style or relationship_pattern")
	Score.Flags().String("responses", "", "path to a JSON array of responses")
	Score.Flags().String("version", "", "question bank version, defaults to the latest")
	Score.Flags().Float64("margin", classify.DefaultSecondaryMargin, "largest score gap that still reports a secondary")
	_ = Score.MarkFlagRequired("type")
	_ = Score.MarkFlagRequired("responses")

	Questions.Flags().String("type", "", "assessment type, attachment_style or relationship_pattern")
	Questions.Flags().String("version", "", "question bank version, defaults to the latest")
	_ = Questions.MarkFlagRequired("type")
}

var Score = &cobra.Command{
	Use:     "score",
	GroupID: "score",
	Short:   "Score a set of responses",
	Long:    "Scores, validates and classifies a complete set of responses and prints the classification as JSON.",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		t, _ := cmd.Flags().GetString("type")
		path, _ := cmd.Flags().GetString("responses")
		version, _ := cmd.Flags().GetString("version")
		margin, _ := cmd.Flags().GetFloat64("margin")
		var (
			responses  []models.ResponseRecord
			definition *questionbank.Definition
			result     models.ClassificationResult
			data       []byte
			err        error
			bank       *questionbank.Embedded
		)
		if data, err = os.ReadFile(path); err != nil {
			return errors.Wrap(err, "read responses", slog.String("path", path))
		}
		if responses, err = ParseResponses(data); err != nil {
			return err
		}
		if bank, err = questionbank.NewEmbedded(); err != nil {
			return errors.Wrap(err, "load question banks")
		}
		if definition, err = Definition(cmd.Context(), bank, models.AssessmentType(t), version); err != nil {
			return err
		}
		if result, err = Classify(definition, responses, margin); err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), result)
	},
}

var Questions = &cobra.Command{
	Use:     "questions",
	GroupID: "score",
	Short:   "Print a question bank",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		t, _ := cmd.Flags().GetString("type")
		version, _ := cmd.Flags().GetString("version")
		bank, err := questionbank.NewEmbedded()
		if err != nil {
			return errors.Wrap(err, "load question banks")
		}
		definition, err := Definition(cmd.Context(), bank, models.AssessmentType(t), version)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), definition)
	},
}

// ParseResponses decodes a JSON array of responses.
func ParseResponses(data []byte) ([]models.ResponseRecord, error) {
	var responses []models.ResponseRecord
	if err := json.Unmarshal(data, &responses); err != nil {
		return nil, errors.Wrap(models.ErrInvalidResponse, "decode responses", slog.String("error", err.Error()))
	}
	return responses, nil
}

// Definition returns the given version of the question bank or the latest when version is empty.
func Definition(
	ctx context.Context,
	bank questionbank.Provider,
	t models.AssessmentType,
	version string,
) (*questionbank.Definition, error) {
	var err error
	if version == "" {
		if version, err = bank.LatestVersion(t); err != nil {
			return nil, errors.Wrap(err, "latest version", slog.String("assessment_type", string(t)))
		}
	}
	definition, err := bank.Questions(ctx, t, version)
	if err != nil {
		return nil, errors.Wrap(err, "question bank")
	}
	return definition, nil
}

// Classify runs completeness, scoring, validity and classification on responses.
func Classify(
	definition *questionbank.Definition,
	responses []models.ResponseRecord,
	margin float64,
) (models.ClassificationResult, error) {
	responses = models.Supersede(nil, responses...)
	if err := validity.CheckComplete(responses, definition.Questions); err != nil {
		return models.ClassificationResult{}, errors.Wrap(err, "check complete")
	}
	vector, err := scoring.Aggregate(responses, definition.Questions)
	if err != nil {
		return models.ClassificationResult{}, errors.Wrap(err, "aggregate")
	}
	report := validity.NewAnalyzer(validity.DefaultThresholds()).Analyze(responses, definition.Questions)
	classifier, err := classify.New(definition.AssessmentType)
	if err != nil {
		return models.ClassificationResult{}, errors.Wrap(err, "new classifier")
	}
	classifier.SecondaryMargin = margin
	result, err := classifier.Classify(vector, report)
	if err != nil {
		return models.ClassificationResult{}, errors.Wrap(err, "classify")
	}
	return result, nil
}

func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return errors.Wrap(err, "encode output")
	}
	return nil
}
