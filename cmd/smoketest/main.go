package main

import (
	"context"
	"github.com/myrjola/profilescan/internal/e2etest"
	"github.com/myrjola/profilescan/internal/errors"
	"github.com/myrjola/profilescan/internal/logging"
	"github.com/myrjola/profilescan/internal/models"
	"github.com/myrjola/profilescan/internal/questionbank"
	"log/slog"
	"net/http"
	"os"
	"time"
)

type answer struct {
	QuestionID     string `json:"questionId"`
	RawValue       int    `json:"rawValue"`
	ResponseTimeMs int64  `json:"responseTimeMs"`
}

// TestAssessment takes an anonymous attachment style assessment from start to finalized.
func TestAssessment(client *e2etest.Client) error {
	ctx := context.Background()
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second) //nolint:mnd // 30 seconds
	defer cancel()

	var definition questionbank.Definition
	status, err := client.JSON(ctx, http.MethodGet, "/api/question-banks/attachment_style", nil, &definition)
	if err != nil {
		return errors.Wrap(err, "fetch question bank")
	}
	if status != http.StatusOK {
		return errors.New("unexpected question bank status", slog.Int("status", status))
	}

	var record models.AssessmentRecord
	if status, err = client.JSON(ctx, http.MethodPost, "/api/assessments",
		map[string]any{"assessmentType": models.AssessmentTypeAttachmentStyle}, &record); err != nil {
		return errors.Wrap(err, "start assessment")
	}
	if status != http.StatusCreated {
		return errors.New("unexpected start status", slog.Int("status", status))
	}

	answers := make([]answer, 0, len(definition.Questions))
	for i, q := range definition.Questions {
		raw := models.LikertMin + i%models.LikertMax
		if q.Kind == models.QuestionKindScenario {
			raw = 1 + i%len(q.Options)
		}
		answers = append(answers, answer{QuestionID: q.ID, RawValue: raw, ResponseTimeMs: 3000}) //nolint:mnd // 3s
	}
	if status, err = client.JSON(ctx, http.MethodPost, "/api/assessments/"+record.ID+"/submit",
		map[string]any{"responses": answers}, &record); err != nil {
		return errors.Wrap(err, "submit assessment")
	}
	if status != http.StatusOK || record.State != models.StateFinalized {
		return errors.New("assessment not finalized",
			slog.Int("status", status), slog.String("state", string(record.State)))
	}

	if status, err = client.JSON(ctx, http.MethodGet, "/api/assessments/"+record.ID, nil, &record); err != nil {
		return errors.Wrap(err, "get assessment")
	}
	if status != http.StatusOK || record.Classification == nil || record.Insights == nil {
		return errors.New("finalized assessment is missing its result", slog.Int("status", status))
	}
	return nil
}

func main() {
	loggerHandler := logging.NewContextHandler(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		AddSource:   false,
		Level:       slog.LevelDebug,
		ReplaceAttr: nil,
	}))
	logger := slog.New(loggerHandler)
	ctx := context.Background()

	if len(os.Args) != 2 { //nolint:mnd // we expect only hostname to be passed as argument.
		logger.LogAttrs(ctx, slog.LevelError, "usage: smoketest <hostname>")
		os.Exit(1)
	}

	var (
		hostname = os.Args[1]
		url      = "https://" + hostname
		client   = e2etest.NewClient(url)
		err      error
	)
	ctx = logging.WithAttrs(ctx, slog.String("hostname", url))

	if err = client.WaitForReady(ctx, "/api/healthy"); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "service not ready", errors.SlogError(err))
		os.Exit(1)
	}
	if err = TestAssessment(client); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error testing assessment", errors.SlogError(err))
		os.Exit(1)
	}

	logger.LogAttrs(ctx, slog.LevelInfo, "Smoke test successful 🙌")
	os.Exit(0)
}
