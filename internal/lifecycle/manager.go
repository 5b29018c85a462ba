// Package lifecycle drives an assessment from its first answer to a finalized, explained result.
package lifecycle

import (
	"context"
	"github.com/google/uuid"
	"github.com/myrjola/profilescan/internal/classify"
	"github.com/myrjola/profilescan/internal/errors"
	"github.com/myrjola/profilescan/internal/insights"
	"github.com/myrjola/profilescan/internal/logging"
	"github.com/myrjola/profilescan/internal/metrics"
	"github.com/myrjola/profilescan/internal/models"
	"github.com/myrjola/profilescan/internal/questionbank"
	"github.com/myrjola/profilescan/internal/scoring"
	"github.com/myrjola/profilescan/internal/validity"
	"log/slog"
	"sync"
	"time"
)

// Store persists assessment records. Update must fail with [models.ErrStaleVersion] when the stored version differs
// from record.Version and return the record with its new version otherwise. Get and LatestFinalized return
// [models.ErrNotFound] when nothing matches.
type Store interface {
	Create(ctx context.Context, record models.AssessmentRecord) error
	Get(ctx context.Context, id string) (models.AssessmentRecord, error)
	Update(ctx context.Context, record models.AssessmentRecord) (models.AssessmentRecord, error)
	LatestFinalized(
		ctx context.Context,
		userID string,
		assessmentType models.AssessmentType,
	) (models.AssessmentRecord, error)
}

// InsightGenerator explains a classification. [insights.Orchestrator] is the production implementation.
type InsightGenerator interface {
	GenerateInsights(
		ctx context.Context,
		t models.AssessmentType,
		c models.ClassificationResult,
		rc models.RespondentContext,
	) (insights.Outcome, error)
}

type Config struct {
	Thresholds      validity.Thresholds
	SecondaryMargin float64
	// RetakeCooldown is the time a user has to wait after a finalized assessment before starting the same type
	// again. Zero disables the check.
	RetakeCooldown time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

func DefaultConfig() Config {
	return Config{
		Thresholds:      validity.DefaultThresholds(),
		SecondaryMargin: classify.DefaultSecondaryMargin,
		RetakeCooldown:  0,
		Now:             time.Now,
	}
}

type Manager struct {
	logger      *slog.Logger
	store       Store
	bank        questionbank.Provider
	insights    InsightGenerator
	metrics     *metrics.Metrics
	analyzer    *validity.Analyzer
	classifiers map[models.AssessmentType]*classify.Classifier
	cooldown    time.Duration
	now         func() time.Time
	// inFlight holds the ids of assessments with a running Submit.
	inFlight sync.Map
}

func NewManager(
	logger *slog.Logger,
	store Store,
	bank questionbank.Provider,
	generator InsightGenerator,
	m *metrics.Metrics,
	cfg Config,
) (*Manager, error) {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.SecondaryMargin <= 0 {
		cfg.SecondaryMargin = classify.DefaultSecondaryMargin
	}
	classifiers := make(map[models.AssessmentType]*classify.Classifier)
	for _, t := range []models.AssessmentType{
		models.AssessmentTypeAttachmentStyle,
		models.AssessmentTypeRelationshipPattern,
	} {
		c, err := classify.New(t)
		if err != nil {
			return nil, errors.Wrap(err, "new classifier")
		}
		c.SecondaryMargin = cfg.SecondaryMargin
		classifiers[t] = c
	}
	return &Manager{
		logger:      logger.With(slog.String("source", "lifecycle.Manager")),
		store:       store,
		bank:        bank,
		insights:    generator,
		metrics:     m,
		analyzer:    validity.NewAnalyzer(cfg.Thresholds),
		classifiers: classifiers,
		cooldown:    cfg.RetakeCooldown,
		now:         cfg.Now,
		inFlight:    sync.Map{},
	}, nil
}

// Start creates an assessment pinned to the latest question bank version of the type. An empty userID starts an
// anonymous assessment that skips the retake cooldown.
func (m *Manager) Start(
	ctx context.Context,
	t models.AssessmentType,
	userID string,
	rc models.RespondentContext,
) (models.AssessmentRecord, error) {
	if _, ok := m.classifiers[t]; !ok {
		return models.AssessmentRecord{}, errors.Wrap(models.ErrUnknownAssessmentType, "start",
			slog.String("assessment_type", string(t)))
	}
	version, err := m.bank.LatestVersion(t)
	if err != nil {
		return models.AssessmentRecord{}, errors.Wrap(err, "latest bank version")
	}
	if err = m.checkCooldown(ctx, t, userID); err != nil {
		return models.AssessmentRecord{}, err
	}

	record := models.AssessmentRecord{
		ID:               uuid.NewString(),
		UserID:           userID,
		AssessmentType:   t,
		BankVersion:      version,
		State:            models.StateStarted,
		Version:          1,
		Context:          rc,
		Responses:        nil,
		Classification:   nil,
		Insights:         nil,
		InsightsDegraded: false,
		CreatedAt:        m.now().UTC(),
		SubmittedAt:      nil,
		FinalizedAt:      nil,
	}
	if err = m.store.Create(ctx, record); err != nil {
		return models.AssessmentRecord{}, errors.Wrap(err, "create assessment")
	}
	m.logger.LogAttrs(logging.WithAssessment(ctx, record.ID), slog.LevelInfo, "assessment started",
		slog.String("assessment_type", string(t)), slog.String("bank_version", version))
	return record, nil
}

func (m *Manager) checkCooldown(ctx context.Context, t models.AssessmentType, userID string) error {
	if userID == "" || m.cooldown <= 0 {
		return nil
	}
	latest, err := m.store.LatestFinalized(ctx, userID, t)
	if errors.Is(err, models.ErrNotFound) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "latest finalized assessment")
	}
	if latest.FinalizedAt == nil {
		return nil
	}
	if wait := latest.FinalizedAt.Add(m.cooldown).Sub(m.now()); wait > 0 {
		return errors.Wrap(models.ErrRetakeCooldown, "start",
			slog.String("assessment_type", string(t)), slog.Duration("retry_after", wait))
	}
	return nil
}

// RecordResponse validates a single answer against the pinned question bank and stores it. A later answer to the same
// question replaces the earlier one.
func (m *Manager) RecordResponse(
	ctx context.Context,
	id string,
	response models.ResponseRecord,
) (models.AssessmentRecord, error) {
	ctx = logging.WithAssessment(ctx, id)
	record, err := m.store.Get(ctx, id)
	if err != nil {
		return models.AssessmentRecord{}, errors.Wrap(err, "get assessment")
	}
	if !record.State.AcceptsResponses() {
		return models.AssessmentRecord{}, errors.Wrap(models.ErrInvalidState, "record response",
			slog.String("state", string(record.State)))
	}
	definition, err := m.bank.Questions(ctx, record.AssessmentType, record.BankVersion)
	if err != nil {
		return models.AssessmentRecord{}, errors.Wrap(err, "question bank")
	}
	prepared, err := m.prepare(definition, response)
	if err != nil {
		return models.AssessmentRecord{}, err
	}

	record.Responses = models.Supersede(record.Responses, prepared)
	record.State = models.StateInProgress
	if record, err = m.store.Update(ctx, record); err != nil {
		return models.AssessmentRecord{}, errors.Wrap(err, "store response")
	}
	return record, nil
}

// prepare validates r and copies the category and kind of its question onto it.
func (m *Manager) prepare(
	definition *questionbank.Definition,
	r models.ResponseRecord,
) (models.ResponseRecord, error) {
	q, ok := definition.Question(r.QuestionID)
	if !ok {
		return models.ResponseRecord{}, errors.Wrap(models.ErrUnknownQuestion, "validate response",
			slog.String("question_id", r.QuestionID))
	}
	if r.Kind != "" && r.Kind != q.Kind {
		return models.ResponseRecord{}, errors.Wrap(models.ErrInvalidResponse, "kind mismatch",
			slog.String("question_id", r.QuestionID), slog.String("kind", string(r.Kind)))
	}
	if r.ResponseTimeMs < 0 {
		return models.ResponseRecord{}, errors.Wrap(models.ErrInvalidResponse, "negative response time",
			slog.String("question_id", r.QuestionID), slog.Int64("response_time_ms", r.ResponseTimeMs))
	}
	switch q.Kind {
	case models.QuestionKindStatement:
		if r.RawValue < models.LikertMin || r.RawValue > models.LikertMax {
			return models.ResponseRecord{}, errors.Wrap(models.ErrInvalidResponse, "value out of range",
				slog.String("question_id", r.QuestionID), slog.Int("raw_value", r.RawValue))
		}
	case models.QuestionKindScenario:
		if _, found := q.Option(r.RawValue); !found {
			return models.ResponseRecord{}, errors.Wrap(models.ErrInvalidResponse, "unknown option",
				slog.String("question_id", r.QuestionID), slog.Int("raw_value", r.RawValue))
		}
	}

	r.Kind = q.Kind
	r.Category = q.Category
	if r.AnsweredAt.IsZero() {
		r.AnsweredAt = m.now().UTC()
	}
	return r, nil
}

// Submit merges responses into the recorded ones, checks completeness, then scores, explains and finalizes the
// assessment. Submitting a finalized assessment returns the stored result. Submitting an assessment whose pipeline
// stopped part way resumes it from the last persisted state and ignores responses. A concurrent Submit of the same
// assessment fails with [models.ErrAlreadyProcessing].
func (m *Manager) Submit(
	ctx context.Context,
	id string,
	responses []models.ResponseRecord,
) (models.AssessmentRecord, error) {
	ctx = logging.WithAssessment(ctx, id)
	if _, loaded := m.inFlight.LoadOrStore(id, struct{}{}); loaded {
		return models.AssessmentRecord{}, errors.Wrap(models.ErrAlreadyProcessing, "submit")
	}
	defer m.inFlight.Delete(id)

	record, err := m.store.Get(ctx, id)
	if err != nil {
		return models.AssessmentRecord{}, errors.Wrap(err, "get assessment")
	}
	assessmentType := string(record.AssessmentType)
	if record.State == models.StateFinalized {
		m.metrics.ObserveSubmission(assessmentType, "replayed")
		return record, nil
	}

	definition, err := m.bank.Questions(ctx, record.AssessmentType, record.BankVersion)
	if err != nil {
		return models.AssessmentRecord{}, errors.Wrap(err, "question bank")
	}

	if record.State.AcceptsResponses() {
		prepared := make([]models.ResponseRecord, 0, len(responses))
		for _, r := range responses {
			var p models.ResponseRecord
			if p, err = m.prepare(definition, r); err != nil {
				m.metrics.ObserveSubmission(assessmentType, "rejected")
				return models.AssessmentRecord{}, err
			}
			prepared = append(prepared, p)
		}
		merged := models.Supersede(record.Responses, prepared...)
		if err = validity.CheckComplete(merged, definition.Questions); err != nil {
			m.metrics.ObserveSubmission(assessmentType, "incomplete")
			return models.AssessmentRecord{}, errors.Wrap(err, "submit")
		}

		submittedAt := m.now().UTC()
		record.Responses = merged
		record.State = models.StateSubmitted
		record.SubmittedAt = &submittedAt
		if record, err = m.store.Update(ctx, record); err != nil {
			return models.AssessmentRecord{}, errors.Wrap(err, "store submission")
		}
	} else {
		m.logger.LogAttrs(ctx, slog.LevelWarn, "resuming assessment processing",
			slog.String("state", string(record.State)), slog.Int("ignored_responses", len(responses)))
	}

	// The submission is durable so the rest of the pipeline must not be abandoned with the caller.
	record, err = m.process(context.WithoutCancel(ctx), record, definition)
	if err != nil {
		if errors.Is(err, models.ErrInvariantViolation) {
			m.metrics.IncInvariantViolation()
		}
		m.metrics.ObserveSubmission(assessmentType, "error")
		m.logger.LogAttrs(ctx, slog.LevelError, "assessment processing failed",
			slog.String("state", string(record.State)), errors.SlogError(err))
		return models.AssessmentRecord{}, err
	}

	outcome := "finalized"
	if record.InsightsDegraded {
		outcome = "degraded"
	}
	m.metrics.ObserveSubmission(assessmentType, outcome)
	m.logger.LogAttrs(ctx, slog.LevelInfo, "assessment finalized",
		slog.String("primary_category", string(record.Classification.PrimaryCategory)),
		slog.Float64("confidence", record.Classification.Validity.ConfidenceScore),
		slog.Bool("insights_degraded", record.InsightsDegraded))
	return record, nil
}

// process moves a record from submitted, scored or insights_generated to finalized, persisting every step. Stages
// already persisted are not repeated, so a stored classification or insight payload is reused. On failure the
// returned record is the last persisted one.
func (m *Manager) process(
	ctx context.Context,
	record models.AssessmentRecord,
	definition *questionbank.Definition,
) (models.AssessmentRecord, error) {
	var err error

	if record.State == models.StateSubmitted || record.Classification == nil {
		start := time.Now()
		var classification models.ClassificationResult
		if classification, err = m.score(record, definition); err != nil {
			return record, err
		}
		m.metrics.ObserveStage("score", time.Since(start))
		scored := record
		scored.Classification = &classification
		if scored.State == models.StateSubmitted {
			scored.State = models.StateScored
		}
		if scored, err = m.store.Update(ctx, scored); err != nil {
			return record, errors.Wrap(err, "store score")
		}
		record = scored
	}

	if record.State == models.StateScored || record.Insights == nil {
		start := time.Now()
		var outcome insights.Outcome
		if outcome, err = m.insights.GenerateInsights(ctx, record.AssessmentType, *record.Classification,
			record.Context); err != nil {
			return record, errors.Wrap(err, "generate insights")
		}
		m.metrics.ObserveStage("insights", time.Since(start))
		explained := record
		explained.Insights = &outcome.Payload
		explained.InsightsDegraded = outcome.Degraded
		explained.State = models.StateInsightsGenerated
		if explained, err = m.store.Update(ctx, explained); err != nil {
			return record, errors.Wrap(err, "store insights")
		}
		record = explained
	}

	finalizedAt := m.now().UTC()
	finalized := record
	finalized.State = models.StateFinalized
	finalized.FinalizedAt = &finalizedAt
	if finalized, err = m.store.Update(ctx, finalized); err != nil {
		return record, errors.Wrap(err, "store finalization")
	}
	return finalized, nil
}

func (m *Manager) score(
	record models.AssessmentRecord,
	definition *questionbank.Definition,
) (models.ClassificationResult, error) {
	classifier, ok := m.classifiers[record.AssessmentType]
	if !ok {
		return models.ClassificationResult{}, errors.Wrap(models.ErrUnknownAssessmentType, "classifier",
			slog.String("assessment_type", string(record.AssessmentType)))
	}
	vector, err := scoring.Aggregate(record.Responses, definition.Questions)
	if err != nil {
		return models.ClassificationResult{}, errors.Wrap(err, "aggregate")
	}
	report := m.analyzer.Analyze(record.Responses, definition.Questions)
	classification, err := classifier.Classify(vector, report)
	if err != nil {
		return models.ClassificationResult{}, errors.Wrap(err, "classify")
	}
	return classification, nil
}

// GetResult returns the stored assessment.
func (m *Manager) GetResult(ctx context.Context, id string) (models.AssessmentRecord, error) {
	record, err := m.store.Get(ctx, id)
	if err != nil {
		return models.AssessmentRecord{}, errors.Wrap(err, "get assessment")
	}
	return record, nil
}

// Questions returns the latest question bank of the assessment type.
func (m *Manager) Questions(ctx context.Context, t models.AssessmentType) (*questionbank.Definition, error) {
	version, err := m.bank.LatestVersion(t)
	if err != nil {
		return nil, errors.Wrap(err, "latest bank version")
	}
	definition, err := m.bank.Questions(ctx, t, version)
	if err != nil {
		return nil, errors.Wrap(err, "question bank")
	}
	return definition, nil
}
