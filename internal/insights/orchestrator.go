package insights

import (
	"context"
	"github.com/myrjola/profilescan/internal/errors"
	"github.com/myrjola/profilescan/internal/metrics"
	"github.com/myrjola/profilescan/internal/models"
	"github.com/myrjola/profilescan/internal/random"
	"log/slog"
	"net"
	"time"
)

type Config struct {
	// AttemptTimeout bounds a single generator call.
	AttemptTimeout time.Duration
	// MaxAttempts includes the first call. Only transient failures are retried.
	MaxAttempts int
	// RetryBackoff is the jittered wait before a retry. Zero retries immediately.
	RetryBackoff time.Duration
}

func DefaultConfig() Config {
	return Config{
		AttemptTimeout: 15 * time.Second,       //nolint:mnd // default
		MaxAttempts:    2,                      //nolint:mnd // one retry
		RetryBackoff:   250 * time.Millisecond, //nolint:mnd // default
	}
}

// Budget is the longest GenerateInsights can spend on the generator: every attempt timing out plus the longest
// backoff before each retry.
func (c Config) Budget() time.Duration {
	if c.MaxAttempts < 1 {
		return 0
	}
	return time.Duration(c.MaxAttempts)*c.AttemptTimeout + time.Duration(c.MaxAttempts-1)*c.RetryBackoff
}

// Outcome is the result of GenerateInsights. Degraded is set when the payload comes from the fallback catalog.
type Outcome struct {
	Payload  models.InsightPayload
	Degraded bool
	Attempts int
}

// Orchestrator calls the narrative generator with a timeout and limited retries and falls back to static content.
// It never fails because of the generator.
type Orchestrator struct {
	logger    *slog.Logger
	generator NarrativeGenerator
	catalogs  map[models.AssessmentType]*Catalog
	cfg       Config
	metrics   *metrics.Metrics
}

// NewOrchestrator creates an Orchestrator. A nil generator serves the fallback only.
func NewOrchestrator(
	logger *slog.Logger,
	generator NarrativeGenerator,
	m *metrics.Metrics,
	cfg Config,
) (*Orchestrator, error) {
	catalogs, err := LoadCatalogs()
	if err != nil {
		return nil, errors.Wrap(err, "load catalogs")
	}
	defaults := DefaultConfig()
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = defaults.AttemptTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}
	return &Orchestrator{
		logger:    logger.With(slog.String("source", "Orchestrator")),
		generator: generator,
		catalogs:  catalogs,
		cfg:       cfg,
		metrics:   m,
	}, nil
}

// Prompt assembles the generator input for a classification.
func (o *Orchestrator) Prompt(
	t models.AssessmentType,
	c models.ClassificationResult,
	rc models.RespondentContext,
) (StructuredPrompt, error) {
	catalog, ok := o.catalogs[t]
	if !ok {
		return StructuredPrompt{}, errors.Wrap(models.ErrUnknownAssessmentType, "prompt",
			slog.String("assessment_type", string(t)))
	}
	toPrompt := func(s models.CategoryScore) PromptScore {
		return PromptScore{Category: s.Category, Label: catalog.Label(s.Category), Score: s.Score, Questions: s.Questions}
	}

	prompt := StructuredPrompt{
		AssessmentType: t,
		Title:          catalog.Title,
		Scores:         nil,
		Primary:        PromptScore{},
		Secondary:      nil,
		BlindspotIndex: c.BlindspotIndex,
		LowConfidence:  c.LowConfidence,
		Warnings:       c.Validity.Warnings,
		Context:        rc,
	}
	for _, s := range c.ScoreVector.Categories {
		if !s.Scored {
			continue
		}
		prompt.Scores = append(prompt.Scores, toPrompt(s))
	}
	primary, ok := c.ScoreVector.Get(c.PrimaryCategory)
	if !ok {
		return StructuredPrompt{}, errors.Wrap(models.ErrInvariantViolation, "primary category without score",
			slog.String("category", string(c.PrimaryCategory)))
	}
	prompt.Primary = toPrompt(primary)
	if c.SecondaryCategory != "" {
		if secondary, found := c.ScoreVector.Get(c.SecondaryCategory); found {
			s := toPrompt(secondary)
			prompt.Secondary = &s
		}
	}
	return prompt, nil
}

// GenerateInsights returns a narrative payload, or the fallback payload when the generator is unavailable, slow or
// returns something unusable. The only errors are for classifications that cannot be described at all.
func (o *Orchestrator) GenerateInsights(
	ctx context.Context,
	t models.AssessmentType,
	c models.ClassificationResult,
	rc models.RespondentContext,
) (Outcome, error) {
	prompt, err := o.Prompt(t, c, rc)
	if err != nil {
		return Outcome{}, err
	}
	catalog := o.catalogs[t]

	attempts := 0
	if o.generator != nil {
		for attempts < o.cfg.MaxAttempts {
			attempts++
			var payload models.InsightPayload
			payload, err = o.attempt(ctx, prompt)
			if err == nil {
				if err = Validate(payload); err == nil {
					o.metrics.ObserveNarrativeCall("success")
					payload.Source = models.InsightSourceNarrative
					return Outcome{Payload: catalog.Complete(payload), Degraded: false, Attempts: attempts}, nil
				}
			}

			retry := ctx.Err() == nil && isTransient(err)
			o.metrics.ObserveNarrativeCall(outcomeLabel(err))
			o.logger.LogAttrs(ctx, slog.LevelWarn, "narrative attempt failed",
				slog.Int("attempt", attempts), slog.Bool("retry", retry && attempts < o.cfg.MaxAttempts),
				errors.SlogError(err))
			if !retry || attempts >= o.cfg.MaxAttempts {
				break
			}
			if !o.backoff(ctx) {
				break
			}
		}
		o.logger.LogAttrs(ctx, slog.LevelError, "serving fallback insights",
			slog.String("assessment_type", string(t)), slog.Int("attempts", attempts), errors.SlogError(err))
	}

	o.metrics.IncInsightsDegraded(string(t))
	return Outcome{Payload: catalog.Fallback(prompt), Degraded: true, Attempts: attempts}, nil
}

var errAttemptTimeout = errors.NewSentinel("narrative attempt timed out")

type generated struct {
	payload models.InsightPayload
	err     error
}

// attempt bounds a single generator call by the attempt timeout even when the generator is slow to notice
// cancellation.
func (o *Orchestrator) attempt(ctx context.Context, prompt StructuredPrompt) (models.InsightPayload, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, o.cfg.AttemptTimeout)
	defer cancel()

	done := make(chan generated, 1)
	go func() {
		payload, err := o.generator.Generate(attemptCtx, prompt)
		done <- generated{payload: payload, err: err}
	}()

	select {
	case result := <-done:
		if result.err != nil && attemptCtx.Err() != nil && ctx.Err() == nil {
			return models.InsightPayload{}, errors.Wrap(errAttemptTimeout, result.err.Error())
		}
		return result.payload, result.err
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return models.InsightPayload{}, errors.Wrap(ctx.Err(), "generate")
		}
		return models.InsightPayload{}, errors.Wrap(errAttemptTimeout, "generate",
			slog.Duration("timeout", o.cfg.AttemptTimeout))
	}
}

// backoff waits before the next attempt and reports false when ctx ends first.
func (o *Orchestrator) backoff(ctx context.Context) bool {
	wait := random.Jitter(o.cfg.RetryBackoff)
	if wait == 0 {
		return true
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func isTransient(err error) bool {
	if errors.Is(err, ErrMalformed) {
		return false
	}
	var netErr net.Error
	return errors.Is(err, ErrTransient) || errors.Is(err, errAttemptTimeout) || errors.As(err, &netErr)
}

func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, ErrMalformed):
		return "malformed"
	case errors.Is(err, errAttemptTimeout):
		return "timeout"
	case isTransient(err):
		return "transient"
	default:
		return "error"
	}
}
