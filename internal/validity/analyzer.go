// Package validity estimates how trustworthy a set of responses is.
package validity

import (
	"fmt"
	"github.com/myrjola/profilescan/internal/models"
	"math"
	"slices"
	"time"
)

// Thresholds tune the anomaly detection. Start from [DefaultThresholds] and override individual values.
type Thresholds struct {
	// MinResponseTime is the answer time below which a response counts as speeding.
	MinResponseTime time.Duration
	// SpeedingRatio is the share of speeding responses above which too_fast is reported.
	SpeedingRatio   float64
	SpeedingPenalty float64
	// MaxMeanResponseTime is the mean answer time above which too_slow is reported.
	MaxMeanResponseTime time.Duration
	SlowPenalty         float64
	// StraightLineRatio is the share of identical statement values at which low_variance is reported.
	StraightLineRatio float64
	// StraightLineMinStatements is the number of statements needed before straight-lining is judged.
	StraightLineMinStatements int
	StraightLinePenalty       float64
	// ContradictionDelta is the effective value difference a reverse-scored and a regular statement of the same
	// category may have before it is reported.
	ContradictionDelta   int
	ContradictionPenalty float64
	// ContradictionSeverityCap is the contradiction severity above which the report is unreliable regardless of
	// confidence.
	ContradictionSeverityCap float64
	ReliableThreshold        float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		MinResponseTime:           800 * time.Millisecond, //nolint:mnd // default
		SpeedingRatio:             0.20,                   //nolint:mnd // default
		SpeedingPenalty:           25,                     //nolint:mnd // default
		MaxMeanResponseTime:       time.Minute,
		SlowPenalty:               10,  //nolint:mnd // default
		StraightLineRatio:         0.8, //nolint:mnd // default
		StraightLineMinStatements: 4,   //nolint:mnd // default
		StraightLinePenalty:       55,  //nolint:mnd // default
		ContradictionDelta:        2,   //nolint:mnd // default
		ContradictionPenalty:      15,  //nolint:mnd // default
		ContradictionSeverityCap:  3,   //nolint:mnd // default
		ReliableThreshold:         50,  //nolint:mnd // default
	}
}

const fullConfidence = 100

type Analyzer struct {
	Thresholds Thresholds
}

func NewAnalyzer(thresholds Thresholds) *Analyzer {
	return &Analyzer{Thresholds: thresholds}
}

// Analyze inspects response times and answer patterns. Responses without a recorded time are left out of the timing
// checks. The responses are not modified.
func (a *Analyzer) Analyze(
	responses []models.ResponseRecord,
	questions []models.QuestionDefinition,
) models.ValidityReport {
	var (
		th       = a.Thresholds
		warnings []models.Warning
		byID     = make(map[string]models.QuestionDefinition, len(questions))
	)
	for _, q := range questions {
		byID[q.ID] = q
	}
	responses = models.Supersede(nil, responses...)

	if w, ok := a.speeding(responses); ok {
		warnings = append(warnings, w)
	}
	if w, ok := a.slowness(responses); ok {
		warnings = append(warnings, w)
	}
	if w, ok := a.straightLining(responses, byID); ok {
		warnings = append(warnings, w)
	}
	warnings = append(warnings, a.contradictions(responses, byID)...)

	confidence := float64(fullConfidence)
	reliable := true
	for _, w := range warnings {
		switch w.Kind {
		case models.WarningTooFast:
			confidence -= th.SpeedingPenalty
		case models.WarningTooSlow:
			confidence -= th.SlowPenalty
		case models.WarningLowVariance:
			confidence -= th.StraightLinePenalty
		case models.WarningContradiction:
			confidence -= th.ContradictionPenalty
			if w.Severity > th.ContradictionSeverityCap {
				reliable = false
			}
		}
	}
	confidence = math.Max(0, confidence)

	return models.ValidityReport{
		ConfidenceScore: confidence,
		Warnings:        warnings,
		IsReliable:      reliable && confidence >= th.ReliableThreshold,
	}
}

func (a *Analyzer) speeding(responses []models.ResponseRecord) (models.Warning, bool) {
	var timed, fast int
	for _, r := range responses {
		if r.ResponseTimeMs <= 0 {
			continue
		}
		timed++
		if time.Duration(r.ResponseTimeMs)*time.Millisecond < a.Thresholds.MinResponseTime {
			fast++
		}
	}
	if timed == 0 {
		return models.Warning{}, false
	}
	ratio := float64(fast) / float64(timed)
	if ratio <= a.Thresholds.SpeedingRatio {
		return models.Warning{}, false
	}
	return models.Warning{
		Kind:     models.WarningTooFast,
		Note:     fmt.Sprintf("%d of %d answers were given in under %s", fast, timed, a.Thresholds.MinResponseTime),
		Category: "",
		Severity: ratio,
	}, true
}

func (a *Analyzer) slowness(responses []models.ResponseRecord) (models.Warning, bool) {
	var timed, total int64
	for _, r := range responses {
		if r.ResponseTimeMs <= 0 {
			continue
		}
		timed++
		total += r.ResponseTimeMs
	}
	if timed == 0 {
		return models.Warning{}, false
	}
	mean := time.Duration(total/timed) * time.Millisecond
	if mean <= a.Thresholds.MaxMeanResponseTime {
		return models.Warning{}, false
	}
	return models.Warning{
		Kind:     models.WarningTooSlow,
		Note:     fmt.Sprintf("mean answer time %s exceeds %s", mean, a.Thresholds.MaxMeanResponseTime),
		Category: "",
		Severity: mean.Seconds(),
	}, true
}

func (a *Analyzer) straightLining(
	responses []models.ResponseRecord,
	byID map[string]models.QuestionDefinition,
) (models.Warning, bool) {
	counts := make(map[int]int)
	var statements int
	for _, r := range responses {
		if q, ok := byID[r.QuestionID]; !ok || q.Kind != models.QuestionKindStatement {
			continue
		}
		statements++
		counts[r.RawValue]++
	}
	if statements == 0 || statements < a.Thresholds.StraightLineMinStatements {
		return models.Warning{}, false
	}

	var modeValue, modeCount int
	for value := models.LikertMin; value <= models.LikertMax; value++ {
		if counts[value] > modeCount {
			modeValue, modeCount = value, counts[value]
		}
	}
	share := float64(modeCount) / float64(statements)
	if share < a.Thresholds.StraightLineRatio {
		return models.Warning{}, false
	}
	return models.Warning{
		Kind:     models.WarningLowVariance,
		Note:     fmt.Sprintf("%d of %d statements were answered with %d", modeCount, statements, modeValue),
		Category: "",
		Severity: share,
	}, true
}

// contradictions compares reverse-scored statements with regular statements of the same category. After reverse
// scoring both should point the same way.
func (a *Analyzer) contradictions(
	responses []models.ResponseRecord,
	byID map[string]models.QuestionDefinition,
) []models.Warning {
	type effective struct {
		regular []int
		reverse []int
	}
	perCategory := make(map[models.Category]*effective)
	for _, r := range responses {
		q, ok := byID[r.QuestionID]
		if !ok || q.Kind != models.QuestionKindStatement {
			continue
		}
		if r.RawValue < models.LikertMin || r.RawValue > models.LikertMax {
			continue
		}
		e, ok := perCategory[q.Category]
		if !ok {
			e = &effective{}
			perCategory[q.Category] = e
		}
		if q.ReverseScored {
			e.reverse = append(e.reverse, q.EffectiveValue(r.RawValue))
		} else {
			e.regular = append(e.regular, r.RawValue)
		}
	}

	categories := make([]models.Category, 0, len(perCategory))
	for c := range perCategory {
		categories = append(categories, c)
	}
	slices.Sort(categories)

	var warnings []models.Warning
	for _, c := range categories {
		e := perCategory[c]
		worst := 0
		for _, x := range e.regular {
			for _, y := range e.reverse {
				worst = max(worst, abs(x-y))
			}
		}
		if worst <= a.Thresholds.ContradictionDelta {
			continue
		}
		warnings = append(warnings, models.Warning{
			Kind:     models.WarningContradiction,
			Note:     fmt.Sprintf("reverse-scored and regular statements differ by %d points", worst),
			Category: c,
			Severity: float64(worst),
		})
	}
	return warnings
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
