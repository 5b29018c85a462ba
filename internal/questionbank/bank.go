// Package questionbank serves versioned, immutable question definitions.
package questionbank

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"github.com/myrjola/profilescan/internal/errors"
	"github.com/myrjola/profilescan/internal/models"
	"gopkg.in/yaml.v3"
	"io/fs"
	"log/slog"
	"slices"
	"strconv"
	"strings"
)

//go:embed banks/*.yaml
var banksFS embed.FS

// Definition is one version of the questions of an assessment type.
type Definition struct {
	AssessmentType models.AssessmentType `json:"assessmentType"`
	Version        string                `json:"version"`
	// Categories is the canonical category ordering.
	Categories []models.Category           `json:"categories"`
	Labels     map[models.Category]string  `json:"labels"`
	Questions  []models.QuestionDefinition `json:"questions"`
}

// Label returns the human-readable name of c.
func (d *Definition) Label(c models.Category) string {
	if label, ok := d.Labels[c]; ok {
		return label
	}
	return string(c)
}

// Question looks up a question by id.
func (d *Definition) Question(id string) (models.QuestionDefinition, bool) {
	for _, q := range d.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return models.QuestionDefinition{}, false
}

// Provider supplies question definitions. Returned definitions must not be modified.
type Provider interface {
	Questions(ctx context.Context, t models.AssessmentType, version string) (*Definition, error)
	LatestVersion(t models.AssessmentType) (string, error)
}

// rawQuestion distinguishes omitted fields from zero values so that defaults can be applied.
type rawQuestion struct {
	ID            string                  `yaml:"id"`
	Kind          models.QuestionKind     `yaml:"kind"`
	Category      models.Category         `yaml:"category"`
	Weight        *float64                `yaml:"weight"`
	ReverseScored bool                    `yaml:"reverseScored"`
	Required      *bool                   `yaml:"required"`
	Order         int                     `yaml:"order"`
	Text          string                  `yaml:"text"`
	Options       []models.ScenarioOption `yaml:"options"`
}

type rawDefinition struct {
	AssessmentType models.AssessmentType      `yaml:"assessmentType"`
	Version        string                     `yaml:"version"`
	Categories     []models.Category          `yaml:"categories"`
	Labels         map[models.Category]string `yaml:"labels"`
	Questions      []rawQuestion              `yaml:"questions"`
}

// Parse decodes and validates a YAML question bank.
func Parse(data []byte) (*Definition, error) {
	var raw rawDefinition
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&raw); err != nil {
		return nil, errors.Wrap(err, "decode question bank")
	}

	def := Definition{
		AssessmentType: raw.AssessmentType,
		Version:        raw.Version,
		Categories:     raw.Categories,
		Labels:         raw.Labels,
		Questions:      make([]models.QuestionDefinition, 0, len(raw.Questions)),
	}
	for _, q := range raw.Questions {
		question := models.QuestionDefinition{
			ID:            q.ID,
			Kind:          q.Kind,
			Category:      q.Category,
			Weight:        1,
			ReverseScored: q.ReverseScored,
			Required:      true,
			Order:         q.Order,
			Text:          q.Text,
			Options:       q.Options,
		}
		if q.Weight != nil {
			question.Weight = *q.Weight
		}
		if q.Required != nil {
			question.Required = *q.Required
		}
		def.Questions = append(def.Questions, question)
	}
	slices.SortStableFunc(def.Questions, func(a, b models.QuestionDefinition) int {
		return a.Order - b.Order
	})

	if err := def.validate(); err != nil {
		return nil, errors.Wrap(err, "validate question bank",
			slog.String("assessment_type", string(def.AssessmentType)),
			slog.String("version", def.Version))
	}
	return &def, nil
}

var ErrInvalidBank = errors.NewSentinel("invalid question bank")

func (d *Definition) validate() error {
	canonical, err := models.CanonicalOrdering(d.AssessmentType)
	if err != nil {
		return err
	}
	if d.Version == "" {
		return errors.Wrap(ErrInvalidBank, "missing version")
	}
	if !slices.Equal(canonical, d.Categories) {
		return errors.Wrap(ErrInvalidBank, "categories differ from canonical ordering")
	}
	if len(d.Questions) == 0 {
		return errors.Wrap(ErrInvalidBank, "no questions")
	}

	var (
		errorList []error
		seen      = make(map[string]struct{}, len(d.Questions))
	)
	fail := func(q models.QuestionDefinition, msg string) {
		errorList = append(errorList, errors.Wrap(ErrInvalidBank, msg, slog.String("question_id", q.ID)))
	}
	for _, q := range d.Questions {
		if q.ID == "" {
			fail(q, "missing id")
		}
		if _, ok := seen[q.ID]; ok {
			fail(q, "duplicate id")
		}
		seen[q.ID] = struct{}{}
		if q.Weight <= 0 {
			fail(q, "weight must be positive")
		}

		switch q.Kind {
		case models.QuestionKindStatement:
			if !slices.Contains(d.Categories, q.Category) {
				fail(q, fmt.Sprintf("unknown category %q", q.Category))
			}
			if len(q.Options) > 0 {
				fail(q, "statement with options")
			}
		case models.QuestionKindScenario:
			if len(q.Options) < 2 { //nolint:mnd // a choice needs two options
				fail(q, "scenario needs at least two options")
			}
			var touched int
			for _, o := range q.Options {
				if o.Weight <= 0 {
					fail(q, fmt.Sprintf("option %q weight must be positive", o.ID))
				}
				for _, c := range o.Categories {
					if !slices.Contains(d.Categories, c) {
						fail(q, fmt.Sprintf("option %q has unknown category %q", o.ID, c))
					}
				}
				touched += len(o.Categories)
			}
			if touched == 0 {
				fail(q, "scenario touches no category")
			}
		default:
			fail(q, fmt.Sprintf("unknown kind %q", q.Kind))
		}
	}
	for _, c := range d.Categories {
		if _, ok := d.Labels[c]; !ok {
			errorList = append(errorList, errors.Wrap(ErrInvalidBank, "missing label",
				slog.String("category", string(c))))
		}
	}
	return errors.Join(errorList...)
}

// Embedded serves the question banks compiled into the binary.
type Embedded struct {
	banks map[models.AssessmentType]map[string]*Definition
}

// NewEmbedded parses and validates every embedded bank.
func NewEmbedded() (*Embedded, error) {
	return NewFromFS(banksFS, "banks")
}

// NewFromFS loads every *.yaml file in dir of fsys.
func NewFromFS(fsys fs.FS, dir string) (*Embedded, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, errors.Wrap(err, "read bank dir")
	}
	e := Embedded{banks: make(map[models.AssessmentType]map[string]*Definition)}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		var data []byte
		if data, err = fs.ReadFile(fsys, dir+"/"+entry.Name()); err != nil {
			return nil, errors.Wrap(err, "read bank", slog.String("file", entry.Name()))
		}
		var def *Definition
		if def, err = Parse(data); err != nil {
			return nil, errors.Wrap(err, "parse bank", slog.String("file", entry.Name()))
		}
		versions, ok := e.banks[def.AssessmentType]
		if !ok {
			versions = make(map[string]*Definition)
			e.banks[def.AssessmentType] = versions
		}
		if _, ok = versions[def.Version]; ok {
			return nil, errors.Wrap(ErrInvalidBank, "duplicate version",
				slog.String("assessment_type", string(def.AssessmentType)),
				slog.String("version", def.Version))
		}
		versions[def.Version] = def
	}
	return &e, nil
}

func (e *Embedded) Questions(_ context.Context, t models.AssessmentType, version string) (*Definition, error) {
	versions, ok := e.banks[t]
	if !ok {
		return nil, errors.Wrap(models.ErrUnknownAssessmentType, "questions", slog.String("assessment_type", string(t)))
	}
	def, ok := versions[version]
	if !ok {
		return nil, errors.Wrap(models.ErrNotFound, "question bank version",
			slog.String("assessment_type", string(t)), slog.String("version", version))
	}
	return def, nil
}

// LatestVersion returns the highest version of the assessment type. Versions look like "v1", "v2" and compare
// numerically.
func (e *Embedded) LatestVersion(t models.AssessmentType) (string, error) {
	versions, ok := e.banks[t]
	if !ok || len(versions) == 0 {
		return "", errors.Wrap(models.ErrUnknownAssessmentType, "latest version",
			slog.String("assessment_type", string(t)))
	}
	var latest string
	for v := range versions {
		if latest == "" || compareVersions(v, latest) > 0 {
			latest = v
		}
	}
	return latest, nil
}

func compareVersions(a, b string) int {
	an, aErr := strconv.Atoi(strings.TrimPrefix(a, "v"))
	bn, bErr := strconv.Atoi(strings.TrimPrefix(b, "v"))
	if aErr != nil || bErr != nil {
		return strings.Compare(a, b)
	}
	return an - bn
}
