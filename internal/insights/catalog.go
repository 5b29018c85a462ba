package insights

import (
	"embed"
	"fmt"
	"github.com/myrjola/profilescan/internal/errors"
	"github.com/myrjola/profilescan/internal/models"
	"gopkg.in/yaml.v3"
	"log/slog"
	"maps"
	"strings"
)

//go:embed catalog/*.yaml
var catalogFS embed.FS

type categoryEntry struct {
	Label          string   `yaml:"label"`
	Interpretation string   `yaml:"interpretation"`
	Examples       []string `yaml:"examples"`
	Triggers       []string `yaml:"triggers"`
	Strategies     []string `yaml:"strategies"`
	Blindspots     []string `yaml:"blindspots"`
}

// Catalog holds the static content of one assessment type.
type Catalog struct {
	AssessmentType      models.AssessmentType             `yaml:"assessmentType"`
	Title               string                            `yaml:"title"`
	LowConfidenceNote   string                            `yaml:"lowConfidenceNote"`
	Exercises           []models.Exercise                 `yaml:"exercises"`
	ConversationScripts map[string]string                 `yaml:"conversationScripts"`
	RecommendedTools    []models.Tool                     `yaml:"recommendedTools"`
	Categories          map[models.Category]categoryEntry `yaml:"categories"`
}

// LoadCatalogs reads the embedded catalogs and checks that every canonical category has an entry.
func LoadCatalogs() (map[models.AssessmentType]*Catalog, error) {
	catalogs := make(map[models.AssessmentType]*Catalog)
	for _, t := range []models.AssessmentType{
		models.AssessmentTypeAttachmentStyle,
		models.AssessmentTypeRelationshipPattern,
	} {
		data, err := catalogFS.ReadFile("catalog/" + string(t) + ".yaml")
		if err != nil {
			return nil, errors.Wrap(err, "read catalog", slog.String("assessment_type", string(t)))
		}
		var c Catalog
		if err = yaml.Unmarshal(data, &c); err != nil {
			return nil, errors.Wrap(err, "decode catalog", slog.String("assessment_type", string(t)))
		}
		ordering, err := models.CanonicalOrdering(t)
		if err != nil {
			return nil, err //nolint:wrapcheck // sentinel
		}
		for _, category := range ordering {
			entry, ok := c.Categories[category]
			if !ok || entry.Label == "" || entry.Interpretation == "" || len(entry.Examples) == 0 ||
				len(entry.Triggers) == 0 || len(entry.Strategies) == 0 || len(entry.Blindspots) == 0 {
				return nil, errors.New("incomplete catalog entry",
					slog.String("assessment_type", string(t)),
					slog.String("category", string(category)))
			}
		}
		catalogs[t] = &c
	}
	return catalogs, nil
}

// Label returns the display name of c.
func (c *Catalog) Label(category models.Category) string {
	if entry, ok := c.Categories[category]; ok && entry.Label != "" {
		return entry.Label
	}
	return string(category)
}

// blindspotThreshold is the index from which statements and scenarios point to different categories.
const blindspotThreshold = 50

// Fallback builds a deterministic payload from the catalog.
func (c *Catalog) Fallback(prompt StructuredPrompt) models.InsightPayload {
	entry := c.Categories[prompt.Primary.Category]

	var interpretation strings.Builder
	interpretation.WriteString(entry.Interpretation)
	if prompt.Secondary != nil {
		fmt.Fprintf(&interpretation, " %s traits scored close behind (%.0f%%).",
			prompt.Secondary.Label, prompt.Secondary.Score)
	}
	if prompt.LowConfidence {
		interpretation.WriteString(" ")
		interpretation.WriteString(c.LowConfidenceNote)
	}

	blindspots := append([]string(nil), entry.Blindspots...)
	if prompt.BlindspotIndex >= blindspotThreshold {
		blindspots = append(blindspots, fmt.Sprintf(
			"How you describe yourself and what you choose in concrete situations point in different directions "+
				"(blindspot index %.0f).", prompt.BlindspotIndex))
	}

	payload := models.InsightPayload{
		Headline:            fmt.Sprintf("Your %s: %s (%.0f%% match)", c.Title, prompt.Primary.Label, prompt.Primary.Score),
		Interpretation:      interpretation.String(),
		Examples:            append([]string(nil), entry.Examples...),
		Triggers:            append([]string(nil), entry.Triggers...),
		Strategies:          append([]string(nil), entry.Strategies...),
		Blindspots:          blindspots,
		Exercises:           nil,
		ConversationScripts: nil,
		RecommendedTools:    nil,
		Source:              models.InsightSourceFallback,
	}
	return c.Complete(payload)
}

// Complete fills in the static exercises, conversation scripts and tools a payload leaves out.
func (c *Catalog) Complete(p models.InsightPayload) models.InsightPayload {
	if len(p.Exercises) == 0 {
		p.Exercises = append([]models.Exercise(nil), c.Exercises...)
	}
	if len(p.ConversationScripts) == 0 {
		p.ConversationScripts = maps.Clone(c.ConversationScripts)
	}
	if len(p.RecommendedTools) == 0 {
		p.RecommendedTools = append([]models.Tool(nil), c.RecommendedTools...)
	}
	return p
}
