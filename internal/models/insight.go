package models

type InsightSource string

const (
	InsightSourceNarrative InsightSource = "narrative"
	InsightSourceFallback  InsightSource = "fallback"
)

type Exercise struct {
	Title       string   `json:"title" yaml:"title"`
	Description string   `json:"description" yaml:"description"`
	Steps       []string `json:"steps" yaml:"steps"`
}

type Tool struct {
	Name   string `json:"name" yaml:"name"`
	URL    string `json:"url,omitempty" yaml:"url"`
	Reason string `json:"reason" yaml:"reason"`
}

// InsightPayload is the human-readable explanation of a classification.
type InsightPayload struct {
	Headline            string            `json:"headline" yaml:"headline"`
	Interpretation      string            `json:"interpretation" yaml:"interpretation"`
	Examples            []string          `json:"examples" yaml:"examples"`
	Triggers            []string          `json:"triggers" yaml:"triggers"`
	Strategies          []string          `json:"strategies" yaml:"strategies"`
	Blindspots          []string          `json:"blindspots" yaml:"blindspots"`
	Exercises           []Exercise        `json:"exercises" yaml:"exercises"`
	ConversationScripts map[string]string `json:"conversationScripts" yaml:"conversationScripts"`
	RecommendedTools    []Tool            `json:"recommendedTools" yaml:"recommendedTools"`
	Source              InsightSource     `json:"source" yaml:"-"`
}
