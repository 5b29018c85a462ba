package models

import (
	"time"
)

// AssessmentType selects the question bank, category set and insight catalog of an assessment.
type AssessmentType string

const (
	AssessmentTypeAttachmentStyle     AssessmentType = "attachment_style"
	AssessmentTypeRelationshipPattern AssessmentType = "relationship_pattern"
)

// Category is a scoring dimension such as an attachment style or a relationship pattern.
type Category string

const (
	CategorySecure          Category = "secure"
	CategoryAnxious         Category = "anxious"
	CategoryAvoidant        Category = "avoidant"
	CategoryFearfulAvoidant Category = "fearful_avoidant"

	CategoryIdealize              Category = "idealize"
	CategoryAvoidConflict         Category = "avoid_conflict"
	CategoryRebound               Category = "rebound"
	CategorySabotage              Category = "sabotage"
	CategoryBoundaryDeficit       Category = "boundary_deficit"
	CategoryRoleExpectation       Category = "role_expectation"
	CategoryUnavailablePreference Category = "unavailable_preference"
	CategoryValidationSeeking     Category = "validation_seeking"
)

// CanonicalOrdering returns the category ordering used to break ties for the assessment type.
func CanonicalOrdering(t AssessmentType) ([]Category, error) {
	switch t {
	case AssessmentTypeAttachmentStyle:
		return []Category{CategorySecure, CategoryAnxious, CategoryAvoidant, CategoryFearfulAvoidant}, nil
	case AssessmentTypeRelationshipPattern:
		return []Category{
			CategoryIdealize,
			CategoryAvoidConflict,
			CategoryRebound,
			CategorySabotage,
			CategoryBoundaryDeficit,
			CategoryRoleExpectation,
			CategoryUnavailablePreference,
			CategoryValidationSeeking,
		}, nil
	default:
		return nil, ErrUnknownAssessmentType
	}
}

// State is a step of the assessment lifecycle. Transitions only move forward.
type State string

const (
	StateStarted           State = "started"
	StateInProgress        State = "in_progress"
	StateSubmitted         State = "submitted"
	StateScored            State = "scored"
	StateInsightsGenerated State = "insights_generated"
	StateFinalized         State = "finalized"
)

// AcceptsResponses reports whether answers may still be recorded.
func (s State) AcceptsResponses() bool {
	return s == StateStarted || s == StateInProgress
}

// TimelineEntry is a respondent-described period of their relationship history.
type TimelineEntry struct {
	Period      string `json:"period"`
	Description string `json:"description"`
}

// RespondentContext is optional background supplied by the respondent when starting an assessment. It is passed to
// the narrative generator and never influences scoring.
type RespondentContext struct {
	DatingPhase        string `json:"datingPhase,omitempty"`
	RecentRelationship string `json:"recentRelationship,omitempty"`
	// StressLevel is 1-5, 0 when unknown.
	StressLevel int             `json:"stressLevel,omitempty"`
	Timeline    []TimelineEntry `json:"timeline,omitempty"`
}

// AssessmentRecord is the aggregate root persisted by the lifecycle manager.
type AssessmentRecord struct {
	ID             string         `json:"id"`
	UserID         string         `json:"userId,omitempty"`
	AssessmentType AssessmentType `json:"assessmentType"`
	BankVersion    string         `json:"bankVersion"`
	State          State          `json:"state"`
	// Version is incremented on every persisted write and used for optimistic concurrency control.
	Version          int64                 `json:"version"`
	Context          RespondentContext     `json:"context"`
	Responses        []ResponseRecord      `json:"responses"`
	Classification   *ClassificationResult `json:"classification,omitempty"`
	Insights         *InsightPayload       `json:"insights,omitempty"`
	InsightsDegraded bool                  `json:"insightsDegraded"`
	CreatedAt        time.Time             `json:"createdAt"`
	SubmittedAt      *time.Time            `json:"submittedAt,omitempty"`
	FinalizedAt      *time.Time            `json:"finalizedAt,omitempty"`
}
