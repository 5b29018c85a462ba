package main

import (
	"github.com/myrjola/profilescan/internal/logging"
	"github.com/myrjola/profilescan/internal/models"
	"net/http"
	"time"
)

type startRequest struct {
	AssessmentType models.AssessmentType `json:"assessmentType"`
	// UserID is optional. Anonymous assessments skip the retake cooldown.
	UserID  string                   `json:"userId"`
	Context models.RespondentContext `json:"context"`
}

type responseInput struct {
	QuestionID     string              `json:"questionId"`
	RawValue       int                 `json:"rawValue"`
	ResponseTimeMs int64               `json:"responseTimeMs"`
	Kind           models.QuestionKind `json:"kind,omitempty"`
	AnsweredAt     *time.Time          `json:"answeredAt,omitempty"`
}

func (in responseInput) record() models.ResponseRecord {
	r := models.ResponseRecord{
		QuestionID:     in.QuestionID,
		RawValue:       in.RawValue,
		ResponseTimeMs: in.ResponseTimeMs,
		Category:       "",
		Kind:           in.Kind,
		AnsweredAt:     time.Time{},
	}
	if in.AnsweredAt != nil {
		r.AnsweredAt = *in.AnsweredAt
	}
	return r
}

type submitRequest struct {
	Responses []responseInput `json:"responses"`
}

func (app *application) startAssessment(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeJSON(r, &req, false); err != nil {
		app.writeError(w, r, err)
		return
	}
	record, err := app.assessments.Start(r.Context(), req.AssessmentType, req.UserID, req.Context)
	if err != nil {
		app.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/assessments/"+record.ID)
	app.writeJSON(w, r, http.StatusCreated, record)
}

func (app *application) getAssessment(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	record, err := app.assessments.GetResult(logging.WithAssessment(r.Context(), id), id)
	if err != nil {
		app.writeError(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusOK, record)
}

func (app *application) recordResponse(w http.ResponseWriter, r *http.Request) {
	var in responseInput
	if err := decodeJSON(r, &in, false); err != nil {
		app.writeError(w, r, err)
		return
	}
	if _, err := app.assessments.RecordResponse(r.Context(), r.PathValue("id"), in.record()); err != nil {
		app.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// submitAssessment accepts an optional body with the responses not recorded yet.
func (app *application) submitAssessment(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decodeJSON(r, &req, true); err != nil {
		app.writeError(w, r, err)
		return
	}
	responses := make([]models.ResponseRecord, 0, len(req.Responses))
	for _, in := range req.Responses {
		responses = append(responses, in.record())
	}
	record, err := app.assessments.Submit(r.Context(), r.PathValue("id"), responses)
	if err != nil {
		app.writeError(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusOK, record)
}

func (app *application) questionBank(w http.ResponseWriter, r *http.Request) {
	definition, err := app.assessments.Questions(r.Context(), models.AssessmentType(r.PathValue("type")))
	if err != nil {
		app.writeError(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusOK, definition)
}
