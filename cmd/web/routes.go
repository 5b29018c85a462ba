package main

import (
	"github.com/justinas/alice"
	"net/http"
	"time"
)

func (app *application) routes(requestTimeout time.Duration) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/healthy", app.healthy)

	mux.HandleFunc("POST /api/assessments", app.startAssessment)
	mux.HandleFunc("GET /api/assessments/{id}", app.getAssessment)
	mux.HandleFunc("PUT /api/assessments/{id}/responses", app.recordResponse)
	mux.HandleFunc("POST /api/assessments/{id}/submit", app.submitAssessment)

	mux.HandleFunc("GET /api/question-banks/{type}", app.questionBank)

	mux.HandleFunc("/", app.notFound)

	common := alice.New(app.recoverPanic, app.logRequest, secureHeaders)
	return common.Then(timeoutHandler(mux, requestTimeout))
}
