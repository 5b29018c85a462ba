package main

import (
	"encoding/json"
	"github.com/myrjola/profilescan/internal/errors"
	"github.com/myrjola/profilescan/internal/models"
	"io"
	"log/slog"
	"net/http"
)

var errMalformedBody = errors.NewSentinel("malformed request body")

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
	// Missing lists the required questions without an answer.
	Missing []string `json:"missing,omitempty"`
}

func (app *application) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		app.serverError(w, r, errors.Wrap(err, "marshal response"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err = w.Write(data); err != nil {
		app.logger.LogAttrs(r.Context(), slog.LevelWarn, "failed to write response", errors.SlogError(err))
	}
}

// decodeJSON decodes the request body into v. An empty body leaves v untouched when allowEmpty is set.
func decodeJSON(r *http.Request, v any, allowEmpty bool) error {
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return errors.Wrap(errMalformedBody, err.Error())
	}
	if decoder.More() {
		return errors.Wrap(errMalformedBody, "trailing data")
	}
	return nil
}

// writeError maps domain errors to status codes. Unknown errors become 500.
func (app *application) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var incomplete *models.IncompleteResponsesError
	switch {
	case errors.As(err, &incomplete):
		app.clientError(w, r, http.StatusUnprocessableEntity, err, errorResponse{
			Error:   models.ErrIncompleteResponses.Error(),
			Missing: incomplete.Missing,
		})
	case errors.Is(err, models.ErrNotFound):
		app.clientError(w, r, http.StatusNotFound, err, errorResponse{Error: models.ErrNotFound.Error(), Missing: nil})
	case errors.Is(err, errMalformedBody),
		errors.Is(err, models.ErrUnknownAssessmentType),
		errors.Is(err, models.ErrUnknownQuestion),
		errors.Is(err, models.ErrInvalidResponse):
		app.clientError(w, r, http.StatusBadRequest, err, errorResponse{Error: rootMessage(err), Missing: nil})
	case errors.Is(err, models.ErrInvalidState):
		app.clientError(w, r, http.StatusConflict, err, errorResponse{Error: models.ErrInvalidState.Error(), Missing: nil})
	case models.IsRetryable(err):
		w.Header().Set("Retry-After", "1")
		app.clientError(w, r, http.StatusConflict, err, errorResponse{Error: rootMessage(err), Missing: nil})
	case errors.Is(err, models.ErrRetakeCooldown):
		app.clientError(w, r, http.StatusTooManyRequests, err,
			errorResponse{Error: models.ErrRetakeCooldown.Error(), Missing: nil})
	default:
		app.serverError(w, r, err)
	}
}

// rootMessage returns the message of the first known sentinel in err.
func rootMessage(err error) string {
	for _, sentinel := range []error{
		errMalformedBody,
		models.ErrUnknownAssessmentType,
		models.ErrUnknownQuestion,
		models.ErrInvalidResponse,
		models.ErrAlreadyProcessing,
		models.ErrStaleVersion,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return http.StatusText(http.StatusBadRequest)
}

func (app *application) serverError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		method = r.Method
		uri    = r.URL.RequestURI()
	)

	app.logger.LogAttrs(r.Context(), slog.LevelError, "server error",
		slog.String("method", method), slog.String("uri", uri), errors.SlogError(err))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: http.StatusText(http.StatusInternalServerError), Missing: nil})
}

func (app *application) clientError(
	w http.ResponseWriter,
	r *http.Request,
	status int,
	err error,
	body errorResponse,
) {
	var (
		method = r.Method
		uri    = r.URL.RequestURI()
	)

	app.logger.LogAttrs(r.Context(), slog.LevelDebug, http.StatusText(status),
		slog.String("method", method), slog.String("uri", uri), errors.SlogError(err))
	app.writeJSON(w, r, status, body)
}

func (app *application) notFound(w http.ResponseWriter, r *http.Request) {
	app.writeError(w, r, errors.Wrap(models.ErrNotFound, "no route"))
}
