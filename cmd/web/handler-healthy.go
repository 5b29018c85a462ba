package main

import (
	"github.com/myrjola/profilescan/internal/errors"
	"log/slog"
	"net/http"
)

type healthResponse struct {
	Status string `json:"status"`
}

// healthy responds with 200 when the database answers and 503 otherwise.
func (app *application) healthy(w http.ResponseWriter, r *http.Request) {
	if err := app.ready(r.Context()); err != nil {
		app.logger.LogAttrs(r.Context(), slog.LevelWarn, "not ready", errors.SlogError(err))
		app.writeJSON(w, r, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
		return
	}
	app.writeJSON(w, r, http.StatusOK, healthResponse{Status: "ok"})
}
