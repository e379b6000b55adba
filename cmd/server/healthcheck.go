package main

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

type healthResponse struct {
	Status      string `json:"status"`
	Uptime      string `json:"uptime"`
	Sessions    int    `json:"sessions"`
	Connections int    `json:"connections"`
	Rooms       int    `json:"rooms"`
	Engines     int    `json:"engines"`
}

// handleHealth handles the GET /health endpoint
func (app *application) handleHealth(w http.ResponseWriter, _ *http.Request) {
	connections, rooms := app.Hub.Stats()

	resp := healthResponse{
		Status:      "ok",
		Uptime:      time.Since(app.StartTime).Round(time.Second).String(),
		Sessions:    app.Manager.Count(),
		Connections: connections,
		Rooms:       rooms,
	}
	if app.Engines != nil {
		resp.Engines = app.Engines.Size()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		app.Logger.Error("failed to write health response", zap.Error(err))
	}
}

// handleMoveGreeting handles GET /api/move, a liveness placeholder
func (app *application) handleMoveGreeting(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("Hello there"))
}

// handleMoveSubmit handles POST /api/move. Moves travel over the websocket.
func (app *application) handleMoveSubmit(w http.ResponseWriter, _ *http.Request) {
	http.Error(w, "moves are submitted over the websocket", http.StatusNotImplemented)
}
