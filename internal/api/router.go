package api

import (
	"net/http"

	"nav-relay-service/internal/api/handlers"
	"nav-relay-service/internal/nav"
)

// NewRouter wires the websocket endpoint and the liveness check. This is the
// API composition root; handlers stay unaware of concrete adapters behind
// the engine.
func NewRouter(engine *nav.Engine, wsPath string) http.Handler {
	if wsPath == "" {
		wsPath = "/ws"
	}

	mux := http.NewServeMux()

	navHandler := handlers.NewNavigationHandler(engine)

	mux.HandleFunc("/health", handlers.Health)
	mux.HandleFunc(wsPath, navHandler.Serve)

	return loggingMiddleware(mux)
}
