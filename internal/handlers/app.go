package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"whoshome/internal/auth"
	"whoshome/internal/config"
	"whoshome/internal/database"
	"whoshome/internal/router"
)

// App bundles everything the web API handlers need.
type App struct {
	Config       *config.Config
	DB           *database.DB
	Logger       *logrus.Logger
	Router       router.Router
	SessionStore *auth.SessionStore
}

// AuthMiddleware rejects requests without an authenticated session.
func (app *App) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !app.SessionStore.IsAuthenticated(r) {
			app.sendJSONError(w, "authentication required", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (app *App) sendJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		app.Logger.Errorf("Failed to encode response: %v", err)
	}
}

// Helper function to send JSON error responses
func (app *App) sendJSONError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   message,
	}); err != nil {
		app.Logger.Errorf("Failed to encode error response: %v", err)
	}
}
