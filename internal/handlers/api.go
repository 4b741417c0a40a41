package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"whoshome/internal/presence"
	"whoshome/internal/router"
)

// LoginHandler authenticates against the configured admin account and
// establishes a session cookie.
func (app *App) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		app.sendJSONError(w, "invalid request", http.StatusBadRequest)
		return
	}

	if !app.Config.HasAdmin() {
		app.sendJSONError(w, "no admin account configured", http.StatusForbidden)
		return
	}
	if req.Username != app.Config.Web.Admin.Username || !app.Config.VerifyAdminPassword(req.Password) {
		app.Logger.Infof("Rejected login for user %q", req.Username)
		app.sendJSONError(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	if err := app.SessionStore.Login(r, w); err != nil {
		app.Logger.Errorf("Failed to save session: %v", err)
		app.sendJSONError(w, "session error", http.StatusInternalServerError)
		return
	}

	app.sendJSON(w, map[string]interface{}{"success": true})
}

func (app *App) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	if err := app.SessionStore.Logout(r, w); err != nil {
		app.Logger.Errorf("Failed to clear session: %v", err)
	}
	app.sendJSON(w, map[string]interface{}{"success": true})
}

// WhosHomeHandler lists the configured persons with a device online.
func (app *App) WhosHomeHandler(w http.ResponseWriter, r *http.Request) {
	online, err := app.Router.OnlineClients()
	if err != nil {
		app.Logger.Errorf("Failed to list online clients: %v", err)
		app.sendJSONError(w, "router unavailable", http.StatusBadGateway)
		return
	}

	home := presence.WhosHome(app.Config.Persons, online)
	names := make([]string, 0, len(home))
	for _, p := range home {
		names = append(names, p.Name)
	}

	app.sendJSON(w, map[string]interface{}{
		"success": true,
		"home":    names,
	})
}

// ClientsHandler lists clients; ?scope=online narrows to connected ones.
func (app *App) ClientsHandler(w http.ResponseWriter, r *http.Request) {
	var clients []router.Client
	var err error

	switch r.URL.Query().Get("scope") {
	case "", "known":
		clients, err = app.Router.KnownClients()
	case "online":
		clients, err = app.Router.OnlineClients()
	default:
		app.sendJSONError(w, "scope must be known or online", http.StatusBadRequest)
		return
	}
	if err != nil {
		app.Logger.Errorf("Failed to list clients: %v", err)
		app.sendJSONError(w, "router unavailable", http.StatusBadGateway)
		return
	}

	app.sendJSON(w, map[string]interface{}{
		"success": true,
		"clients": clients,
	})
}

// EventsHandler returns recorded arrivals/departures, newest first.
func (app *App) EventsHandler(w http.ResponseWriter, r *http.Request) {
	if app.DB == nil {
		app.sendJSONError(w, "event log not enabled", http.StatusNotFound)
		return
	}

	hours := 24
	if v := r.URL.Query().Get("hours"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			app.sendJSONError(w, "hours must be a positive integer", http.StatusBadRequest)
			return
		}
		hours = parsed
	}

	events, err := app.DB.GetRecentEvents(hours)
	if err != nil {
		app.Logger.Errorf("Failed to query events: %v", err)
		app.sendJSONError(w, "database error", http.StatusInternalServerError)
		return
	}

	app.sendJSON(w, map[string]interface{}{
		"success": true,
		"events":  events,
	})
}

// BlockHandler blocks the client with the MAC from the URL.
func (app *App) BlockHandler(w http.ResponseWriter, r *http.Request) {
	app.stationCommand(w, r, true)
}

// UnblockHandler unblocks the client with the MAC from the URL.
func (app *App) UnblockHandler(w http.ResponseWriter, r *http.Request) {
	app.stationCommand(w, r, false)
}

func (app *App) stationCommand(w http.ResponseWriter, r *http.Request, block bool) {
	mac := mux.Vars(r)["mac"]
	if mac == "" {
		app.sendJSONError(w, "missing mac", http.StatusBadRequest)
		return
	}

	client := router.Client{MAC: mac}
	// Best effort: pick up the display name for logging.
	if known, err := app.Router.KnownClients(); err == nil {
		for _, c := range known {
			if c.MAC == mac {
				client = c
				break
			}
		}
	}

	var err error
	if block {
		err = app.Router.Block(client)
	} else {
		err = app.Router.Unblock(client)
	}
	if err != nil {
		app.Logger.Errorf("Station command for %s failed: %v", mac, err)
		app.sendJSONError(w, "router command failed", http.StatusBadGateway)
		return
	}

	app.sendJSON(w, map[string]interface{}{"success": true})
}
