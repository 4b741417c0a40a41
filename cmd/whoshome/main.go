package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"whoshome/internal/auth"
	"whoshome/internal/config"
	"whoshome/internal/creds"
	"whoshome/internal/database"
	"whoshome/internal/handlers"
	"whoshome/internal/presence"
	"whoshome/internal/router"
	"whoshome/internal/router/unifi"
)

var (
	Version = "dev" // Set by build process
)

var (
	configFile  = flag.String("config", "config.yaml", "Path to configuration file")
	netrcFile   = flag.String("netrc", "", "Path to netrc file with router credentials (default ~/.netrc)")
	logLevel    = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	onlineOnly  = flag.Bool("online", false, "With the clients command: list only connected clients")
	showVersion = flag.Bool("version", false, "Show version and exit")
)

const usage = `Usage: whoshome [flags] <command> [args]

Commands:
  whoshome                Print who is home right now
  clients                 List known clients (use -online for connected only)
  block <client-name>     Block a client by its display name
  unblock <client-name>   Unblock a client by its display name
  set-password <user> <password>
                          Set the admin account for the web API
  watch                   Poll the router and record arrivals/departures
  serve                   Run the web API (includes the watcher)
`

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("whoshome %s\n", Version)
		os.Exit(0)
	}

	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	switch *logLevel {
	case "debug":
		logger.SetLevel(logrus.DebugLevel)
	case "info":
		logger.SetLevel(logrus.InfoLevel)
	case "warn":
		logger.SetLevel(logrus.WarnLevel)
	case "error":
		logger.SetLevel(logrus.ErrorLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}

	if flag.NArg() < 1 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.LoadOrInitialize(*configFile)
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// set-password only touches the config, no router needed.
	if flag.Arg(0) == "set-password" {
		if flag.NArg() != 3 {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		cfg.Web.Admin.Username = flag.Arg(1)
		if err := cfg.SetAdminPassword(flag.Arg(2)); err != nil {
			logger.Fatalf("Failed to hash password: %v", err)
		}
		if err := config.SaveConfig(*configFile, cfg); err != nil {
			logger.Fatalf("Failed to save configuration: %v", err)
		}
		logger.Infof("Admin account %q updated", flag.Arg(1))
		return
	}

	if cfg.Router.Host == "" {
		logger.Fatalf("router.host is not configured, edit %s", *configFile)
	}

	provider := creds.NetrcProvider{Path: *netrcFile}
	rt, err := unifi.NewClient(cfg.Router.Host, cfg.Router.Site, provider, cfg.Timeout(), unifi.NewLogrusAdapter(logger))
	if err != nil {
		logger.Fatalf("Failed to create router interface: %v", err)
	}

	switch cmd := flag.Arg(0); cmd {
	case "whoshome":
		err = showWhosHome(rt, cfg)
	case "clients":
		err = listClients(rt, *onlineOnly)
	case "block":
		err = blockClient(rt, flag.Arg(1), true)
	case "unblock":
		err = blockClient(rt, flag.Arg(1), false)
	case "watch":
		err = runWatch(logger, rt, cfg)
	case "serve":
		err = runServe(logger, rt, cfg)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if err != nil {
		logger.Fatalf("%v", err)
	}
}

// findClient resolves a display name to a client via the known-clients list.
func findClient(rt router.Router, name string) (router.Client, error) {
	if name == "" {
		return router.Client{}, fmt.Errorf("a client name is required")
	}
	clients, err := rt.KnownClients()
	if err != nil {
		return router.Client{}, fmt.Errorf("listing known clients: %w", err)
	}
	for _, c := range clients {
		if c.Name == name {
			return c, nil
		}
	}
	return router.Client{}, fmt.Errorf("could not find client named %s", name)
}

func blockClient(rt router.Router, name string, block bool) error {
	client, err := findClient(rt, name)
	if err != nil {
		return err
	}
	if block {
		return rt.Block(client)
	}
	return rt.Unblock(client)
}

func showWhosHome(rt router.Router, cfg *config.Config) error {
	online, err := rt.OnlineClients()
	if err != nil {
		return fmt.Errorf("listing connected clients: %w", err)
	}
	for _, p := range presence.WhosHome(cfg.Persons, online) {
		fmt.Printf("%s is home\n", p.Name)
	}
	return nil
}

func listClients(rt router.Router, online bool) error {
	var clients []router.Client
	var err error
	if online {
		clients, err = rt.OnlineClients()
	} else {
		clients, err = rt.KnownClients()
	}
	if err != nil {
		return err
	}
	for _, c := range clients {
		fmt.Printf("%s\t%s\n", c.MAC, c.Name)
	}
	return nil
}

func runWatch(logger *logrus.Logger, rt router.Router, cfg *config.Config) error {
	db, err := database.Initialize(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer db.Close()

	monitor := &presence.Monitor{
		Router:   rt,
		DB:       db,
		Logger:   logger,
		Persons:  cfg.Persons,
		Interval: cfg.PollEvery(),
	}
	monitor.Start()
	defer monitor.Stop()

	waitForSignal(logger)
	return nil
}

func runServe(logger *logrus.Logger, rt router.Router, cfg *config.Config) error {
	if !cfg.HasAdmin() {
		return fmt.Errorf("no admin account configured, run: whoshome set-password <user> <password>")
	}

	db, err := database.Initialize(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer db.Close()

	monitor := &presence.Monitor{
		Router:   rt,
		DB:       db,
		Logger:   logger,
		Persons:  cfg.Persons,
		Interval: cfg.PollEvery(),
	}
	monitor.Start()
	defer monitor.Stop()

	app := &handlers.App{
		Config:       cfg,
		DB:           db,
		Logger:       logger,
		Router:       rt,
		SessionStore: auth.NewSessionStore(cfg.Web.SessionSecret),
	}

	server := &http.Server{
		Addr:         cfg.Web.Listen,
		Handler:      setupRoutes(app),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		waitForSignal(logger)
		_ = server.Close()
	}()

	logger.Infof("Starting web API on http://%s", cfg.Web.Listen)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("web server failed: %w", err)
	}
	return nil
}

func setupRoutes(app *handlers.App) *mux.Router {
	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/login", app.LoginHandler).Methods("POST")
	api.HandleFunc("/logout", app.LogoutHandler).Methods("POST")

	// Protected routes (require authentication)
	protected := api.PathPrefix("/").Subrouter()
	protected.Use(app.AuthMiddleware)
	protected.HandleFunc("/whoshome", app.WhosHomeHandler).Methods("GET")
	protected.HandleFunc("/clients", app.ClientsHandler).Methods("GET")
	protected.HandleFunc("/events", app.EventsHandler).Methods("GET")
	protected.HandleFunc("/clients/{mac}/block", app.BlockHandler).Methods("POST")
	protected.HandleFunc("/clients/{mac}/unblock", app.UnblockHandler).Methods("POST")

	return r
}

func waitForSignal(logger *logrus.Logger) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	logger.Info("Shutting down...")
}
