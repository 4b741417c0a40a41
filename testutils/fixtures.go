package testutils

import (
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"

	"whoshome/internal/auth"
	"whoshome/internal/config"
	"whoshome/internal/database"
	"whoshome/internal/handlers"
	"whoshome/internal/router"
)

// TestApp holds test application context
type TestApp struct {
	App    *handlers.App
	Config *config.Config
	Router *MockRouter
	DB     *database.DB
}

// NewTestApp creates a web API app wired to a mock router and a throwaway
// database.
func NewTestApp(t *testing.T) *TestApp {
	t.Helper()

	// Reduce noise in tests
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	logger.SetFormatter(&logrus.TextFormatter{
		DisableColors:    true,
		DisableTimestamp: true,
	})

	cfg := &config.Config{
		Router: config.RouterConfig{Host: "router.test", Site: "default"},
		Web: config.WebConfig{
			Listen:        "127.0.0.1:0",
			SessionSecret: "test-session-secret-32-characters!",
		},
		Persons: SamplePersons(),
	}
	cfg.Web.Admin.Username = "admin"
	if err := cfg.SetAdminPassword("testpassword123"); err != nil {
		t.Fatalf("Failed to set admin password: %v", err)
	}

	db, err := database.Initialize(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to initialize test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	mock := &MockRouter{
		Known:  SampleClients(),
		Online: SampleClients()[:2],
	}

	app := &handlers.App{
		Config:       cfg,
		DB:           db,
		Logger:       logger,
		Router:       mock,
		SessionStore: auth.NewSessionStore(cfg.Web.SessionSecret),
	}

	return &TestApp{App: app, Config: cfg, Router: mock, DB: db}
}

// SampleClients returns a canned client list: two of Anna's devices and one
// of Ben's.
func SampleClients() []router.Client {
	return []router.Client{
		{Name: "annas-phone", MAC: "aa:bb:cc:dd:ee:01"},
		{Name: "annas-tablet", MAC: "aa:bb:cc:dd:ee:02"},
		{Name: "bens-laptop", MAC: "aa:bb:cc:dd:ee:03"},
	}
}

// SamplePersons maps the sample clients onto two persons.
func SamplePersons() []config.PersonConfig {
	return []config.PersonConfig{
		{Name: "Anna", Devices: []string{"annas-phone", "annas-tablet"}},
		{Name: "Ben", Devices: []string{"bens-laptop"}},
	}
}
