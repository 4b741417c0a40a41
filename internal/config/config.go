package config

import (
	"crypto/rand"
	"encoding/base64"
	"os"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
)

type Config struct {
	Router       RouterConfig   `mapstructure:"router"`
	Persons      []PersonConfig `mapstructure:"persons"`
	Web          WebConfig      `mapstructure:"web"`
	DatabasePath string         `mapstructure:"database_path"`
	PollInterval int            `mapstructure:"poll_interval"` // seconds
}

type RouterConfig struct {
	Host           string `mapstructure:"host"`
	Site           string `mapstructure:"site"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type PersonConfig struct {
	Name    string   `mapstructure:"name" json:"name"`
	Devices []string `mapstructure:"devices" json:"devices"`
}

type WebConfig struct {
	Listen        string      `mapstructure:"listen"`
	SessionSecret string      `mapstructure:"session_secret"`
	Admin         AdminConfig `mapstructure:"admin"`
}

type AdminConfig struct {
	Username     string `mapstructure:"username"`
	PasswordHash string `mapstructure:"password_hash"`
}

func LoadOrInitialize(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// Set defaults
	v.SetDefault("router.site", "default")
	v.SetDefault("router.timeout_seconds", 30)
	v.SetDefault("poll_interval", 30)
	v.SetDefault("database_path", "whoshome.db")
	v.SetDefault("web.listen", "127.0.0.1:8654")

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := &Config{
			Router: RouterConfig{
				Site:           v.GetString("router.site"),
				TimeoutSeconds: v.GetInt("router.timeout_seconds"),
			},
			Web: WebConfig{
				Listen:        v.GetString("web.listen"),
				SessionSecret: generateSessionSecret(),
			},
			DatabasePath: v.GetString("database_path"),
			PollInterval: v.GetInt("poll_interval"),
		}

		if err := SaveConfig(configPath, cfg); err != nil {
			return nil, err
		}

		return cfg, nil
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Ensure session secret exists
	if cfg.Web.SessionSecret == "" {
		cfg.Web.SessionSecret = generateSessionSecret()
		if err := SaveConfig(configPath, &cfg); err != nil {
			return nil, err
		}
	}

	return &cfg, nil
}

func SaveConfig(configPath string, cfg *Config) error {
	v := viper.New()
	v.SetConfigType("yaml")

	v.Set("router.host", cfg.Router.Host)
	v.Set("router.site", cfg.Router.Site)
	v.Set("router.timeout_seconds", cfg.Router.TimeoutSeconds)

	v.Set("web.listen", cfg.Web.Listen)
	v.Set("web.session_secret", cfg.Web.SessionSecret)
	v.Set("web.admin.username", cfg.Web.Admin.Username)
	v.Set("web.admin.password_hash", cfg.Web.Admin.PasswordHash)

	v.Set("database_path", cfg.DatabasePath)
	v.Set("poll_interval", cfg.PollInterval)

	// Manually set persons to ensure correct field names
	var persons []map[string]interface{}
	for _, p := range cfg.Persons {
		persons = append(persons, map[string]interface{}{
			"name":    p.Name,
			"devices": p.Devices,
		})
	}
	v.Set("persons", persons)

	return v.WriteConfigAs(configPath)
}

// Timeout is the per-request timeout for router calls.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Router.TimeoutSeconds) * time.Second
}

// PollEvery is the interval the watch/serve monitor polls the router at.
func (c *Config) PollEvery() time.Duration {
	return time.Duration(c.PollInterval) * time.Second
}

func (c *Config) HasAdmin() bool {
	return c.Web.Admin.Username != "" && c.Web.Admin.PasswordHash != ""
}

func (c *Config) SetAdminPassword(password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	c.Web.Admin.PasswordHash = string(hash)
	return nil
}

func (c *Config) VerifyAdminPassword(password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(c.Web.Admin.PasswordHash), []byte(password))
	return err == nil
}

func generateSessionSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		// This should never happen with crypto/rand
		panic(err)
	}
	return base64.URLEncoding.EncodeToString(b)
}
