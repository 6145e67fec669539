package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		// dev | staging | prod
		Env string `yaml:"env"`
	} `yaml:"app"`

	Server struct {
		Addr               string   `yaml:"addr"`
		CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
	} `yaml:"server"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	Storage struct {
		DSN      string `yaml:"dsn"`
		Postgres struct {
			MaxConns        int    `yaml:"max_conns"`
			ConnMaxLifetime string `yaml:"conn_max_lifetime"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	// KV es el coordination store compartido (magic links, estado OAuth).
	// kind: "redis" en producción (multi-instancia), "memory" sólo dev/tests.
	KV struct {
		Kind  string `yaml:"kind"`
		Redis struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"kv"`

	Session struct {
		AccessTTL string `yaml:"access_ttl"`
		Cookie    struct {
			Name     string `yaml:"name"`
			Domain   string `yaml:"domain"`
			SameSite string `yaml:"samesite"`
			Secure   bool   `yaml:"secure"`
		} `yaml:"cookie"`
	} `yaml:"session"`

	MagicLink struct {
		TTL string `yaml:"ttl"`
	} `yaml:"magic_link"`

	Social struct {
		StateTTL    string `yaml:"state_ttl"`
		RetryWindow string `yaml:"retry_window"`
		Google      struct {
			ClientID     string `yaml:"client_id"`
			ClientSecret string `yaml:"client_secret"`
			RedirectURL  string `yaml:"redirect_url"`
		} `yaml:"google"`
		GitHub struct {
			ClientID     string `yaml:"client_id"`
			ClientSecret string `yaml:"client_secret"`
			RedirectURL  string `yaml:"redirect_url"`
		} `yaml:"github"`
	} `yaml:"social"`

	Webhook struct {
		Secret    string `yaml:"secret"`
		Tolerance string `yaml:"tolerance"`
	} `yaml:"webhook"`

	Rate struct {
		Enabled   bool `yaml:"enabled"`
		MagicLink struct {
			Limit  int    `yaml:"limit"`
			Window string `yaml:"window"`
		} `yaml:"magic_link"`
		Social struct {
			Limit  int    `yaml:"limit"`
			Window string `yaml:"window"`
		} `yaml:"social"`
	} `yaml:"rate"`

	SMTP struct {
		Host               string `yaml:"host"`
		Port               int    `yaml:"port"`
		Username           string `yaml:"username"`
		Password           string `yaml:"password"`
		From               string `yaml:"from"`
		TLS                string `yaml:"tls"` // auto | starttls | ssl | none
		InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
	} `yaml:"smtp"`

	Email struct {
		BaseURL        string `yaml:"base_url"`
		DebugEchoLinks bool   `yaml:"debug_echo_links"`
	} `yaml:"email"`
}

// Load lee la config YAML, aplica defaults y overrides por ENV.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, err
		}
	}

	// sane defaults
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.KV.Kind == "" {
		c.KV.Kind = "memory"
	}
	if c.Session.AccessTTL == "" {
		c.Session.AccessTTL = "15m"
	}
	if c.Session.Cookie.Name == "" {
		c.Session.Cookie.Name = "dk_session"
	}
	if c.Session.Cookie.SameSite == "" {
		c.Session.Cookie.SameSite = "lax"
	}
	if c.MagicLink.TTL == "" {
		c.MagicLink.TTL = "15m"
	}
	if c.Social.StateTTL == "" {
		c.Social.StateTTL = "10m"
	}
	if c.Social.RetryWindow == "" {
		c.Social.RetryWindow = "30s"
	}
	if c.Webhook.Tolerance == "" {
		c.Webhook.Tolerance = "300s"
	}
	if c.Rate.MagicLink.Limit == 0 {
		c.Rate.MagicLink.Limit = 5
	}
	if c.Rate.MagicLink.Window == "" {
		c.Rate.MagicLink.Window = "1m"
	}
	if c.Rate.Social.Limit == 0 {
		c.Rate.Social.Limit = 20
	}
	if c.Rate.Social.Window == "" {
		c.Rate.Social.Window = "1m"
	}
	if c.SMTP.TLS == "" {
		c.SMTP.TLS = "auto"
	}

	c.applyEnvOverrides()

	// validar duraciones en strings antes de arrancar
	for name, s := range map[string]string{
		"session.access_ttl":  c.Session.AccessTTL,
		"magic_link.ttl":      c.MagicLink.TTL,
		"social.state_ttl":    c.Social.StateTTL,
		"social.retry_window": c.Social.RetryWindow,
		"webhook.tolerance":   c.Webhook.Tolerance,
		"rate.magic_link.window": c.Rate.MagicLink.Window,
		"rate.social.window":     c.Rate.Social.Window,
	} {
		if _, err := time.ParseDuration(s); err != nil {
			return nil, fmt.Errorf("config: %s: %w", name, err)
		}
	}
	if c.Storage.Postgres.ConnMaxLifetime != "" {
		if _, err := time.ParseDuration(c.Storage.Postgres.ConnMaxLifetime); err != nil {
			return nil, fmt.Errorf("config: storage.postgres.conn_max_lifetime: %w", err)
		}
	}

	return &c, nil
}

// Dur parsea una duración que ya fue validada en Load.
func Dur(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

func (c *Config) applyEnvOverrides() {
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	if v, ok := getEnvStr("STORAGE_DSN"); ok {
		c.Storage.DSN = v
	}
	if v, ok := getEnvStr("KV_KIND"); ok {
		c.KV.Kind = v
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.KV.Redis.Addr = v
	}
	if v, ok := getEnvStr("REDIS_PASSWORD"); ok {
		c.KV.Redis.Password = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.KV.Redis.DB = v
	}
	if v, ok := getEnvStr("REDIS_PREFIX"); ok {
		c.KV.Redis.Prefix = v
	}
	if v, ok := getEnvStr("SESSION_ACCESS_TTL"); ok {
		c.Session.AccessTTL = v
	}
	if v, ok := getEnvStr("SESSION_COOKIE_NAME"); ok {
		c.Session.Cookie.Name = v
	}
	if v, ok := getEnvBool("SESSION_COOKIE_SECURE"); ok {
		c.Session.Cookie.Secure = v
	}
	if v, ok := getEnvStr("SOCIAL_GOOGLE_CLIENT_ID"); ok {
		c.Social.Google.ClientID = v
	}
	if v, ok := getEnvStr("SOCIAL_GOOGLE_CLIENT_SECRET"); ok {
		c.Social.Google.ClientSecret = v
	}
	if v, ok := getEnvStr("SOCIAL_GITHUB_CLIENT_ID"); ok {
		c.Social.GitHub.ClientID = v
	}
	if v, ok := getEnvStr("SOCIAL_GITHUB_CLIENT_SECRET"); ok {
		c.Social.GitHub.ClientSecret = v
	}
	if v, ok := getEnvStr("WEBHOOK_SECRET"); ok {
		c.Webhook.Secret = v
	}
	if v, ok := getEnvBool("RATE_ENABLED"); ok {
		c.Rate.Enabled = v
	}
	if v, ok := getEnvStr("SMTP_HOST"); ok {
		c.SMTP.Host = v
	}
	if v, ok := getEnvInt("SMTP_PORT"); ok {
		c.SMTP.Port = v
	}
	if v, ok := getEnvStr("SMTP_USERNAME"); ok {
		c.SMTP.Username = v
	}
	if v, ok := getEnvStr("SMTP_PASSWORD"); ok {
		c.SMTP.Password = v
	}
	if v, ok := getEnvStr("SMTP_FROM"); ok {
		c.SMTP.From = v
	}
	if v, ok := getEnvStr("EMAIL_BASE_URL"); ok {
		c.Email.BaseURL = v
	}
}

func getEnvStr(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	return v, ok && strings.TrimSpace(v) != ""
}

func getEnvInt(key string) (int, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, false
	}
	return n, true
}

func getEnvBool(key string) (bool, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return false, false
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, false
	}
	return b, true
}
