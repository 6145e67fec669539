// dokustatus es el servicio de autenticación multi-tenant: magic links,
// login social y sesiones firmadas por tenant.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	rdb "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/sssemil/dokustatus-sub002/internal/config"
	"github.com/sssemil/dokustatus-sub002/internal/email"
	httpserver "github.com/sssemil/dokustatus-sub002/internal/http"
	"github.com/sssemil/dokustatus-sub002/internal/kv"
	"github.com/sssemil/dokustatus-sub002/internal/magiclink"
	"github.com/sssemil/dokustatus-sub002/internal/oauth/github"
	"github.com/sssemil/dokustatus-sub002/internal/oauth/google"
	"github.com/sssemil/dokustatus-sub002/internal/observability/logger"
	"github.com/sssemil/dokustatus-sub002/internal/rate"
	"github.com/sssemil/dokustatus-sub002/internal/session"
	"github.com/sssemil/dokustatus-sub002/internal/social"
	"github.com/sssemil/dokustatus-sub002/internal/store"
	"github.com/sssemil/dokustatus-sub002/internal/store/pg"
	"github.com/sssemil/dokustatus-sub002/internal/token"
	"github.com/sssemil/dokustatus-sub002/internal/webhook"
)

var version = "dev"

func main() {
	// .env es best-effort: en prod las vars vienen del entorno
	_ = godotenv.Load()

	var cfgPath string

	root := &cobra.Command{
		Use:     "dokustatus",
		Short:   "Authentication-as-a-service: magic links, social login y sesiones por tenant",
		Version: version,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "ruta del config YAML")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Levanta el servidor HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cfgPath)
		},
	}

	// derive-key es una herramienta de soporte: reproduce la clave de firma
	// derivada para chequear integraciones de tenants sin tocar el servicio.
	var dkTenant, dkAPIKey string
	deriveCmd := &cobra.Command{
		Use:   "derive-key",
		Short: "Deriva la signing key (hex) para un par tenant/api key",
		RunE: func(cmd *cobra.Command, args []string) error {
			tid, err := uuid.Parse(dkTenant)
			if err != nil {
				return fmt.Errorf("tenant inválido: %w", err)
			}
			key, err := token.DeriveSigningKey([]byte(dkAPIKey), tid)
			if err != nil {
				return err
			}
			fmt.Println(string(key))
			return nil
		},
	}
	deriveCmd.Flags().StringVar(&dkTenant, "tenant", "", "tenant ID (uuid)")
	deriveCmd.Flags().StringVar(&dkAPIKey, "api-key", "", "api key cruda")
	_ = deriveCmd.MarkFlagRequired("tenant")
	_ = deriveCmd.MarkFlagRequired("api-key")

	// hash-link reproduce la lookup key de un magic link (debug de soporte:
	// correlacionar un link reportado con la key en Redis sin guardar tokens).
	var hlToken, hlTenant string
	hashCmd := &cobra.Command{
		Use:   "hash-link",
		Short: "Calcula la lookup key de un magic link",
		RunE: func(cmd *cobra.Command, args []string) error {
			tid, err := uuid.Parse(hlTenant)
			if err != nil {
				return fmt.Errorf("tenant inválido: %w", err)
			}
			fmt.Println(magiclink.HashKey(hlToken, tid))
			return nil
		},
	}
	hashCmd.Flags().StringVar(&hlToken, "token", "", "token crudo del link")
	hashCmd.Flags().StringVar(&hlTenant, "tenant", "", "tenant ID (uuid)")
	_ = hashCmd.MarkFlagRequired("token")
	_ = hashCmd.MarkFlagRequired("tenant")

	root.AddCommand(serveCmd, deriveCmd, hashCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       cfg.Log.Level,
		ServiceName: "dokustatus",
		Version:     version,
	})
	defer func() { _ = logger.Sync() }()
	log := logger.L()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ─── coordination store ───
	var kvClient kv.Client
	var redisRaw *rdb.Client
	switch cfg.KV.Kind {
	case "redis":
		rc, err := kv.NewRedis(kv.Config{
			Addr:     cfg.KV.Redis.Addr,
			Password: cfg.KV.Redis.Password,
			DB:       cfg.KV.Redis.DB,
			Prefix:   cfg.KV.Redis.Prefix,
		})
		if err != nil {
			return err
		}
		kvClient = rc
		redisRaw = rc.Redis()
		log.Info("kv: redis", logger.String("addr", cfg.KV.Redis.Addr))
	default:
		kvClient = kv.NewMemory(cfg.KV.Redis.Prefix)
		log.Warn("kv: memory (solo dev, no sirve multi-instancia)")
	}
	defer kvClient.Close()

	// ─── storage ───
	var st store.Store
	if cfg.Storage.DSN != "" {
		st, err = pg.New(ctx, pg.Config{
			DSN:             cfg.Storage.DSN,
			MaxConns:        cfg.Storage.Postgres.MaxConns,
			ConnMaxLifetime: config.Dur(cfg.Storage.Postgres.ConnMaxLifetime),
		})
		if err != nil {
			return err
		}
		log.Info("storage: postgres")
	} else {
		st = store.NewMemory()
		log.Warn("storage: memory (solo dev, datos volátiles)")
	}
	defer st.Close()

	// ─── core ───
	codec := token.NewCodec(config.Dur(cfg.Session.AccessTTL))
	links := magiclink.NewStore(kvClient, config.Dur(cfg.MagicLink.TTL))
	facade := session.New(st, links, codec)

	var stateStore social.StateStore
	if redisRaw != nil {
		stateStore = social.NewRedisStateStore(redisRaw)
	} else {
		stateStore = social.NewMemoryStateStore()
	}
	machine := social.NewMachine(stateStore, config.Dur(cfg.Social.StateTTL), config.Dur(cfg.Social.RetryWindow))

	// ─── providers ───
	providers := map[string]social.Provider{}
	if cfg.Social.Google.ClientID != "" {
		providers["google"] = google.New(cfg.Social.Google.ClientID, cfg.Social.Google.ClientSecret, cfg.Social.Google.RedirectURL)
		log.Info("provider habilitado", logger.Provider("google"))
	}
	if cfg.Social.GitHub.ClientID != "" {
		providers["github"] = github.New(cfg.Social.GitHub.ClientID, cfg.Social.GitHub.ClientSecret, cfg.Social.GitHub.RedirectURL)
		log.Info("provider habilitado", logger.Provider("github"))
	}

	// ─── email ───
	var sender email.Sender
	if cfg.SMTP.Host != "" {
		s := email.NewSMTPSender(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.From, cfg.SMTP.Username, cfg.SMTP.Password)
		s.TLSMode = cfg.SMTP.TLS
		s.InsecureSkipVerify = cfg.SMTP.InsecureSkipVerify
		sender = s
	} else {
		sender = email.LogSender{}
		log.Warn("smtp sin configurar: los mails van al log")
	}
	mailer, err := email.NewMagicLinkMailer(sender, cfg.Email.BaseURL, config.Dur(cfg.MagicLink.TTL))
	if err != nil {
		return err
	}

	// ─── rate limiting ───
	limitMagic, limitSocial := buildLimiters(cfg, redisRaw)

	verifier := webhook.NewVerifier([]byte(cfg.Webhook.Secret))
	verifier.Tolerance = config.Dur(cfg.Webhook.Tolerance)

	srv, err := httpserver.New(httpserver.Deps{
		Store:          st,
		KV:             kvClient,
		Facade:         facade,
		Machine:        machine,
		Providers:      providers,
		Mailer:         mailer,
		Verifier:       verifier,
		LimitMagicLink: limitMagic,
		LimitSocial:    limitSocial,
		Cookie: httpserver.CookieConfig{
			Name:     cfg.Session.Cookie.Name,
			Domain:   cfg.Session.Cookie.Domain,
			SameSite: cfg.Session.Cookie.SameSite,
			Secure:   cfg.Session.Cookie.Secure,
			TTL:      config.Dur(cfg.Session.AccessTTL),
		},
		CORSAllowedOrigins: cfg.Server.CORSAllowedOrigins,
		DebugEchoLinks:     cfg.Email.DebugEchoLinks && cfg.App.Env == "dev",
	})
	if err != nil {
		return err
	}

	addr := cfg.Server.Addr
	if addr == "" {
		addr = ":8080"
	}
	log.Info("dokustatus starting",
		logger.String("version", version),
		logger.String("env", cfg.App.Env),
		logger.Int("providers", len(providers)),
	)
	return srv.Run(ctx, addr)
}

func buildLimiters(cfg *config.Config, redisRaw *rdb.Client) (rate.Limiter, rate.Limiter) {
	if !cfg.Rate.Enabled {
		return rate.Unlimited{}, rate.Unlimited{}
	}
	if redisRaw != nil {
		return rate.NewRedisLimiter(redisRaw, "rl:ml:", cfg.Rate.MagicLink.Limit, config.Dur(cfg.Rate.MagicLink.Window)),
			rate.NewRedisLimiter(redisRaw, "rl:so:", cfg.Rate.Social.Limit, config.Dur(cfg.Rate.Social.Window))
	}
	return rate.NewMemoryLimiter(cfg.Rate.MagicLink.Limit, config.Dur(cfg.Rate.MagicLink.Window)),
		rate.NewMemoryLimiter(cfg.Rate.Social.Limit, config.Dur(cfg.Rate.Social.Window))
}
