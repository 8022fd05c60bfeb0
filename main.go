package main

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/storage/memory/v2"
	"github.com/gofiber/storage/redis/v3"
	"github.com/gofiber/template/html/v2"
	"github.com/quantalab/labauth/internal/accounts"
	"github.com/quantalab/labauth/internal/audit"
	"github.com/quantalab/labauth/internal/common"
	"github.com/quantalab/labauth/internal/config"
	"github.com/quantalab/labauth/internal/handlers/api"
	"github.com/quantalab/labauth/internal/handlers/web"
	"github.com/quantalab/labauth/internal/lockout"
	labmail "github.com/quantalab/labauth/internal/mail"
	"github.com/quantalab/labauth/internal/middlewares"
	"github.com/quantalab/labauth/internal/middlewares/authgate"
	"github.com/quantalab/labauth/internal/middlewares/origin"
	"github.com/quantalab/labauth/internal/render"
	"github.com/quantalab/labauth/internal/store"
	"github.com/quantalab/labauth/internal/token"
	"github.com/quantalab/labauth/model"
	"github.com/quantalab/labauth/params"
	"github.com/urfave/cli/v2"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

//go:embed templates/*.html
var templateFS embed.FS

var (
	app       *cli.App
	gitCommit string
	gitDate   string
)

var (
	configFileFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "YAML config file",
		Value: "config.yaml",
	}
	debugFlag = &cli.BoolFlag{
		Name:  "debug",
		Usage: "Enable debug logging",
	}
)

func init() {
	app = cli.NewApp()
	app.EnableBashCompletion = true
	app.Usage = "labauth - Authentication server for the lab website"
	app.Flags = []cli.Flag{
		configFileFlag,
		debugFlag,
	}
	app.Commands = []*cli.Command{
		{
			Name: "version",
			Action: func(ctx *cli.Context) error {
				fmt.Println(params.VersionWithCommit(gitCommit, gitDate))
				return nil
			},
		},
	}
	app.Action = run
}

func mustInitLogger(debug bool) {
	logLevel := slog.LevelInfo
	if debug {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))
}

func mustInitDatabase(dbConfig config.MySQLConfig) *gorm.DB {
	db, err := gorm.Open(mysql.Open(dbConfig.Dsn), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{
			TablePrefix:   dbConfig.TablePrefix,
			SingularTable: true,
		},
	})
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := db.AutoMigrate(model.Models...); err != nil {
		slog.Error("Database migration failed", "error", err)
		os.Exit(1)
	}

	return db
}

func mustInitHtmlEngine(templateDir string) *html.Engine {
	var htmlEngine *html.Engine
	if templateDir != "" {
		htmlEngine = html.NewFileSystem(http.Dir(templateDir), ".html")
	} else {
		renderFS, _ := fs.Sub(templateFS, "templates")
		htmlEngine = html.NewFileSystem(http.FS(renderFS), ".html")
	}
	return htmlEngine
}

func mustInitMailSender(mailCfg config.MailConfig) labmail.MailSender {
	if mailCfg.Backend == "" {
		return nil
	}
	if mailCfg.Backend != "smtp" {
		slog.Error("Unsupported mail sender backend", "backend", mailCfg.Backend)
		os.Exit(1)
	}
	sender, err := labmail.NewSMTPMailSender(labmail.SMTPConfig{
		Host:     mailCfg.SMTP.Host,
		Port:     mailCfg.SMTP.Port,
		Username: mailCfg.SMTP.Username,
		Password: mailCfg.SMTP.Password,
		TLS:      mailCfg.SMTP.TLS,
		CertFile: mailCfg.SMTP.CertFile,
		KeyFile:  mailCfg.SMTP.KeyFile,
		CAFile:   mailCfg.SMTP.CAFile,
	}, mailCfg.SMTP.From)
	if err != nil {
		slog.Error("Failed to initialize SMTP mail sender", "error", err)
		os.Exit(1)
	}
	return sender
}

func mustInitJWTSecret(configured string) string {
	if configured != "" {
		return configured
	}
	secret, err := common.GenerateSecret(params.JWTSecretLength)
	if err != nil {
		slog.Error("Failed to generate signing secret", "error", err)
		os.Exit(1)
	}
	slog.Warn("JWT_SECRET is not set, using a generated secret; sessions will not survive a restart")
	return secret
}

func setupRoutes(
	router fiber.Router,
	cfg *config.Config,
	rateLimitStorage fiber.Storage,
	tokens *token.Service,
	tracker *lockout.Tracker,
	auditLog *audit.Logger,
	accountService *accounts.Service) {

	var (
		authHandler = api.NewAuthHandler(accountService, tokens, tracker, auditLog, cfg.AdminPassword, api.CookieConfig{
			Name:   cfg.Session.CookieName,
			Secure: cfg.Session.CookieSecure,
		})
		adminHandler = api.NewAdminHandler(accountService, auditLog)
		loginHandler = web.NewLoginHandler(tokens, cfg.Session.CookieName, cfg.SiteName)
	)

	gate := authgate.New(authgate.Config{
		Tokens:     tokens,
		CookieName: cfg.Session.CookieName,
		LoginPath:  params.AdminLoginPath,
		Audit:      auditLog,
	})
	originCheck := origin.New(origin.Config{
		AllowedOrigins: cfg.AllowOrigins,
		Audit:          auditLog,
	})
	loginThrottle := limiter.New(limiter.Config{
		Max:        params.LoginRateLimitMax,
		Expiration: params.LoginRateLimitWindow,
		Storage:    rateLimitStorage,
	})

	// public pages
	router.Get(params.AdminLoginPath, loginHandler.GetLogin)
	router.Get("/admin/reset-password", loginHandler.GetResetPassword)

	// authentication endpoints; mutating routes go through the origin check
	authAPI := router.Group("/api/auth", originCheck)
	authAPI.Post("/login", loginThrottle, authHandler.PostLogin)
	authAPI.Post("/logout", authHandler.Logout)
	authAPI.Get("/logout", authHandler.Logout)
	authAPI.Post("/forgot-password", loginThrottle, authHandler.PostForgotPassword)
	authAPI.Post("/reset-password", loginThrottle, authHandler.PostResetPassword)
	authAPI.Get("/me", gate, authHandler.GetMe)

	// protected admin area
	router.Get("/admin", gate, loginHandler.GetAdminHome)
	router.Use("/admin/*", gate)
	router.Use("/api/media", originCheck, gate)
	router.Use("/api/media/*", originCheck, gate)

	adminAPI := router.Group("/api/admin", originCheck, gate)
	adminAPI.Get("/accounts", adminHandler.GetAccounts)
	adminAPI.Post("/accounts", authgate.RequireRole(model.RoleSuperAdmin), adminHandler.PostAccounts)
	adminAPI.Patch("/accounts/:id", authgate.RequireRole(model.RoleSuperAdmin), adminHandler.PatchAccount)
	adminAPI.Get("/audit", authgate.RequireRole(model.RoleSuperAdmin), adminHandler.GetAuditEvents)
}

func run(ctx *cli.Context) error {
	cfg, err := config.LoadConfig(ctx.String(configFileFlag.Name))
	if err != nil {
		slog.Error("Could not load config file.", "error", err)
		return err
	}

	mustInitLogger(cfg.Debug || ctx.IsSet(debugFlag.Name))

	globalVars := fiber.Map{
		"siteName": cfg.SiteName,
		"baseURL":  cfg.BaseURL,
	}
	htmlEngine := mustInitHtmlEngine(cfg.TemplateDir)
	if err := render.Initialize(globalVars, cfg.TemplateDir); err != nil {
		return err
	}
	mailSender := mustInitMailSender(cfg.Mail)

	// storage backends: redis when configured, in-process otherwise
	var (
		attemptStorage   store.Storage
		rateLimitStorage fiber.Storage
		redisStorage     *redis.Storage
	)
	if cfg.Redis.URL != "" {
		redisStorage = redis.New(redis.Config{
			URL:           cfg.Redis.URL,
			PoolSize:      cfg.Redis.PoolSize,
			IsClusterMode: cfg.Redis.ClusterMode,
		})
		attemptStorage = store.NewRedisStorage(redisStorage.Conn())
		rateLimitStorage = redisStorage
	} else {
		attemptStorage = store.NewMemoryStorage()
		rateLimitStorage = memory.New()
	}

	var (
		db             *gorm.DB
		accountService *accounts.Service
		eventRepo      audit.EventRepository
	)
	if cfg.MySQL.Dsn != "" {
		db = mustInitDatabase(cfg.MySQL)
		accountService = accounts.NewService(
			accounts.NewGormAccountRepository(db), mailSender, cfg.BaseURL,
			cfg.Login.MaxAttempts, cfg.Login.LockoutDuration)
		eventRepo = audit.NewGormEventRepository(db)
	} else {
		slog.Warn("No database configured, running with the fixed admin password only")
		eventRepo = audit.NewMemoryEventRepository(params.AuditLogMaxEvents)
	}
	auditLog := audit.NewLogger(eventRepo)

	tokens := token.NewService(mustInitJWTSecret(cfg.JWTSecret), cfg.Session.Timeout)
	tracker := lockout.NewTracker(attemptStorage, cfg.Login.MaxAttempts, cfg.Login.LockoutDuration)

	router := fiber.New(fiber.Config{
		Prefork:       false,
		CaseSensitive: true,
		BodyLimit:     params.ServerBodyLimit,
		IdleTimeout:   params.ServerIdleTimeout,
		ReadTimeout:   params.ServerReadTimeout,
		WriteTimeout:  params.ServerWriteTimeout,
		Views:         htmlEngine,
		ErrorHandler:  middlewares.ErrorHandler,
	})

	router.Use(recover.New())
	router.Use(logger.New())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.AllowOrigins, ", "),
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: len(cfg.AllowOrigins) > 0,
	}))

	setupRoutes(router, cfg, rateLimitStorage, tokens, tracker, auditLog, accountService)

	healthCheckCtx, term := context.WithCancel(ctx.Context)
	done := make(chan struct{})
	if redisStorage != nil {
		go common.StartHealthCheckServer(healthCheckCtx, done, redisStorage.Conn(), db)
	} else {
		go common.StartHealthCheckServer(healthCheckCtx, done, nil, db)
	}
	defer func() {
		term()
		<-done
	}()
	return router.Listen(cfg.ListenAddr)
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
