// Command applyd runs the job-application engine: an HTTP control surface
// for starting and steering sessions, or an MCP stdio server exposing the
// question bank and application history to agent hosts.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/applyd/aigen"
	"github.com/hazyhaar/applyd/browser"
	"github.com/hazyhaar/applyd/control"
	"github.com/hazyhaar/applyd/dbopen"
	"github.com/hazyhaar/applyd/errdetect"
	"github.com/hazyhaar/applyd/formfill"
	"github.com/hazyhaar/applyd/locate"
	"github.com/hazyhaar/applyd/qa"
	"github.com/hazyhaar/applyd/question"
	"github.com/hazyhaar/applyd/recovery"
	"github.com/hazyhaar/applyd/session"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	mcpMode := flag.Bool("mcp", false, "serve MCP over stdio instead of HTTP")
	flag.Parse()

	// Logs go to stderr: in MCP mode stdout carries the protocol.
	var lvl slog.Level
	switch env("LOG_LEVEL", "info") {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := control.LoadConfig(*configPath)
	if err != nil {
		logger.Error("config", "error", err)
		os.Exit(1)
	}

	db, err := dbopen.Open(cfg.DBPath,
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(qa.Schema),
		dbopen.WithSchema(session.HistorySchema),
		dbopen.WithSchema(recovery.EventsSchema))
	if err != nil {
		logger.Error("open db", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	bank := qa.NewStore(db, logger)
	history := session.NewHistory(db)
	capLog := recovery.NewCaptchaLog(db)

	if *mcpMode {
		if err := runMCP(ctx, bank, history, logger); err != nil {
			logger.Error("mcp server", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := runHTTP(ctx, cfg, bank, history, capLog, logger); err != nil {
		logger.Error("http server", "error", err)
		os.Exit(1)
	}
}

func runMCP(ctx context.Context, bank *qa.Store, history *session.History, logger *slog.Logger) error {
	srv := mcp.NewServer(&mcp.Implementation{
		Name:    "applyd",
		Version: "0.1.0",
	}, nil)

	bank.RegisterMCP(srv)
	control.New(nil, history, bank, logger).RegisterMCP(srv)

	logger.Info("mcp server on stdio")
	return srv.Run(ctx, &mcp.StdioTransport{})
}

func runHTTP(ctx context.Context, cfg *control.Config, bank *qa.Store,
	history *session.History, capLog *recovery.CaptchaLog, logger *slog.Logger) error {

	bm := browser.NewManager(browser.Config{
		RemoteURL:        cfg.Browser.Remote,
		Mode:             browser.ParseMode(cfg.Browser.Mode),
		ResourceBlocking: cfg.Browser.ResourceBlocking,
		MemoryWarnLimit:  cfg.Browser.MemoryWarnLimit,
		XvfbDisplay:      cfg.Browser.XvfbDisplay,
		Logger:           logger,
	})
	if err := bm.Start(ctx); err != nil {
		return fmt.Errorf("browser start: %w", err)
	}
	defer bm.Close()

	var answerer question.Answerer
	if cfg.AI.Enabled {
		client, err := aigen.New(aigen.Config{
			BaseURL: cfg.AI.BaseURL,
			APIKey:  os.Getenv(cfg.AI.APIKeyEnv),
			Model:   cfg.AI.Model,
			Logger:  logger,
		})
		if err != nil {
			return fmt.Errorf("ai client: %w", err)
		}
		answerer = client
	}

	email := os.Getenv(cfg.Login.EmailEnv)
	password := os.Getenv(cfg.Login.PasswordEnv)

	// Sessions outlive the HTTP request that starts them, so the launcher
	// binds them to the process context, not the request context.
	launcher := func(_ context.Context, id string, sink session.Sink, req session.Request) (*session.Session, error) {
		page, err := bm.NewPage(ctx, cfg.Site.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("new page: %w", err)
		}

		loc := locate.New(page, cfg.Site.PageTimeout, logger)
		det := errdetect.New(loc, logger)

		var sess *session.Session
		var mgr *session.Manager
		rec := recovery.NewManager(det, recovery.Config{
			AutoRelogin:         cfg.Login.AutoRelogin && email != "" && password != "",
			CaptchaBlockingWait: true,
			OnCaptchaPause: func(msg string) {
				sess.EmitCaptcha(msg)
			},
			Logger: logger,
		},
			recovery.WithEventRecorder(capLog),
			recovery.WithScreenshotter(loc, "screenshots"),
			recovery.WithPageURL(loc.URL),
			recovery.WithRelogin(func(ctx context.Context) error {
				return mgr.EnsureLoggedIn(ctx)
			}))

		filler := formfill.NewHandler(formfill.Config{
			OverlapThreshold: cfg.Matching.FieldOverlap,
			ValidateFile:     formfill.ValidatePDF,
			Logger:           logger,
		})
		resolver := question.NewResolver(question.Config{
			StaticFloor:         cfg.Matching.QuestionFloor,
			SimilarityThreshold: cfg.Matching.BankThreshold,
			Logger:              logger,
		}, cfg.Profile.StaticQuestions, bank, answerer, filler)

		mgr = session.NewManager(session.Config{
			BaseURL:      cfg.Site.BaseURL,
			PageTimeout:  cfg.Site.PageTimeout,
			MaxFormSteps: cfg.Site.MaxFormSteps,
			Personals:    cfg.Profile.Personals,
			Email:        email,
			Password:     password,
			ResumePath:   cfg.Profile.ResumePath,
			Logger:       logger,
		}, loc, rec, filler, resolver, history)

		sess = session.NewSession(id, mgr, rec, sink)
		sess.Start(ctx, req)
		return sess, nil
	}

	svc := control.New(launcher, history, bank, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	svc.RegisterHTTP(r)

	httpSrv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutCancel()
		httpSrv.Shutdown(shutCtx)
	}()

	logger.Info("http server listening", "addr", cfg.Listen)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
