// Entry point for the pixivmcp gateway: config loading, credential manager,
// dual-path Pixiv clients, route table with hot reload, and the HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/pixivmcp/config"
	"github.com/hazyhaar/pixivmcp/dbopen"
	"github.com/hazyhaar/pixivmcp/dispatch"
	"github.com/hazyhaar/pixivmcp/dualpath"
	"github.com/hazyhaar/pixivmcp/gateway"
	"github.com/hazyhaar/pixivmcp/observability"
	"github.com/hazyhaar/pixivmcp/pixivapi"
	"github.com/hazyhaar/pixivmcp/shield"
	"github.com/hazyhaar/pixivmcp/token"
	"github.com/hazyhaar/pixivmcp/watch"
)

const version = "1.0.0"

type options struct {
	Config   string `short:"c" long:"config" env:"CONFIG_FILE" description:"path to the YAML configuration file"`
	Addr     string `long:"addr" description:"listen address (overrides config)"`
	LogLevel string `long:"log-level" description:"debug, info, warn or error (overrides config)"`
	RoutesDB string `long:"routes-db" description:"path to the routes/metrics SQLite database (overrides config)"`
	Version  bool   `long:"version" description:"print version and exit"`
}

func main() {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		var fe *flags.Error
		if errors.As(err, &fe) && fe.Type == flags.ErrHelp {
			return
		}
		os.Exit(2)
	}
	if opts.Version {
		fmt.Println("pixivmcp " + version)
		return
	}

	cfg, err := config.Load(opts.Config)
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	// Flags beat environment and file.
	if opts.Addr != "" {
		cfg.Server.Addr = opts.Addr
	}
	if opts.LogLevel != "" {
		cfg.Server.LogLevel = opts.LogLevel
	}
	if opts.RoutesDB != "" {
		cfg.Routes.DBPath = opts.RoutesDB
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}

	// Logging.
	var lvl slog.Level
	switch cfg.Server.LogLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	// Signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Routes/metrics DB holds the route overrides, shield tables and the
	// observability call log.
	db, err := dbopen.Open(cfg.Routes.DBPath,
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(dualpath.RoutesSchema+shield.Schema+observability.Schema))
	if err != nil {
		slog.Error("routes db", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Credential manager.
	store := token.NewStore(cfg.Pixiv.TokenPath)
	tokens, err := token.NewManager(store, cfg.Pixiv.RefreshToken, token.WithLogger(logger))
	if err != nil {
		slog.Error("no refresh token: set PIXIV_REFRESH_TOKEN or populate the token file",
			"path", cfg.Pixiv.TokenPath, "error", err)
		os.Exit(1)
	}

	// Standard-path client.
	standard, err := pixivapi.NewStandard(cfg.Pixiv.Timeout, cfg.Pixiv.ProxyURL,
		pixivapi.WithLogger(logger), pixivapi.WithDownloadDir(cfg.Pixiv.DownloadDir))
	if err != nil {
		slog.Error("standard client", "error", err)
		os.Exit(1)
	}

	// Bypass-path client: optional, and a startup failure (bad pinned IPs,
	// DoH unreachable) degrades to single-path rather than aborting.
	var bypass pixivapi.API
	if cfg.Pixiv.Bypass.Enabled {
		bp, err := pixivapi.NewBypass(ctx, cfg.Pixiv.Bypass.IPs, cfg.Pixiv.Timeout,
			pixivapi.WithLogger(logger), pixivapi.WithDownloadDir(cfg.Pixiv.DownloadDir))
		if err != nil {
			slog.Warn("bypass client unavailable, running single-path", "error", err)
		} else {
			bypass = bp
		}
	}

	// Route table with hot reload on database change.
	routes, err := dualpath.NewRouteTable(db, dispatch.KindStrings())
	if err != nil {
		slog.Error("route table", "error", err)
		os.Exit(1)
	}
	watcher := watch.New(db, watch.Options{
		Interval: cfg.Routes.WatchInterval,
		Debounce: cfg.Routes.WatchDebounce,
		Logger:   logger,
	})
	go watcher.OnChange(ctx, routes.Reload)

	// Call metrics.
	recorder := observability.NewCallRecorder(db, 100, 5*time.Second)
	defer recorder.Close()

	heartbeat := observability.NewHeartbeatWriter(db, "pixivmcp", 15*time.Second)
	heartbeat.Start(ctx)

	// Adapter and dispatch.
	adapter, err := dualpath.NewAdapter(standard, bypass, tokens, routes,
		dualpath.WithTimeout(cfg.Pixiv.Timeout),
		dualpath.WithLogger(logger),
		dualpath.WithRecorder(recorder))
	if err != nil {
		slog.Error("adapter", "error", err)
		os.Exit(1)
	}
	router := dispatch.NewRouter(adapter, dispatch.WithLogger(logger))

	mcpSrv := mcp.NewServer(&mcp.Implementation{Name: "pixivmcp", Version: version}, nil)
	router.RegisterMCP(mcpSrv)

	// Gateway.
	gw, err := gateway.New(gateway.Deps{
		Router:        router,
		Routes:        routes,
		DB:            db,
		MCP:           mcpSrv,
		Tokens:        tokens,
		Recorder:      recorder,
		Heartbeat:     heartbeat,
		JWTSecret:     []byte(cfg.Admin.JWTSecret),
		CORSOrigins:   cfg.Server.CORSOrigins,
		RateLimit:     cfg.Pixiv.RateLimit,
		BatchSize:     cfg.Stream.BatchSize,
		BypassEnabled: adapter.BypassEnabled(),
		Version:       version,
		Logger:        logger,
	})
	if err != nil {
		slog.Error("gateway", "error", err)
		os.Exit(1)
	}
	gw.StartReloaders(ctx.Done())

	// HTTP server. WriteTimeout stays unset: SSE responses are long-lived.
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           gw.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	go func() {
		slog.Info("server starting",
			"addr", cfg.Server.Addr,
			"bypass", adapter.BypassEnabled(),
			"admin", cfg.Admin.JWTSecret != "")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	slog.Info("server stopped")
}
