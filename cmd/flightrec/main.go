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

	"golang.org/x/sync/errgroup"

	"flightrec/internal/api"
	"flightrec/pkg/appstate"
	"flightrec/pkg/clock"
	"flightrec/pkg/config"
	"flightrec/pkg/db"
	"flightrec/pkg/db/maintenance"
	"flightrec/pkg/dialog"
	"flightrec/pkg/logging"
	"flightrec/pkg/probe"
	"flightrec/pkg/recorder"
	"flightrec/pkg/replay"
	"flightrec/pkg/sim"
	"flightrec/pkg/storage"
	"flightrec/pkg/store"
	"flightrec/pkg/version"
)

const defaultConfigPath = "configs/flightrec.yaml"

var (
	initConfig = flag.Bool("init-config", false, "Generate default config file and exit")
	configPath = flag.String("config", defaultConfigPath, "Path to the config file")
)

func main() {
	flag.Parse()

	// Handle --init-config flag
	if *initConfig {
		if err := config.GenerateDefault(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Config file generated:", *configPath)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL ERROR: Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	appCfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cleanupLogs, err := logging.Init(&appCfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer cleanupLogs()

	slog.Info("flightrec Started", "version", version.Version)

	dbConn, st, err := initDB(appCfg)
	if err != nil {
		return err
	}
	defer dbConn.Close()

	if err := maintenance.Run(ctx, st, dbConn, time.Duration(appCfg.Storage.Retention)); err != nil {
		slog.Error("Maintenance tasks failed", "error", err)
	}

	settings := config.NewProvider(appCfg, st)

	saveFolder, _ := settings.DefaultSaveFolder(ctx)
	results := probe.Run(ctx, []probe.Probe{
		probe.Database(dbConn),
		probe.WritableFolder(saveFolder),
	})
	if err := probe.AnalyzeResults(results); err != nil {
		return fmt.Errorf("startup checks failed: %w", err)
	}

	simClient, err := initializeSimClient(ctx, appCfg, settings)
	if err != nil {
		return fmt.Errorf("failed to initialize sim client: %w", err)
	}
	defer simClient.Close()
	guarded := sim.NewGuarded(simClient)

	engine := replay.New(guarded,
		replay.WithThrottleInterval(settings.ThrottleInterval(ctx)),
		replay.WithRate(settings.ReplayRate(ctx)),
	)
	dlg := dialog.NewHeadless(settings, st)

	app, err := appstate.New(appstate.Deps{
		Sim:         guarded,
		Recorder:    recorder.New(clock.Real{}),
		Replay:      engine,
		Dialog:      dlg,
		Storage:     storage.New(st),
		Settings:    settings,
		StopTimeout: settings.StopTimeout(ctx),
	})
	if err != nil {
		return fmt.Errorf("failed to build application state: %w", err)
	}
	defer app.Close()

	if err := app.Start(ctx); err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}

	return runServer(ctx, appCfg, app, engine, dlg, settings, st)
}

func initDB(appCfg *config.Config) (*db.DB, store.Store, error) {
	dbConn, err := db.Init(appCfg.DB.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return dbConn, store.NewSQLiteStore(dbConn), nil
}

func runServer(ctx context.Context, cfg *config.Config, app *appstate.App, engine *replay.Engine, dlg *dialog.Headless, settings config.Provider, st store.Store) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream := api.NewStreamHandler(app, dlg, settings.ThrottleInterval(ctx))
	defer stream.Close()

	srv := api.NewServer(cfg.Server.Address,
		api.NewStateHandler(app, settings),
		api.NewFilesHandler(app, dlg, st),
		api.NewSettingsHandler(settings, engine),
		stream,
		cancel,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		stream.Run(gctx)
		return nil
	})
	g.Go(func() error {
		slog.Info("Starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			slog.Info("Shutting down server...")
		case <-app.Done():
			slog.Info("Application exited, shutting down server...")
		}
		defer cancel()
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
