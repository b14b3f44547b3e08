package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/cors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"flipmarket/internal/config"
	"flipmarket/internal/flip"
)

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Printf("Warning: Error loading .env file: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	cfg, err := config.LoadConfig()
	if err != nil {
		sugar.Fatalw("load config", "error", err)
	}
	flipCfg, err := flip.LoadFlipConfig()
	if err != nil {
		sugar.Fatalw("load flip config", "error", err)
	}

	port := os.Getenv("PORT")
	switch {
	case port != "":
		port = ":" + port
	case cfg.Server.Address != "":
		port = cfg.Server.Address
	default:
		port = ":4001"
	}
	addr := flag.String("addr", port, "HTTP network address")
	flag.Parse()

	flipDeps := &flip.FlipDeps{
		Logger: sugar,
		Config: flipCfg,
	}

	if cfg.Database.Driver != "" {
		db, err := openDB(cfg.Database.Driver, cfg.Database.URL)
		if err != nil {
			sugar.Fatalw("open database", "error", err)
		}
		defer db.Close()
		flipDeps.DB = db
		flipDeps.DBDriver = cfg.Database.Driver
		sugar.Infof("connected to %s database", cfg.Database.Driver)
	}

	if cfg.Redis.Addr != "" {
		rdb := openRedis(cfg)
		defer rdb.Close()
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			sugar.Warnw("redis unavailable, commit fan-out disabled", "error", err)
		} else {
			flipDeps.RDB = rdb
		}
		cancel()
	}

	if cfg.NATS.URL != "" {
		nc, js, err := openJetStream(cfg.NATS.URL)
		if err != nil {
			sugar.Fatalw("open jetstream", "error", err)
		}
		defer nc.Drain()
		flipDeps.JS = js
	}

	app, err := initializeApp(logger, flipDeps)
	if err != nil {
		sugar.Fatalw("init app", "error", err)
	}

	handler, err := app.routes()
	if err != nil {
		sugar.Fatalw("register routes", "error", err)
	}

	origins := cfg.CORS.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowCredentials: true,
		AllowedHeaders:   []string{"Content-Type", "X-Viewer-ID"},
		ExposedHeaders:   []string{"X-Viewer-ID"},
	})

	srv := &http.Server{
		Addr:         *addr,
		ErrorLog:     app.errorLog,
		Handler:      addSecurityHeaders(c.Handler(handler)),
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: flipCfg.FlipWait + 5*time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := flip.StartFlipWorkers(ctx, flipDeps); err != nil {
		sugar.Fatalw("start flip workers", "error", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		app.infoLog.Printf("Starting server on %s", *addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		sugar.Errorw("server stopped", "error", err)
		os.Exit(1)
	}
	sugar.Info("server stopped")
}
