package main

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"flipmarket/internal/config"
	"flipmarket/internal/flip"
)

type application struct {
	errorLog *log.Logger
	infoLog  *log.Logger
	logger   *zap.SugaredLogger
	flipDeps *flip.FlipDeps
}

func initializeApp(logger *zap.Logger, flipDeps *flip.FlipDeps) (*application, error) {
	errorLog, err := zap.NewStdLogAt(logger, zap.ErrorLevel)
	if err != nil {
		return nil, err
	}
	return &application{
		errorLog: errorLog,
		infoLog:  zap.NewStdLog(logger),
		logger:   logger.Sugar(),
		flipDeps: flipDeps,
	}, nil
}

func openDB(driver, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	db.SetMaxIdleConns(35)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return db, nil
}

func openRedis(cfg config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

func openJetStream(url string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url, nats.Name("flipmarket"))
	if err != nil {
		return nil, nil, fmt.Errorf("connect nats: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream context: %w", err)
	}
	return nc, js, nil
}
