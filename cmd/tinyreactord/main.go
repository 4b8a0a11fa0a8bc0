// tinyreactord starts the reactor, wires the auth database, and shuts
// everything down cleanly on SIGINT.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kfcemployee/tinyreactor/internal/auth"
	"github.com/kfcemployee/tinyreactor/internal/config"
	"github.com/kfcemployee/tinyreactor/internal/logctx"
	"github.com/kfcemployee/tinyreactor/internal/reactor"
	"github.com/kfcemployee/tinyreactor/internal/sqlpool"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	opt, err := config.ParseFlags(os.Args[1:])
	if err != nil {
		return fmt.Errorf("tinyreactord: %w", err)
	}

	sink := logctx.NewSink(logctx.SinkConfig{ServiceName: opt.ServiceName, Telemetry: opt.Telemetry})
	logger := logctx.New(logctx.Config{
		Enabled:   opt.OpenLog,
		Level:     opt.LogLevel,
		QueueSize: opt.LogQueueSize,
	}, sink)
	defer logger.Close()

	dbPool, err := sqlpool.Open(sqlpool.Config{DSN: opt.SQLDSN, Size: opt.ConnPoolNum})
	if err != nil {
		return fmt.Errorf("tinyreactord: open sql pool: %w", err)
	}
	defer dbPool.ClosePool()

	initCtx, cancelInit := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelInit()
	if err := dbPool.Scoped(initCtx, func(db *sql.DB) error {
		return auth.EnsureSchema(initCtx, db)
	}); err != nil {
		return fmt.Errorf("tinyreactord: ensure schema: %w", err)
	}

	verifier := auth.New(dbPool)

	srv, err := reactor.New(reactor.Config{
		Port:        opt.Port,
		SrcDir:      opt.SrcDir,
		Trigger:     reactor.TriggerMode(opt.TrigMode),
		IdleTimeout: time.Duration(opt.TimeoutMS) * time.Millisecond,
		Linger:      opt.OptLinger,
		Workers:     opt.ThreadNum,
	}, func(user, password string, isLogin bool) bool {
		return verifier.Verify(context.Background(), user, password, isLogin)
	}, logger.Logger)
	if err != nil {
		return fmt.Errorf("tinyreactord: %w", err)
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go srv.Run()
	logger.Info("listening", "port", opt.Port, "src_dir", opt.SrcDir)

	<-sigCtx.Done()
	logger.Info("shutting down")
	srv.Stop()
	srv.Wait()
	return nil
}
