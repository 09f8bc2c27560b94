package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"helpinghands/api/app"
	"helpinghands/api/config"
	"helpinghands/api/db"
	"helpinghands/api/internal"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	gin.SetMode(gin.ReleaseMode)

	err := config.Setup()
	if err != nil {
		panic(err)
	}

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	if err := app.SetupLogger(cfg); err != nil {
		panic(err)
	}
	defer zap.L().Sync()

	conn, err := db.New(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		zap.L().Fatal("Failed to initialize database", zap.Error(err))
	}

	d, err := internal.NewDeps(cfg, conn)
	if err != nil {
		zap.L().Fatal("Failed to build dependencies", zap.Error(err))
	}

	router, err := app.NewRouter(d)
	if err != nil {
		zap.L().Fatal("Failed to create router", zap.Error(err))
	}

	d.Mail.StartWorkerPool()
	defer d.Mail.Stop()

	sweeper, err := d.Janitor.Schedule(cfg.CleanupSchedule)
	if err != nil {
		zap.L().Fatal("Failed to schedule token cleanup", zap.Error(err))
	}
	defer sweeper.Stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zap.L().Info("Server starting", zap.Int("port", cfg.Port), zap.String("env", cfg.Env), zap.Bool("ssl", cfg.SSL))

		var err error
		if cfg.SSL {
			err = srv.ListenAndServeTLS(cfg.CertPath, cfg.KeyPath)
		} else {
			err = srv.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.L().Fatal("Server stopped unexpectedly", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zap.L().Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zap.L().Error("Graceful shutdown failed", zap.Error(err))
	}
}
