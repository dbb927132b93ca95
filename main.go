package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"agrinet/api"
	"agrinet/models"
	"agrinet/scheduler"
)

func main() {
	// 本地開發用 .env，正式環境直接吃環境變數
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	args := ParseArgs()
	if !args.Validate() {
		panic("missing arguments")
	}

	server, err := api.NewServer(args.ServerConfig, logger)
	if err != nil {
		panic(err)
	}

	if err := server.DB().AutoMigrate(
		&models.User{},
		&models.CropType{},
		&models.Listing{},
		&models.Bid{},
		&models.BarterOffer{},
		&models.PriceHistory{},
		&models.Image{},
	); err != nil {
		panic(err)
	}

	if err := server.Start(); err != nil {
		panic(err)
	}

	priceScheduler := scheduler.NewScheduler(server.DB(), logger)
	if err := priceScheduler.Start(); err != nil {
		panic(err)
	}

	router := gin.Default()
	server.RegisterRoutes(router)

	httpServer := &http.Server{Addr: args.ServerURL, Handler: router}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server stopped", slog.Any("error", err))
		}
	}()
	logger.Info("server listening", slog.String("addr", args.ServerURL))

	// 等待終止信號後依序收掉 HTTP、排程和背景元件
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", slog.Any("error", err))
	}
	priceScheduler.Stop()
	if err := server.Close(); err != nil {
		logger.Error("server close failed", slog.Any("error", err))
	}
}
