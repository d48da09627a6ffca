package main

import (
	"context"
	"encoding/json"
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

	"github.com/fujikiadace-cloud/fujikiponggame/internal"
)

func main() {
	// 解析命令行參數
	var (
		port        = flag.Int("port", 8787, "服務器端口")
		staticDir   = flag.String("static", "public", "靜態資源目錄")
		orientation = flag.String("orientation", "horizontal", "場地方向 (horizontal, vertical)")
		logLevel    = flag.String("log-level", "info", "日誌級別 (debug, info, warn, error)")
		logFormat   = flag.String("log-format", "text", "日誌格式 (text, json)")
	)
	flag.Parse()

	// 設置日誌
	logger := setupLogger(*logLevel, *logFormat)

	o, err := internal.ParseOrientation(*orientation)
	if err != nil {
		logger.Error("設定錯誤", "error", err)
		os.Exit(1)
	}

	// 創建房間管理器與 WebSocket Hub
	manager := internal.NewManager(logger, o)
	hub := internal.NewHub(manager, logger)

	// 設置路由：同一端口同時服務靜態資源與 /ws
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/ws", hub.ServeWS)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(manager.Stats()); err != nil {
			logger.Error("編碼 JSON 失敗", "error", err)
		}
	})
	r.Handle("/*", http.FileServer(http.Dir(*staticDir)))

	// 創建 HTTP 服務器
	// WebSocket 連線是長連線，不設整體讀寫超時，只限制握手階段
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", *port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// 啟動服務器
	go func() {
		logger.Info("對戰服務器啟動",
			"port", *port,
			"static", *staticDir,
			"orientation", o,
			"log_level", *logLevel)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("服務器啟動失敗", "error", err)
			os.Exit(1)
		}
	}()

	// 等待中斷信號
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("收到關閉信號，開始優雅關閉...")

	// 優雅關閉
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// 停止接受新連接
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("服務器關閉失敗", "error", err)
	}

	// 停止房間管理器與 WebSocket Hub
	manager.Stop()
	hub.Stop()

	logger.Info("服務器已關閉")
}

// setupLogger 設置日誌
func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: level == "debug", // debug 模式顯示源碼位置
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
