// Command ycrdt-server runs a WebSocket session server over the ycrdt
// module: one process, one Registry, Redis-backed persistence.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ycrdt/hooks"
	"ycrdt/persistence"
	"ycrdt/server"
	"ycrdt/transport"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type flags struct {
	addr          string
	redisAddr     string
	redisPassword string
	redisDB       int
	keyPrefix     string
	debounce      time.Duration
	maxDebounce   time.Duration
}

func parseFlags() flags {
	f := flags{}
	flag.StringVar(&f.addr, "addr", ":8080", "HTTP listen address")
	flag.StringVar(&f.redisAddr, "redis", "localhost:6379", "Redis server address")
	flag.StringVar(&f.redisPassword, "redis-password", "", "Redis password")
	flag.IntVar(&f.redisDB, "redis-db", 0, "Redis database number")
	flag.StringVar(&f.keyPrefix, "key-prefix", "ycrdt:doc:", "Redis key prefix for documents")
	flag.DurationVar(&f.debounce, "debounce", 2*time.Second, "persistence debounce interval")
	flag.DurationVar(&f.maxDebounce, "max-debounce", 10*time.Second, "persistence debounce ceiling")
	flag.Parse()
	return f
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func main() {
	f := parseFlags()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("ycrdt-server: failed to build logger: %v", err)
	}
	defer logger.Sync()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     f.redisAddr,
		Password: f.redisPassword,
		DB:       f.redisDB,
	})
	store, err := persistence.NewRedisStore(redisClient, f.keyPrefix)
	if err != nil {
		logger.Fatal("failed to construct redis store", zap.Error(err))
	}

	hookPipeline := hooks.New(logger)
	hookPipeline.Register("onLoadDocument", 0, func(ctx *hooks.Context) hooks.Result {
		logger.Info("loading document", zap.String("name", ctx.DocumentName))
		return hooks.Result{}
	})

	cfg := server.DefaultConfig()
	cfg.Debounce = f.debounce
	cfg.MaxDebounce = f.maxDebounce

	registry := server.NewRegistry(
		cfg,
		server.NewLoadFunc(store, hookPipeline),
		server.NewUnloadFunc(hookPipeline, logger),
		store,
		hookPipeline,
		logger,
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/ycrdt", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		connID := uuid.NewString()
		wsConn := transport.NewWSConnection(conn, connID, logger)
		cc := server.NewClientConnection(registry, cfg, wsConn, nil, logger)
		wsConn.Serve(cc)
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	httpServer := &http.Server{Addr: f.addr, Handler: mux}

	go func() {
		logger.Info("ycrdt-server listening", zap.String("addr", f.addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}
	_ = redisClient.Close()
}
