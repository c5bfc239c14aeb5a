package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"syscall"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/puyokura/foodfortalk/auth"
	"github.com/puyokura/foodfortalk/chat"
	"github.com/puyokura/foodfortalk/store"
)

const shutdownTimeout = 15 * time.Second

func main() {
	configFile := flag.String("config", "serverconfig.json", "Path to configuration file")
	flag.Parse()

	envErr := godotenv.Load()
	config := NewConfig(*configFile)
	configErr := config.Load()

	logFile, logger, err := setupLogging(config.LogLevel)
	if err != nil {
		fmt.Printf("Failed to setup logging: %v\n", err)
		os.Exit(1)
	}
	if envErr != nil {
		logger.Debug("no .env file found, using environment variables")
	}
	if configErr != nil {
		logger.Error("error loading config", "file", *configFile, "error", configErr)
	}

	exitCode := run(config, logger)

	logFile.Close()
	if target, err := compressLog(logDir, time.Now()); err != nil {
		fmt.Printf("Failed to compress log: %v\n", err)
	} else {
		os.Remove(filepath.Join(logDir, "server.log"))
		fmt.Printf("Log compressed to %s\n", target)
	}
	os.Exit(exitCode)
}

func run(config *Config, logger *slog.Logger) int {
	db, err := store.Open(config.DBPath)
	if err != nil {
		logger.Error("failed to open database", "path", config.DBPath, "error", err)
		return 1
	}
	messages := store.NewMessageRepository(db)
	users := store.NewUserRepository(db)

	tokens, err := auth.NewManager(config.AuthConfig())
	if err != nil {
		logger.Error("failed to set up tokens", "error", err)
		return 1
	}
	passwords := auth.NewPasswordHasher()

	var announcer chat.Announcer = chat.NewMemoryAnnouncer()
	var rdb *redis.Client
	if config.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: config.RedisAddr})
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := rdb.Ping(ctx).Err()
		cancel()
		if err != nil {
			logger.Warn("redis unavailable, announcements stay in memory", "addr", config.RedisAddr, "error", err)
			rdb.Close()
			rdb = nil
		} else {
			announcer = store.NewRedisAnnouncer(rdb, "", 0)
			logger.Info("announcements recorded in redis", "addr", config.RedisAddr)
		}
	}

	chatServer, err := chat.NewServer(config.ChatConfig(), chat.Deps{
		Verifier:  tokens,
		Directory: users,
		Store:     messages,
		Announcer: announcer,
		Logger:    logger.With("component", "chat"),
		IsBanned:  config.IsBanned,
	})
	if err != nil {
		logger.Error("failed to create chat server", "error", err)
		return 1
	}

	mux := http.NewServeMux()
	mux.HandleFunc(config.ChatPath, chatServer.ServeWS)
	(&api{
		name:      config.ServerName,
		users:     users,
		messages:  messages,
		tokens:    tokens,
		passwords: passwords,
		online:    chatServer,
		logger:    logger.With("component", "http"),
	}).routes(mux)
	mux.HandleFunc("GET /{$}", landingPage(config))

	httpServer := &http.Server{
		Addr:              config.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server started", "addr", httpServer.Addr, "chatPath", config.ChatPath)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stopSelf()
		}
	}()

	operations := map[string]gfshutdown.Operation{
		"http": func(ctx context.Context) error {
			return httpServer.Shutdown(ctx)
		},
		"chat": func(ctx context.Context) error {
			return chatServer.Shutdown(ctx)
		},
	}
	if rdb != nil {
		operations["redis"] = func(context.Context) error {
			return rdb.Close()
		}
	}
	wait := gfshutdown.GracefulShutdown(context.Background(), shutdownTimeout, operations)

	con := &console{chat: chatServer, users: users, bans: config, hasher: passwords, out: os.Stdout}
	go func() {
		con.run(context.Background(), os.Stdin)
		stopSelf()
	}()

	exitCode := <-wait
	if err := store.Close(db); err != nil {
		logger.Error("failed to close database", "error", err)
	}
	logger.Info("server stopped", "exitCode", exitCode)
	return exitCode
}

// stopSelf routes a console stop or a listener failure through the signal handler.
func stopSelf() {
	p, err := os.FindProcess(os.Getpid())
	if err != nil {
		os.Exit(1)
	}
	if err := p.Signal(syscall.SIGTERM); err != nil {
		os.Exit(1)
	}
}

func landingPage(config *Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, `
<!DOCTYPE html>
<html>
<head>
    <title>%[1]s</title>
    <style>
        body { font-family: sans-serif; text-align: center; padding-top: 50px; }
        code { background: #f4f4f4; padding: 5px; border-radius: 5px; }
    </style>
</head>
<body>
    <h1>%[1]s</h1>
    <p>Chat endpoint: <code>%[2]s?token=...</code></p>
    <p>Run <code>./client -path %[2]s</code>, then <code>/login %[3]s &lt;email&gt; &lt;password&gt;</code></p>
</body>
</html>
`, config.ServerName, config.ChatPath, config.Addr())
	}
}
