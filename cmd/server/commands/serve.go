package commands

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

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"go-board/internal/board"
	"go-board/internal/boardid"
	"go-board/internal/config"
	"go-board/internal/db"
	"go-board/internal/events"
	myMiddleware "go-board/internal/middleware"
	"go-board/internal/paramstore"
	"go-board/internal/presence"
	"go-board/internal/ratelimit"
	"go-board/internal/storage"
	"go-board/internal/task"
	"go-board/internal/user"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the board server",
	Long: `Run the HTTP and WebSocket server.

Examples:
  # Redis storage on localhost
  BOARD_SESSION_SECRET=dev server serve

  # SQLite storage with a config file
  server serve --config board.toml --addr :9090`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "http service address (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Addr = serveAddr
	}
	logger := newLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. AWS (DynamoDB storage, SSM secrets)
	var awsCfg aws.Config
	if cfg.NeedsAWS() {
		var opts []func(*awsconfig.LoadOptions) error
		if cfg.AWS.Region != "" {
			opts = append(opts, awsconfig.WithRegion(cfg.AWS.Region))
		}
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return fmt.Errorf("load aws config: %w", err)
		}
		if err := resolveSecrets(ctx, &cfg, ssm.NewFromConfig(awsCfg)); err != nil {
			return err
		}
		logger.Info("✅ AWS configuration loaded", "region", awsCfg.Region)
	}

	// 2. Redis (storage, event feed)
	var rdb *redis.Client
	if cfg.NeedsRedis() {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		logger.Info("✅ Connected to Redis", "addr", cfg.Redis.Addr)
		if cfg.Storage.Driver != config.DriverRedis {
			defer rdb.Close()
		}
	}

	// 3. Storage
	backend, err := openBackend(cfg, rdb, awsCfg)
	if err != nil {
		return err
	}
	defer backend.Close()
	logger.Info("✅ Storage ready", "driver", cfg.Storage.Driver)

	// 4. Actors
	limits, err := ratelimit.NewService(cfg.RateLimit)
	if err != nil {
		return err
	}
	defer limits.Close()
	tasks := task.NewRegistry(backend, logger)
	defer tasks.Close()
	users := presence.NewRegistry(backend, logger)
	defer users.Close()

	var publisher board.EventPublisher
	if cfg.Events.Enabled {
		publisher = events.NewPublisher(rdb)
	}
	hubs := board.NewRegistry(board.Dependencies{
		Backend:   backend,
		Tasks:     tasks,
		Presence:  users,
		Gates:     limits,
		Publisher: publisher,
		Logger:    logger,
	})
	defer hubs.Close()

	// 5. Sessions
	namer, err := boardid.NewNamer([]byte(cfg.Session.BoardKey))
	if err != nil {
		return err
	}
	userService, err := user.NewService(cfg.Session.Secret, cfg.Session.TTL, cfg.Session.Secure, namer)
	if err != nil {
		return err
	}
	userHandler := user.NewHandler(userService, logger)
	auth := myMiddleware.NewAuthMiddleware(userService, user.CookieName)

	// 6. Routes
	r := newRouter(cfg.TrustProxyHeaders)
	r.Post("/join", userHandler.Join)
	r.Post("/new", userHandler.New)
	r.Get("/healthz", healthz(backend, logger))
	board.NewHandler(hubs, logger).Mount(r, auth.Handle, userHandler.Rename)

	srv := &http.Server{Addr: cfg.Addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() {
		logger.Info("🚀 Server starting", "addr", cfg.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("🛑 Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", "error", err)
		}
	}
	return nil
}

// resolveSecrets replaces configured secrets with their SSM parameters when
// parameters are named.
func resolveSecrets(ctx context.Context, cfg *config.Config, api *ssm.Client) error {
	params, err := paramstore.New(api)
	if err != nil {
		return err
	}
	if cfg.Session.Secret, err = params.Resolve(ctx, cfg.Session.SecretParam, cfg.Session.Secret); err != nil {
		return err
	}
	if cfg.Session.BoardKey, err = params.Resolve(ctx, cfg.Session.BoardKeyParam, cfg.Session.BoardKey); err != nil {
		return err
	}
	return nil
}

func openBackend(cfg config.Config, rdb *redis.Client, awsCfg aws.Config) (storage.Backend, error) {
	switch cfg.Storage.Driver {
	case config.DriverRedis:
		return storage.NewRedisBackend(rdb, cfg.Storage.Prefix), nil

	case config.DriverPostgres, config.DriverSQLite:
		driver := db.DriverPostgres
		if cfg.Storage.Driver == config.DriverSQLite {
			driver = db.DriverSQLite
		}
		database, err := db.NewDatabase(driver, cfg.Storage.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to DB: %w", err)
		}
		if err := database.AutoMigrate(); err != nil {
			database.Close()
			return nil, fmt.Errorf("migration failed: %w", err)
		}
		return storage.NewSQLBackend(database.Conn), nil

	case config.DriverDynamoDB:
		client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
			if cfg.AWS.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.Endpoint)
			}
		})
		return storage.NewDynamoBackend(client, cfg.Storage.Table)
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}

// newRouter builds the base router. Client addresses key the rate limiter, so
// X-Forwarded-For and X-Real-IP are only honoured when the server sits behind
// a proxy that sets them.
func newRouter(trustProxyHeaders bool) chi.Router {
	r := chi.NewRouter()
	if trustProxyHeaders {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	return r
}

func healthz(backend storage.Backend, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := backend.Ping(ctx); err != nil {
			logger.Warn("health check failed", "error", err)
			http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}
}
