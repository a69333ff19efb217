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

	"github.com/go-redis/redis/v8"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/vasiliy-maslov/fuel-delivery/internal/auth"
	"github.com/vasiliy-maslov/fuel-delivery/internal/catalog"
	"github.com/vasiliy-maslov/fuel-delivery/internal/config"
	"github.com/vasiliy-maslov/fuel-delivery/internal/db"
	"github.com/vasiliy-maslov/fuel-delivery/internal/driver"
	handlers "github.com/vasiliy-maslov/fuel-delivery/internal/handler/http"
	"github.com/vasiliy-maslov/fuel-delivery/internal/notify"
	"github.com/vasiliy-maslov/fuel-delivery/internal/order"
	"github.com/vasiliy-maslov/fuel-delivery/internal/transport"
)

const hubSendBuffer = 32

func main() {
	app := &cli.App{
		Name:  "fuel-service",
		Usage: "fuel delivery order lifecycle service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "path to a YAML config file",
				EnvVars: []string{"CONFIG_PATH"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API and notification hub",
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "apply database migrations and exit",
				Action: migrateUp,
			},
			{
				Name:  "token",
				Usage: "issue a bearer token for local testing",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "role", Required: true, Usage: "customer, vendor, driver or admin"},
					&cli.StringFlag{Name: "id", Usage: "actor id, random when empty"},
				},
				Action: issueToken,
			},
		},
		DefaultCommand: "serve",
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("fuel-service exited with error")
	}
}

func setupLogger(cfg config.AppConfig) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Env == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	log.Logger = log.With().Str("service", cfg.Name).Logger()
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	setupLogger(cfg.App)
	return cfg, nil
}

func migrateUp(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	return db.ApplyMigrations(cfg.Postgres)
}

func issueToken(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	role, err := auth.ParseRole(c.String("role"))
	if err != nil {
		return err
	}
	id := uuid.Must(uuid.NewV4())
	if raw := c.String("id"); raw != "" {
		if id, err = uuid.FromString(raw); err != nil {
			return fmt.Errorf("invalid --id: %w", err)
		}
	}

	token, err := auth.NewAuthenticator(cfg.JWT.Secret).IssueToken(auth.Actor{ID: id, Role: role}, cfg.JWT.TokenTTL)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

// sinks builds the notification fan-out. The hub is always present; the
// broker relays are added only when configured.
func sinks(cfg *config.Config, hub *notify.Hub) (notify.Fanout, func(), error) {
	fanout := notify.Fanout{hub}
	var closers []func() error

	if cfg.RabbitMQ.URL != "" {
		amqpSink, err := notify.DialAMQP(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, cfg.RabbitMQ.MaxRetries)
		if err != nil {
			return nil, nil, err
		}
		fanout = append(fanout, amqpSink)
		closers = append(closers, amqpSink.Close)
	}

	if len(cfg.Kafka.Brokers) > 0 {
		kafkaSink, err := notify.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			for _, closeFn := range closers {
				_ = closeFn()
			}
			return nil, nil, err
		}
		fanout = append(fanout, kafkaSink)
		closers = append(closers, kafkaSink.Close)
	}

	return fanout, func() {
		for _, closeFn := range closers {
			if err := closeFn(); err != nil {
				log.Warn().Err(err).Msg("Failed to close notification sink")
			}
		}
	}, nil
}

func serve(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log.Info().Msg("Fuel service starting...")

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := db.ApplyMigrations(cfg.Postgres); err != nil {
		return err
	}

	pg, err := db.New(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pg.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	hub := notify.NewHub(hubSendBuffer)
	defer hub.Close()

	sink, closeSinks, err := sinks(cfg, hub)
	if err != nil {
		return err
	}
	defer closeSinks()

	txManager := db.NewTxManager(pg.Pool)
	catalogRepo := catalog.NewRepository(pg.Pool)
	driverRepo := driver.NewRepository(pg.Pool)
	orderRepo := order.NewRepository(pg.Pool, pg.SQLX)

	catalogService := catalog.NewService(catalogRepo)
	orderService := order.NewService(txManager, orderRepo, catalogRepo, driverRepo, sink)
	driverService := driver.NewService(
		txManager,
		driverRepo,
		driver.NewRedisLocationStore(rdb, cfg.Redis.LocationTTL),
		orderRepo,
		sink,
	)

	authn := auth.NewAuthenticator(cfg.JWT.Secret)
	router := transport.NewRouter(authn, hub.ServeWS,
		handlers.NewOrderHandler(orderService),
		handlers.NewCatalogHandler(catalogService),
		handlers.NewDriverHandler(driverService),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("port", cfg.App.Port).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("Server stopped")
	return nil
}
