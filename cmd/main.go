// cmd/main.go is the application entry point.
//
// With no command it prepares the database and relays order events to
// RabbitMQ until stopped. The orders, sales and availability commands print
// read models as JSON for operators.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/fixture-ticketing/internal/cache"
	"github.com/Shivanand-hulikatti/fixture-ticketing/internal/config"
	"github.com/Shivanand-hulikatti/fixture-ticketing/internal/database"
	"github.com/Shivanand-hulikatti/fixture-ticketing/internal/database/migrations"
	"github.com/Shivanand-hulikatti/fixture-ticketing/internal/events"
	"github.com/Shivanand-hulikatti/fixture-ticketing/internal/logging"
	"github.com/Shivanand-hulikatti/fixture-ticketing/internal/repository"
	"github.com/Shivanand-hulikatti/fixture-ticketing/internal/service"
)

const usage = `usage: fixture-ticketing [command] [flags]

commands:
  relay          apply migrations and relay order events (default)
  orders         list orders, optionally --audience <id>
  sales          print a fixture's orders, --fixture <id>
  availability   print a zone's remaining seats, --fixture <id> --zone <id>
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "fixture-ticketing: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	command := "relay"
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		command, args = args[0], args[1:]
	}

	var audienceID, fixtureID, zoneID string
	flagSet := pflag.NewFlagSet("fixture-ticketing", pflag.ContinueOnError)
	flagSet.StringVar(&audienceID, "audience", "", "audience ID to filter orders by")
	flagSet.StringVar(&fixtureID, "fixture", "", "fixture (schedule) ID")
	flagSet.StringVar(&zoneID, "zone", "", "zone ID")
	flagSet.Usage = func() { fmt.Fprint(os.Stderr, usage, flagSet.FlagUsages()) }
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── 1. Connect to PostgreSQL ──────────────────────────────────────────
	pool, err := database.NewPool(ctx, cfg.Database, log)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer pool.Close()
	repo := repository.NewOrderRepository(pool)

	if command == "relay" {
		return relay(ctx, cfg, pool, repo, log)
	}

	// ── 2. Wire the order service, with the listing cache when enabled ───
	opts := []service.Option{
		service.WithLogger(log.Named("orders")),
		service.WithMaxAttempts(cfg.Orders.MaxAttempts),
	}
	if cfg.Redis.Enabled {
		rdb, err := cache.NewClient(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer func() { _ = rdb.Close() }()
		opts = append(opts, service.WithListingCache(cache.New(rdb, repo, cfg.Redis, log.Named("cache"))))
	}
	svc := service.NewOrderService(repo, opts...)

	// ── 3. Run the read command ───────────────────────────────────────────
	var out any
	switch command {
	case "orders":
		if audienceID != "" {
			out, err = svc.GetOrdersByAudience(ctx, audienceID)
		} else {
			out, err = svc.GetAllOrders(ctx)
		}
	case "sales":
		if fixtureID == "" {
			return errors.New("sales: --fixture is required")
		}
		out, err = svc.GetFixtureSales(ctx, fixtureID)
	case "availability":
		if fixtureID == "" || zoneID == "" {
			return errors.New("availability: --fixture and --zone are required")
		}
		out, err = svc.ZoneAvailability(ctx, fixtureID, zoneID)
	default:
		return fmt.Errorf("unknown command %q\n%s", command, usage)
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// relay brings the schema up to date and moves outbox events to RabbitMQ
// until SIGINT or SIGTERM.
func relay(ctx context.Context, cfg config.Config, pool *pgxpool.Pool, repo *repository.OrderRepository, log *zap.Logger) error {
	if err := migrations.Apply(ctx, pool); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	log.Info("schema up to date")

	publisher, err := events.NewAMQPPublisher(cfg.AMQP)
	if err != nil {
		return fmt.Errorf("rabbitmq: %w", err)
	}
	defer func() { _ = publisher.Close() }()

	r := events.NewRelay(repo, publisher, cfg.Relay, nil, log.Named("relay"))
	log.Info("relaying order events",
		zap.String("exchange", cfg.AMQP.Exchange),
		zap.Duration("interval", cfg.Relay.Interval),
		zap.Int("batch_size", cfg.Relay.BatchSize),
	)
	if err := r.Run(ctx); err != nil {
		return fmt.Errorf("relay: %w", err)
	}
	log.Info("stopped")
	return nil
}
