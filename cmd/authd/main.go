package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/taskflowhq/go-authflow"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// Config is loaded from the environment, AUTHD_ prefixed.
type Config struct {
	Addr            string        `env:"ADDR" envDefault:":8080"`
	DatabaseDSN     string        `env:"DATABASE_DSN" envDefault:"file:authd.db?cache=shared&mode=rwc"`
	SigningKey      string        `env:"SIGNING_KEY,required"`
	Issuer          string        `env:"ISSUER" envDefault:"authd"`
	Audience        []string      `env:"AUDIENCE" envSeparator:","`
	RememberTTL     time.Duration `env:"REMEMBER_TTL" envDefault:"168h"`
	SessionTTL      time.Duration `env:"SESSION_TTL" envDefault:"24h"`
	VerificationTTL time.Duration `env:"VERIFICATION_TTL" envDefault:"15m"`
	RecoveryTTL     time.Duration `env:"RECOVERY_TTL" envDefault:"15m"`
}

func loadConfig() (*Config, error) {
	cfg := Config{}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "AUTHD_"}); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	sqldb, err := sql.Open(sqliteshim.ShimName, cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db := bun.NewDB(sqldb, sqlitedialect.New())
	defer db.Close()

	ctx := context.Background()

	if err := createTables(ctx, db); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	controller := authflow.NewAPIController(
		db,
		[]byte(cfg.SigningKey),
		cfg.Issuer,
		jwt.ClaimStrings(cfg.Audience),
		authflow.WithAPISessionTTLs(cfg.RememberTTL, cfg.SessionTTL),
		authflow.WithAPICodeTTLs(cfg.VerificationTTL, cfg.RecoveryTTL),
	)

	app := fiber.New(fiber.Config{
		AppName:               "authd",
		DisableStartupMessage: false,
	})

	controller.RegisterRoutes(app)

	errs := make(chan error, 1)
	go func() {
		errs <- app.Listen(cfg.Addr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errs:
		return err
	case sig := <-quit:
		log.Printf("received %s, shutting down", sig)
		return app.ShutdownWithTimeout(10 * time.Second)
	}
}

func createTables(ctx context.Context, db *bun.DB) error {
	models := []any{
		(*authflow.User)(nil),
		(*authflow.PendingSignup)(nil),
		(*authflow.RecoveryRequest)(nil),
		(*authflow.SessionRecord)(nil),
	}

	for _, model := range models {
		if _, err := db.NewCreateTable().
			Model(model).
			IfNotExists().
			Exec(ctx); err != nil {
			return err
		}
	}

	return nil
}
