package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"

	"github.com/walaka/erp/controller"
	"github.com/walaka/erp/events"
	"github.com/walaka/erp/identity"
	"github.com/walaka/erp/invoicing"
	"github.com/walaka/erp/model"
	"github.com/walaka/erp/notify"
)

func readConfig(path string) (*model.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &model.Config{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.Mode == "" {
		cfg.Mode = "development"
	}
	if cfg.Port == 0 {
		cfg.Port = 8000
	}
	return cfg, nil
}

func dothings() error {
	configPath := flag.String("config", "config.toml", "path to the configuration file")
	doMigrate := flag.Bool("migrate", false, "apply database migrations and exit")
	doMaintenance := flag.Bool("maintenance", false, "run the overdue sweep and housekeeping and exit")
	addAdmin := flag.String("add-admin", "", "register uid:environment:email as administrator and exit")
	flag.Parse()

	cfg, err := readConfig(*configPath)
	if err != nil {
		return err
	}
	logger := controller.NewLogger(cfg.Mode)
	slog.SetDefault(logger)

	if *doMigrate {
		return runMigrations(cfg)
	}

	table, err := cfg.Transitions()
	if err != nil {
		return err
	}
	store, err := model.InitDatabase(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if *addAdmin != "" {
		return registerAdmin(context.Background(), store, *addAdmin)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bus := events.NewBus(logger)
	defer bus.Close()
	notifier := &notify.Notifier{
		Loader: store,
		Sender: notify.NewSender(cfg.Mode, cfg.MailAPIKey, cfg.MailSecret, cfg.MailFrom, cfg.MailFromName),
		Logger: logger,
	}
	if err := bus.Subscribe(ctx, "notify", notifier.HandleStatusChanged); err != nil {
		return err
	}

	if *doMaintenance {
		sweeper := &invoicing.OverdueSweeper{
			Finder:    store,
			Store:     store,
			Publisher: bus,
			Table:     table,
			Logger:    logger,
		}
		return model.RunMaintenance(ctx, store, sweeper)
	}

	deps := controller.Deps{
		Store:       store,
		Publisher:   bus,
		Transitions: table,
		Logger:      logger,
	}
	if cfg.Supabase.URL != "" || cfg.Supabase.JWTSecret != "" {
		resolver, err := identity.NewResolver(cfg.Supabase.URL, cfg.Supabase.AnonKey, cfg.Supabase.JWTSecret,
			identity.WithDirectory(store))
		if err != nil {
			return err
		}
		deps.Identity = resolver
	}

	logger.Info("starting server", "mode", cfg.Mode, "port", cfg.Port)
	return controller.Run(ctx, deps, cfg.Port)
}

// registerAdmin creates the first user of an environment. Further users are
// added through the API by an administrator.
func registerAdmin(ctx context.Context, store *model.Store, arg string) error {
	parts := strings.SplitN(arg, ":", 3)
	if len(parts) != 3 {
		return fmt.Errorf("add-admin: want uid:environment:email, got %q", arg)
	}
	if _, err := uuid.Parse(parts[1]); err != nil {
		return fmt.Errorf("add-admin: environment %q is not a uuid", parts[1])
	}
	u := &model.User{
		ID:            parts[0],
		EnvironmentID: parts[1],
		Email:         parts[2],
		Role:          invoicing.RoleAdmin,
		Status:        model.UserActive,
	}
	if err := store.CreateUser(ctx, u); err != nil {
		return err
	}
	slog.Info("admin registered", "user_id", u.ID, "environment_id", u.EnvironmentID)
	return nil
}

func main() {
	if err := dothings(); err != nil {
		log.Fatal(err)
	}
}
