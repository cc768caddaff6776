package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/shohag/aptnotify/internal/api"
	"github.com/shohag/aptnotify/internal/config"
	"github.com/shohag/aptnotify/internal/dispatch"
	"github.com/shohag/aptnotify/internal/models"
	"github.com/shohag/aptnotify/internal/storage"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "aptnotify",
		Short: "aptnotify: WhatsApp notices and dues reminders for apartment residents",
	}

	var configPath string
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")

	rootCmd.AddCommand(serveCmd(&configPath))
	rootCmd.AddCommand(migrateCmd(&configPath))
	rootCmd.AddCommand(sendCmd(&configPath))
	rootCmd.AddCommand(remindCmd(&configPath))
	rootCmd.AddCommand(gatewayStateCmd(&configPath))
	rootCmd.AddCommand(historyCmd(&configPath))
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			log := setupLogger(cfg.Logging)

			a, err := newApp(cfg, log)
			if err != nil {
				return err
			}
			defer a.close()

			if cfg.Server.AdminToken == "" {
				cfg.Server.AdminToken = models.NewAdminToken()
				log.Warn().
					Str("admin_token", cfg.Server.AdminToken).
					Msg("server.admin_token is not set, generated a token for this run")
			}

			server := api.NewServer(cfg.Server, api.Deps{
				Store:   a.store,
				Service: a.service,
				Gateway: a.gateway,
				History: a.history,
			}, log)
			go func() {
				if err := server.Start(); err != nil && err != http.ErrServerClosed {
					log.Fatal().Err(err).Msg("server error")
				}
			}()

			log.Info().
				Str("version", version).
				Int("port", cfg.Server.Port).
				Int("batch_size", cfg.Dispatch.BatchSize).
				Str("storage", cfg.Storage.Driver).
				Msg("aptnotify is running")

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit

			log.Info().Msg("shutting down...")

			if err := server.Shutdown(time.Minute); err != nil {
				log.Error().Err(err).Msg("server shutdown error")
			}

			log.Info().Msg("aptnotify stopped")
			return nil
		},
	}
}

func migrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			log := setupLogger(cfg.Logging)

			store, err := setupStorage(cfg.Storage, log)
			if err != nil {
				return fmt.Errorf("failed to setup storage: %w", err)
			}
			defer store.Close()

			if err := store.Migrate(context.Background()); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			log.Info().Msg("migrations completed successfully")
			return nil
		},
	}
}

func sendCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a notice to every resident with a phone number",
		RunE: func(cmd *cobra.Command, args []string) error {
			tmpl, _ := cmd.Flags().GetString("template")
			message, _ := cmd.Flags().GetString("message")
			sentBy, _ := cmd.Flags().GetString("sent-by")
			apartments, _ := cmd.Flags().GetIntSlice("apartments")

			a, cleanup, err := appFromConfig(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			res, err := a.service.Broadcast(context.Background(), dispatch.BroadcastRequest{
				TemplateType: models.TemplateType(tmpl),
				Message:      message,
				SentBy:       sentBy,
				Apartments:   apartments,
				OnProgress:   printProgress,
			})
			if err != nil {
				return fmt.Errorf("send failed: %w", err)
			}
			return printResult(res)
		},
	}
	cmd.Flags().String("template", string(models.TemplateGeneral), "template type: general, dues_reminder, meeting, maintenance, custom")
	cmd.Flags().String("message", "", "message body; overrides the template text")
	cmd.Flags().String("sent-by", "", "sender shown in the history")
	cmd.Flags().IntSlice("apartments", nil, "only these apartment numbers")
	return cmd
}

func remindCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remind",
		Short: "Send dues reminders to residents with an unpaid due",
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now()
			year, _ := cmd.Flags().GetInt("year")
			month, _ := cmd.Flags().GetInt("month")
			message, _ := cmd.Flags().GetString("message")
			sentBy, _ := cmd.Flags().GetString("sent-by")
			if year == 0 {
				year = now.Year()
			}
			if month == 0 {
				month = int(now.Month())
			}

			a, cleanup, err := appFromConfig(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			res, err := a.service.Remind(context.Background(), dispatch.ReminderRequest{
				Year:       year,
				Month:      month,
				Message:    message,
				SentBy:     sentBy,
				OnProgress: printProgress,
			})
			if err != nil {
				return fmt.Errorf("remind failed: %w", err)
			}
			return printResult(res)
		},
	}
	cmd.Flags().Int("year", 0, "due year (default: current year)")
	cmd.Flags().Int("month", 0, "due month 1-12 (default: current month)")
	cmd.Flags().String("message", "", "message body; overrides the reminder template")
	cmd.Flags().String("sent-by", "", "sender shown in the history")
	return cmd
}

func gatewayStateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "gateway-state",
		Short: "Check whether the WhatsApp instance is authorized",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cleanup, err := appFromConfig(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx := context.Background()
			creds, err := a.service.Credentials(ctx)
			if err != nil {
				return err
			}
			state, err := a.gateway.CheckState(ctx, creds)
			if err != nil {
				return fmt.Errorf("state check failed: %w", err)
			}

			fmt.Printf("%s: %s\n", state.State, state.Message)
			return nil
		},
	}
}

func historyCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent dispatches",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")

			store, cleanup, err := storeFromConfig(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			recs, err := store.ListNotifications(context.Background(), limit, 0)
			if err != nil {
				return fmt.Errorf("failed to list notifications: %w", err)
			}

			if len(recs) == 0 {
				fmt.Println("No dispatches found.")
				return nil
			}

			for _, rec := range recs {
				fmt.Printf("  %s  %-13s  %d/%d sent  by %s  (%s)\n",
					rec.ID, rec.TemplateType, rec.SuccessCount, rec.RecipientCount,
					rec.SentBy, rec.SentAt.Format(time.RFC3339))
			}
			return nil
		},
	}
	cmd.Flags().Int("limit", 20, "number of dispatches to show")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("aptnotify v%s\n", version)
		},
	}
}

func printProgress(processed, total int, last string) {
	fmt.Printf("  %d/%d processed (last: %s)\n", processed, total, last)
}

func printResult(res *dispatch.Result) error {
	fmt.Println(res.Summary)
	if res.PersistErr != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", res.PersistErr)
	}
	out, _ := json.MarshalIndent(res.Record, "", "  ")
	fmt.Println(string(out))
	return nil
}

func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
			With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func setupStorage(cfg config.StorageConfig, log zerolog.Logger) (storage.Storage, error) {
	switch cfg.Driver {
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(cfg.SQLite.Path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		log.Info().Str("path", cfg.SQLite.Path).Msg("using SQLite storage")
		return storage.NewSQLite(cfg.SQLite.Path)
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}
}

func storeFromConfig(configPath string) (storage.Storage, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := setupLogger(cfg.Logging)
	store, err := setupStorage(cfg.Storage, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to setup storage: %w", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, func() { store.Close() }, nil
}

func appFromConfig(configPath string) (*app, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	a, err := newApp(cfg, setupLogger(cfg.Logging))
	if err != nil {
		return nil, nil, err
	}
	return a, a.close, nil
}
