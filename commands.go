package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/yashpalsanam/foresite-sub001/config"
	"github.com/yashpalsanam/foresite-sub001/database"
	"github.com/yashpalsanam/foresite-sub001/middlewares"
	"github.com/yashpalsanam/foresite-sub001/utils"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

func newRootCmd() *cobra.Command {
	var cfg *config.Config

	root := &cobra.Command{
		Use:           "foresite",
		Short:         "Real-estate listing API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cfg = config.Load()
			utils.InitLogger(cfg.LogLevel, cfg.LogFormat)
		},
	}
	root.AddCommand(
		newServeCmd(&cfg),
		newWorkerCmd(&cfg),
		newMigrateCmd(&cfg),
		newSeedCmd(&cfg),
	)
	return root
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newServeCmd(cfg **config.Config) *cobra.Command {
	var withWorker bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := *cfg
			if err := c.Validate(); err != nil {
				utils.ErrorLogger.WithError(err).Error("Invalid configuration")
				return err
			}
			if c.GinMode == gin.ReleaseMode {
				gin.SetMode(gin.ReleaseMode)
			}

			ctx, stop := signalContext()
			defer stop()

			a, err := buildApp(ctx, c)
			if err != nil {
				utils.ErrorLogger.WithError(err).Error("Startup failed")
				return err
			}
			defer a.close()

			if err := database.Migrate(a.db); err != nil {
				utils.ErrorLogger.WithError(err).Error("AutoMigrate failed")
				return err
			}
			if c.AdminEmail != "" {
				if _, err := database.SeedAdmin(ctx, a.db, c.AdminEmail, c.AdminPassword); err != nil {
					utils.ErrorLogger.WithError(err).Error("Admin seed failed")
				}
			}

			a.views.Start(ctx)
			defer a.views.Stop()

			if err := registerTasks(a); err != nil {
				return err
			}
			a.tasks.Start()
			defer a.tasks.StopAll()

			if withWorker {
				go func() {
					if err := a.queue.Run(ctx); err != nil {
						utils.ErrorLogger.WithError(err).Error("Email worker exited")
					}
				}()
			}

			srv := &http.Server{
				Addr:              ":" + c.Port,
				Handler:           middlewares.CORS(c.CORSOrigins).Handler(a.router()),
				ReadHeaderTimeout: 10 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() {
				utils.InfoLogger.WithFields(logrus.Fields{"port": c.Port, "worker": withWorker}).Info("Listening")
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					utils.ErrorLogger.WithError(err).Error("HTTP server failed")
					return err
				}
			case <-ctx.Done():
				utils.InfoLogger.Info("Shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					utils.ErrorLogger.WithError(err).Error("Graceful shutdown failed")
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&withWorker, "with-worker", true, "also run the email queue worker in this process")
	return cmd
}

func newWorkerCmd(cfg **config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the email queue worker only",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := *cfg
			if err := c.Validate(); err != nil {
				utils.ErrorLogger.WithError(err).Error("Invalid configuration")
				return err
			}
			ctx, stop := signalContext()
			defer stop()

			a, err := buildApp(ctx, c)
			if err != nil {
				utils.ErrorLogger.WithError(err).Error("Startup failed")
				return err
			}
			defer a.close()
			return a.queue.Run(ctx)
		},
	}
}

func newMigrateCmd(cfg **config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDatabaseOnly(*cfg)
			if err != nil {
				return err
			}
			return database.Migrate(db)
		},
	}
}

func newSeedCmd(cfg **config.Config) *cobra.Command {
	var demo bool
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the bootstrap admin (ADMIN_EMAIL, ADMIN_PASSWORD) and optional demo data",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := *cfg
			db, err := openDatabaseOnly(c)
			if err != nil {
				return err
			}
			if err := database.Migrate(db); err != nil {
				return err
			}
			ctx := cmd.Context()
			created, err := database.SeedAdmin(ctx, db, c.AdminEmail, c.AdminPassword)
			if err != nil {
				utils.ErrorLogger.WithError(err).Error("Admin seed failed")
				return err
			}
			if !created {
				utils.InfoLogger.WithField("email", c.AdminEmail).Info("Admin account already exists")
			}
			if demo {
				return database.SeedDemo(ctx, db)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&demo, "demo", false, "also insert a demo agent with sample listings")
	return cmd
}

func openDatabaseOnly(c *config.Config) (*gorm.DB, error) {
	if c.DatabaseURL == "" {
		err := errors.New("missing required environment variable: DATABASE_URL")
		utils.ErrorLogger.Error(err.Error())
		return nil, err
	}
	return config.OpenDatabase(c.DBDriver, c.DatabaseURL)
}
