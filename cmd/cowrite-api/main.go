package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Iblal/cowrite-server/internal/auth"
	"github.com/Iblal/cowrite-server/internal/collab"
	"github.com/Iblal/cowrite-server/internal/config"
	"github.com/Iblal/cowrite-server/internal/database"
	"github.com/Iblal/cowrite-server/internal/documents"
	"github.com/Iblal/cowrite-server/internal/logging"
	"github.com/Iblal/cowrite-server/internal/server"
	"github.com/Iblal/cowrite-server/internal/users"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "cowrite-api",
		Short: "Collaborative document editing backend",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-driver", defaults.GetString("database.driver"), "Record store driver (sqlite, postgres)")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("database-dsn", defaults.GetString("database.dsn"), "PostgreSQL connection string")
	cmd.PersistentFlags().Int("token-ttl-minutes", defaults.GetInt("auth.token_ttl_minutes"), "Login token TTL in minutes")
	cmd.PersistentFlags().Int("store-timeout-seconds", defaults.GetInt("collab.store_timeout_seconds"), "Bound on the final state store at session close")
	cmd.PersistentFlags().Int("session-idle-timeout-seconds", defaults.GetInt("collab.session_idle_timeout_seconds"), "Idle time after which a collaboration session expires")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-format", defaults.GetString("log.format"), "Log format (json, console)")
	cmd.PersistentFlags().StringSlice("allowed-origins", defaults.GetStringSlice("cors.allowed_origins"), "CORS allowed origins")
	cmd.PersistentFlags().String("signing-secret", "", "Token signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.driver", "database-driver")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "database.dsn", "database-dsn")
	bindFlag(cmd, "auth.token_ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "collab.store_timeout_seconds", "store-timeout-seconds")
	bindFlag(cmd, "collab.session_idle_timeout_seconds", "session-idle-timeout-seconds")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.format", "log-format")
	bindFlag(cmd, "cors.allowed_origins", "allowed-origins")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.Open(appConfig, logger)
	if err != nil {
		return err
	}
	defer database.Close(db) //nolint:errcheck

	signingSecret := []byte(appConfig.SigningSecret)
	verifier, err := auth.NewCredentialVerifier(auth.CredentialVerifierConfig{SigningSecret: signingSecret})
	if err != nil {
		return err
	}
	tokenIssuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: signingSecret,
		TokenTTL:      appConfig.TokenTTL,
	})
	if err != nil {
		return err
	}

	accounts, err := users.NewService(users.ServiceConfig{Database: db, Logger: logger})
	if err != nil {
		return err
	}

	repository := documents.NewGormRepository(db)
	resolver, err := documents.NewAccessResolver(repository, logger)
	if err != nil {
		return err
	}
	documentService, err := documents.NewService(documents.ServiceConfig{
		Repository: repository,
		Access:     resolver,
		Clock:      time.Now,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	shares, err := documents.NewShareManager(repository, time.Now, logger)
	if err != nil {
		return err
	}
	snapshots, err := documents.NewSnapshotStore(repository, time.Now, logger)
	if err != nil {
		return err
	}

	authorizer, err := collab.NewSessionAuthorizer(verifier, resolver, time.Now, logger)
	if err != nil {
		return err
	}
	saveFeed := server.NewSaveFeed(server.SaveFeedConfig{Logger: logger})
	sessions, err := collab.NewSessionManager(collab.SessionManagerConfig{
		Authorizer:   authorizer,
		Port:         collab.NewEnginePort(snapshots, logger),
		IDProvider:   collab.NewUUIDProvider(),
		StoreTimeout: appConfig.StoreTimeout,
		IdleTimeout:  appConfig.SessionIdle,
		Listener:     saveFeed,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	handler, err := server.NewHTTPHandler(server.Dependencies{
		Verifier:       verifier,
		Tokens:         tokenIssuer,
		Accounts:       accounts,
		Documents:      documentService,
		Shares:         shares,
		Sessions:       sessions,
		SaveFeed:       saveFeed,
		AllowedOrigins: appConfig.AllowedOrigins,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go sessions.RunSweeper(signalCtx)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("address", appConfig.HTTPAddress),
			zap.String("database_driver", appConfig.DatabaseDriver))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
