package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/identity-broker/internal/audit"
	"github.com/MarcoPoloResearchLab/identity-broker/internal/auth"
	"github.com/MarcoPoloResearchLab/identity-broker/internal/broker"
	"github.com/MarcoPoloResearchLab/identity-broker/internal/config"
	"github.com/MarcoPoloResearchLab/identity-broker/internal/database"
	"github.com/MarcoPoloResearchLab/identity-broker/internal/directory"
	"github.com/MarcoPoloResearchLab/identity-broker/internal/logging"
	"github.com/MarcoPoloResearchLab/identity-broker/internal/metrics"
	"github.com/MarcoPoloResearchLab/identity-broker/internal/server"
	"github.com/MarcoPoloResearchLab/identity-broker/internal/users"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

var (
	cfgFile  string
	envFiles []string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "identity-broker",
		Short: "Identity broker between the login provider and the journal",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
		SilenceUsage: true,
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrations()
		},
	}
	rootCmd.AddCommand(migrateCmd)

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	flags := cmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Path to configuration file")
	flags.StringSliceVar(&envFiles, "env-file", []string{".env"}, "Dotenv files loaded before reading the environment")
	flags.String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	flags.String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	flags.String("database-driver", defaults.GetString("database.driver"), "Database driver (sqlite, postgres)")
	flags.String("database-dsn", defaults.GetString("database.dsn"), "Database DSN or SQLite path")
	flags.String("issuer", defaults.GetString("auth.issuer"), "Issuer recorded in session tokens")
	flags.Duration("token-ttl", defaults.GetDuration("auth.token_ttl"), "Session token lifetime")
	flags.String("login-url", "", "Login provider URL")
	flags.String("login-return-url", "", "Journal URL receiving the session token")
	flags.String("logout-url", "", "Logout URL")
	flags.String("directory-api-url", "", "Profiles and people API base URL")
	flags.Duration("directory-timeout", defaults.GetDuration("directory.timeout"), "Directory request timeout")
	flags.String("audit-redis-address", "", "Redis address for the audit stream (logs events when empty)")
	flags.String("audit-stream", defaults.GetString("audit.stream"), "Redis stream receiving audit events")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "database.driver", "database-driver")
	bindFlag(cmd, "database.dsn", "database-dsn")
	bindFlag(cmd, "auth.issuer", "issuer")
	bindFlag(cmd, "auth.token_ttl", "token-ttl")
	bindFlag(cmd, "login.url", "login-url")
	bindFlag(cmd, "login.return_url", "login-return-url")
	bindFlag(cmd, "logout.url", "logout-url")
	bindFlag(cmd, "directory.api_url", "directory-api-url")
	bindFlag(cmd, "directory.timeout", "directory-timeout")
	bindFlag(cmd, "audit.redis_address", "audit-redis-address")
	bindFlag(cmd, "audit.stream", "audit-stream")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if err := config.LoadDotEnv(envFiles...); err != nil {
		return err
	}

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

func runMigrations() error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.Open(database.Config{Driver: appConfig.DatabaseDriver, DSN: appConfig.DatabaseDSN}, logger)
	if err != nil {
		return err
	}
	return database.Close(db)
}

func newPublisher(appConfig config.AppConfig, logger *zap.Logger) (audit.Publisher, func() error, error) {
	if appConfig.AuditRedisAddress == "" {
		logger.Info("audit bus not configured, logging audit events")
		return audit.NewLogPublisher(logger), func() error { return nil }, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr: appConfig.AuditRedisAddress,
		DB:   appConfig.AuditRedisDB,
	})
	publisher, err := audit.NewRedisPublisher(audit.RedisPublisherConfig{
		Client: client,
		Stream: appConfig.AuditStream,
		Logger: logger,
	})
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return publisher, publisher.Close, nil
}

// newDirectoryClients builds the enrichment clients. Only the people API sits
// behind the gateway, so only it receives the gateway token.
func newDirectoryClients(appConfig config.AppConfig, logger *zap.Logger, collectors *metrics.Collectors) (*directory.ProfilesClient, *directory.PeopleClient, error) {
	profilesConfig := directory.ClientConfig{
		BaseURL: appConfig.DirectoryAPIURL,
		Timeout: appConfig.DirectoryTimeout,
		Logger:  logger,
		Metrics: collectors,
	}
	profiles, err := directory.NewProfilesClient(profilesConfig)
	if err != nil {
		return nil, nil, err
	}
	peopleConfig := profilesConfig
	peopleConfig.Token = appConfig.DirectoryAPIToken
	people, err := directory.NewPeopleClient(peopleConfig)
	if err != nil {
		return nil, nil, err
	}
	return profiles, people, nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.Open(database.Config{Driver: appConfig.DatabaseDriver, DSN: appConfig.DatabaseDSN}, logger)
	if err != nil {
		return err
	}
	defer database.Close(db) //nolint:errcheck

	collectors := metrics.NewCollectors()
	if err := collectors.Register(prometheus.DefaultRegisterer); err != nil {
		return err
	}

	publisher, closePublisher, err := newPublisher(appConfig, logger)
	if err != nil {
		return err
	}
	defer closePublisher() //nolint:errcheck

	codec, err := auth.NewCodec(auth.CodecConfig{Issuer: appConfig.Issuer, Logger: logger})
	if err != nil {
		return err
	}

	store, err := users.NewStore(users.StoreConfig{
		Database:   db,
		IDProvider: users.NewUUIDProvider(),
		Logger:     logger,
		Metrics:    collectors,
	})
	if err != nil {
		return err
	}

	profiles, people, err := newDirectoryClients(appConfig, logger, collectors)
	if err != nil {
		return err
	}

	exchange, err := broker.NewExchange(broker.ExchangeConfig{
		Codec:          codec,
		Resolver:       store,
		Publisher:      publisher,
		ProviderSecret: []byte(appConfig.ProviderSecret),
		SessionSecret:  []byte(appConfig.SessionSecret),
		ReturnURL:      appConfig.LoginReturnURL,
		SessionTTL:     appConfig.TokenTTL,
		Logger:         logger,
		Metrics:        collectors,
	})
	if err != nil {
		return err
	}

	sessions, err := broker.NewSessionResolver(broker.SessionResolverConfig{
		Codec:         codec,
		Users:         store,
		Profiles:      profiles,
		People:        people,
		SessionSecret: []byte(appConfig.SessionSecret),
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	peopleDirectory, err := broker.NewDirectory(broker.DirectoryConfig{People: people, Logger: logger})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Authenticator: exchange,
		Sessions:      sessions,
		People:        peopleDirectory,
		LoginURL:      appConfig.LoginURL,
		LogoutURL:     appConfig.LogoutURL,
		Gatherer:      prometheus.DefaultGatherer,
		Logger:        logger,
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

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("address", appConfig.HTTPAddress),
			zap.String("login_url", appConfig.LoginURL),
			zap.String("return_url", appConfig.LoginReturnURL),
			zap.String("directory_api_url", appConfig.DirectoryAPIURL),
		)
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		logger.Info("shutdown requested")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		shutdownErr := httpServer.Shutdown(shutdownCtx)
		if err := exchange.Drain(shutdownCtx); err != nil {
			logger.Warn("audit publications still in flight at shutdown", zap.Error(err))
		}
		return shutdownErr
	case err := <-errCh:
		return err
	}
}
