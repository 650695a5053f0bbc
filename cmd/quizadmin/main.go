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

	"github.com/gin-gonic/gin"
	"github.com/sandipsstha139/quizu-admin/internal/apiclient"
	"github.com/sandipsstha139/quizu-admin/internal/console"
	"github.com/sandipsstha139/quizu-admin/internal/credstore"
	"github.com/sandipsstha139/quizu-admin/internal/metrics"
	"github.com/sandipsstha139/quizu-admin/internal/quizapi"
	"github.com/sandipsstha139/quizu-admin/internal/session"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var serveHTTP = func(server *http.Server) error {
	return server.ListenAndServe()
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "quizadmin",
		Short:   "Admin console for the Quizu platform with an authenticated, self-refreshing API client",
		PreRunE: prepareConsoleConfig,
		RunE:    runServer,
	}

	rootCmd.Flags().String("listen_addr", ":8080", "HTTP listen address for the console")
	rootCmd.Flags().String("api_base_url", "", "Base URL of the quiz platform backend (e.g. https://quizu-backend-1.onrender.com/api/v1)")
	rootCmd.Flags().String("credential_db_url", "", "Database URL for the credential store (sqlite:// or postgres://; leave empty for in-memory)")
	rootCmd.Flags().Duration("request_timeout", 30*time.Second, "Timeout for calls to the backend")
	rootCmd.Flags().Bool("enable_cors", false, "Enable CORS for cross-origin console frontends")
	rootCmd.Flags().StringSlice("cors_allowed_origins", []string{}, "Allowed origins when CORS is enabled (required if enable_cors is true)")

	_ = viper.BindPFlag("listen_addr", rootCmd.Flags().Lookup("listen_addr"))
	_ = viper.BindPFlag("api_base_url", rootCmd.Flags().Lookup("api_base_url"))
	_ = viper.BindPFlag("credential_db_url", rootCmd.Flags().Lookup("credential_db_url"))
	_ = viper.BindPFlag("request_timeout", rootCmd.Flags().Lookup("request_timeout"))
	_ = viper.BindPFlag("enable_cors", rootCmd.Flags().Lookup("enable_cors"))
	_ = viper.BindPFlag("cors_allowed_origins", rootCmd.Flags().Lookup("cors_allowed_origins"))

	viper.SetEnvPrefix("APP")
	viper.AutomaticEnv()

	return rootCmd
}

const (
	configCodeMissingAPIBaseURL     = "config.missing_api_base_url"
	configCodeInvalidRequestTimeout = "config.invalid_request_timeout"
	configCodeUninitializedConsole  = "config.uninitialized_console_config"
	configCodeMissingCORSOrigins    = "config.missing_cors_allowed_origins"
	configCodeCredentialStoreInit   = "config.credential_store_init"
	configCodeAPIClientInit         = "config.api_client_init"
)

type contextKey string

const consoleConfigContextKey contextKey = "consoleConfig"

func prepareConsoleConfig(command *cobra.Command, arguments []string) error {
	consoleConfig, loadErr := LoadConsoleConfig()
	if loadErr != nil {
		return loadErr
	}
	existingContext := command.Context()
	if existingContext == nil {
		existingContext = context.Background()
	}
	command.SetContext(context.WithValue(existingContext, consoleConfigContextKey, consoleConfig))
	return nil
}

func configError(code, message string) error {
	return fmt.Errorf("%s: %s", code, message)
}

// LoadConsoleConfig reads and validates the console configuration from viper.
func LoadConsoleConfig() (console.Config, error) {
	apiBaseURL := viper.GetString("api_base_url")
	if apiBaseURL == "" {
		return console.Config{}, configError(configCodeMissingAPIBaseURL, "api_base_url must be provided")
	}

	requestTimeout := viper.GetDuration("request_timeout")
	if requestTimeout <= 0 {
		return console.Config{}, configError(configCodeInvalidRequestTimeout, "request_timeout must be greater than zero")
	}

	enableCORS := viper.GetBool("enable_cors")
	corsAllowedOrigins := viper.GetStringSlice("cors_allowed_origins")
	if enableCORS && len(corsAllowedOrigins) == 0 {
		return console.Config{}, configError(configCodeMissingCORSOrigins, "cors_allowed_origins must be provided when enable_cors is true")
	}

	return console.Config{
		ListenAddr:            viper.GetString("listen_addr"),
		APIBaseURL:            apiBaseURL,
		CredentialDatabaseURL: viper.GetString("credential_db_url"),
		RequestTimeout:        requestTimeout,
		EnableCORS:            enableCORS,
		CORSAllowedOrigins:    corsAllowedOrigins,
	}, nil
}

func runServer(command *cobra.Command, arguments []string) error {
	logger, loggerErr := zap.NewProduction()
	if loggerErr != nil {
		return loggerErr
	}
	defer func() { _ = logger.Sync() }()

	commandContext := command.Context()
	var contextValue any
	if commandContext != nil {
		contextValue = commandContext.Value(consoleConfigContextKey)
	}
	consoleConfig, ok := contextValue.(console.Config)
	if !ok {
		return configError(configCodeUninitializedConsole, "console configuration not prepared; PreRunE must execute before RunE")
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(zapLoggerMiddleware(logger))

	if consoleConfig.EnableCORS {
		corsMiddleware, corsErr := console.ConfigureCORS(logger, consoleConfig.CORSAllowedOrigins)
		if corsErr != nil {
			return corsErr
		}
		router.Use(corsMiddleware)
	}

	var tokens credstore.TokenStore
	if consoleConfig.CredentialDatabaseURL != "" {
		persistentStore, storeErr := credstore.NewDatabaseTokenStore(context.Background(), consoleConfig.CredentialDatabaseURL, logger)
		if storeErr != nil {
			return fmt.Errorf("%s: %w", configCodeCredentialStoreInit, storeErr)
		}
		tokens = persistentStore
		logger.Info("using persistent credential store", zap.String("driver", persistentStore.Driver()))
	} else {
		tokens = credstore.NewMemoryTokenStore(logger)
		logger.Info("using in-memory credential store")
	}

	recorder := metrics.NewPrometheusMetrics()

	client, clientErr := apiclient.New(apiclient.Config{
		BaseURL: consoleConfig.APIBaseURL,
		Timeout: consoleConfig.RequestTimeout,
	}, tokens, logger, recorder)
	if clientErr != nil {
		return fmt.Errorf("%s: %w", configCodeAPIClientInit, clientErr)
	}

	sessions := session.NewManager(tokens, client, logger, recorder)
	resources := quizapi.NewClient(client)

	console.MountConsoleRoutes(router, sessions, resources, logger)
	router.GET("/metrics", gin.WrapH(recorder.Handler()))

	// Rehydration runs concurrently so an unreachable backend does not block
	// startup; the route guard renders the loading affordance meanwhile.
	go func() {
		if rehydrateErr := sessions.Rehydrate(context.Background()); rehydrateErr != nil {
			logger.Warn("session rehydration failed",
				zap.String("code", "console.rehydrate_failed"),
				zap.Error(rehydrateErr))
		}
	}()

	server := &http.Server{
		Addr:              consoleConfig.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	defer shutdownCancel()

	go func() {
		stopSignals := make(chan os.Signal, 1)
		signal.Notify(stopSignals, syscall.SIGINT, syscall.SIGTERM)
		<-stopSignals
		graceCtx, graceCancel := context.WithTimeout(shutdownCtx, 10*time.Second)
		defer graceCancel()
		if err := server.Shutdown(graceCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
	}()

	logger.Info("listening", zap.String("addr", consoleConfig.ListenAddr))
	if err := serveHTTP(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen error: %w", err)
	}
	return nil
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		startTime := time.Now()
		contextGin.Next()
		duration := time.Since(startTime)
		logger.Info("http",
			zap.String("method", contextGin.Request.Method),
			zap.String("path", contextGin.Request.URL.Path),
			zap.Int("status", contextGin.Writer.Status()),
			zap.String("ip", contextGin.ClientIP()),
			zap.Duration("elapsed", duration),
		)
	}
}
