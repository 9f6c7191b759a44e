package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/tipvault/relayer/docs/swagger"
	"github.com/tipvault/relayer/src/app"
)

// @host      localhost:8080
// @BasePath  /api/v1

// @securityDefinitions.apikey  APISecret
// @in                          header
// @name                        X-API-Secret

const (
	AppName    = "TipVault Relayer"
	AppVersion = "0.1.0"

	pprofAddr = "localhost:6060"
)

func main() {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Overload(".env"); err != nil {
			log.Fatalf("Error loading .env file: %v", err)
		}
	}

	config := app.NewAppConfig()
	isDev := config.Environment == "dev" || config.Environment == "development"

	swagger.SwaggerInfo.Title = AppName + " API"
	swagger.SwaggerInfo.Version = AppVersion
	swagger.SwaggerInfo.Description = fmt.Sprintf("%s: gasless contract calls through ERC-4337 sponsorship", AppName)
	swagger.SwaggerInfo.Host = config.Host

	logger := app.InitLogger(config.LogLevel, isDev)
	logger.Info().
		Str("version", AppVersion).
		Str("environment", config.Environment).
		Int64("chain_id", config.ChainID).
		Str("entry_point", config.EntryPoint.Hex()).
		Msgf("Launching %s", AppName)

	ctx, stop := signal.NotifyContext(logger.WithContext(context.Background()), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.NewApplication(ctx, *config)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize application")
		os.Exit(1)
	}

	workers := []func(context.Context, *sync.WaitGroup){
		application.RunHTTPServer,
		application.RunReconciler,
	}
	if isDev {
		workers = append(workers, runPprofServer)
	}

	var wg sync.WaitGroup
	for _, run := range workers {
		wg.Add(1)
		go run(ctx, &wg)
	}

	<-ctx.Done()
	logger.Info().Msg("Shutdown signal received")

	// in-flight relays may still be polling for their receipt
	grace := config.ReceiptPollInterval*time.Duration(config.ReceiptPollAttempts) + 15*time.Second
	if !waitTimeout(&wg, grace) {
		logger.Error().Dur("grace", grace).Msg("Timeout waiting for workers to shut down")
	}

	application.Shutdown(context.WithoutCancel(ctx))
	logger.Info().Msg("Application shutdown complete")
}

// waitTimeout reports whether wg finished within d.
func waitTimeout(wg *sync.WaitGroup, d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}

func runPprofServer(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	logger := zerolog.Ctx(ctx).With().Str("function", "runPprofServer").Logger()

	server := &http.Server{
		Addr:              pprofAddr,
		Handler:           http.DefaultServeMux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info().Msgf("pprof listening on http://%s/debug/pprof/", pprofAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("pprof server stopped")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}
