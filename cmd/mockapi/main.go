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

	appLogger "github.com/diskwatch-io/diskwatch/internal/logger"
	"github.com/diskwatch-io/diskwatch/internal/mockapi/api"
	"github.com/diskwatch-io/diskwatch/internal/mockapi/config"
	"github.com/diskwatch-io/diskwatch/internal/mockapi/store"
	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"
)

// Stand-in for the collection API in agent integration tests.

func main() {
	addr := pflag.String("addr", "", "listen address (overrides MOCKAPI_LISTEN_ADDRESS)")
	pflag.Parse()

	// -------- load config ---------
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err) // Use fmt here as logger might not be fully up
		os.Exit(1)
	}
	if *addr != "" {
		cfg.ListenAddress = *addr
	}

	// --------- initialize logger ----------
	if cfg.EnableDebugLog {
		appLogger.SetDebug(true)
		appLogger.Info("Debug logging enabled")
	}

	// ------- Initialize Gin ------------
	if !cfg.EnableDebugLog {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New() // Using gin.New() for more control over middleware

	// Middleware
	router.Use(api.RequestLogger(), api.CORS(), api.Recovery())

	// ------ State block and routes -------
	collectorHandler := api.NewCollectorHandler(store.New())
	collectorHandler.RegisterRoutes(router)
	appLogger.Info("API routes registered.")

	// ------- Start http Server --------
	srv := &http.Server{
		Addr:    cfg.ListenAddress,
		Handler: router,

		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Test harnesses wait for this banner on stdout before driving the agent.
	fmt.Printf("Starting mock collector API server on %s\n", cfg.ListenAddress)
	fmt.Println("Available endpoints:")
	fmt.Println("  GET  /health")
	fmt.Println("  POST /api/v1/servers")
	fmt.Println("  POST /api/v1/metrics")
	fmt.Println("  GET  /stats")
	fmt.Println("  GET  /metrics/latest")
	fmt.Println("  GET  /metrics/all")
	fmt.Println("  POST /reset")

	// Start server in a goroutine so that it doesn't block.
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal("Could not listen on %s: %v", cfg.ListenAddress, err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	// kill (no param) default send syscall.SIGTERM
	// kill -2 is syscall.SIGINT
	// kill -9 is syscall.SIGKILL but can't be caught, so don't add it
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	receivedSignal := <-quit
	appLogger.Info("Shutdown signal (%s) received. Shutting down server gracefully...", receivedSignal)

	// The context is used to inform the server it has 5 seconds to finish
	// the requests it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Fatal("Server forced to shutdown: %v", err)
	}

	appLogger.Info("Server exiting.")
}
