package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"accounts/internal/config"
	"accounts/internal/services"
)

func main() {
	// --- Configuration ---
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Cancelled on shutdown; stops the reset token janitor and bounds in-flight email deliveries.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Storage and email transport ---
	deps, err := buildDependencies(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize dependencies: %v", err)
	}
	defer deps.Close()

	// --- Services ---
	hasher := services.NewBcryptHasher(cfg.BcryptCost)
	tokenService := services.NewTokenService(cfg.JWTSecret, cfg.TokenTTL)
	resetService := services.NewResetTokenService(deps.resets, hasher, cfg.ResetTokenTTL)
	accountService := services.NewAccountService(deps.users, hasher, tokenService, resetService, deps.sender, services.AccountOptions{
		AppName:     cfg.AppName,
		FrontendURL: cfg.FrontendURL,
		EmailFrom:   cfg.EmailFrom,
	})

	if cfg.ResetJanitorInterval > 0 {
		go resetService.RunJanitor(ctx, cfg.ResetJanitorInterval)
	}

	// --- Fiber App ---
	app := newApp(cfg, accountService, deps.health)

	log.Printf("Starting server on port %s", cfg.AppPort)

	// Graceful shutdown handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := app.Listen(cfg.AppPort); err != nil {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	<-quit
	log.Println("Shutting down server...")
	cancel()

	if err := app.Shutdown(); err != nil {
		log.Printf("Error during Fiber shutdown: %v", err)
	}
	log.Println("Server gracefully stopped")
}
