package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/tailview/tailview/internal/config"
	"github.com/tailview/tailview/internal/engine"
	"github.com/tailview/tailview/internal/server"
	"github.com/tailview/tailview/internal/tailer"
)

func main() {
	configPath := flag.String("config", "tailview.toml", "Path to the TOML config file")
	filePath := flag.String("file", "", "Log file to tail (overrides config)")
	capacity := flag.Int("capacity", -1, "Cache window size in records, 0 for unbounded (overrides config)")
	listen := flag.String("listen", "", "HTTP listen address (overrides config)")
	hashPassword := flag.String("hash-password", "", "Print a bcrypt hash for the given password and exit")
	flag.Parse()

	if *hashPassword != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(*hashPassword), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("Failed to hash password: %v", err)
		}
		fmt.Println(string(hash))
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Invalid config: %v", err)
	}
	if *filePath != "" {
		cfg.Path = *filePath
	}
	if *capacity >= 0 {
		cfg.Capacity = *capacity
	}
	if *listen != "" {
		cfg.Listen = *listen
	}

	log.Printf("tailview started. File: %s, Capacity: %d", cfg.Path, cfg.Capacity)

	// 1. Entry cache and query view
	cache := engine.NewCache(cfg.Capacity)
	view := engine.NewView(cache)

	// 2. Background tailer
	tl := tailer.New(cfg.Path, cfg.Capacity, cache, cfg.PollMin, cfg.PollMax)
	tl.Start()
	log.Printf("Tailer started. Poll interval: %v - %v", cfg.PollMin, cfg.PollMax)

	// 3. HTTP server
	srv := server.New(view, cfg.WebDir, cfg.PasswordHash)
	go func() {
		log.Printf("Listening on %s", cfg.Listen)
		log.Printf("Viewer API available at http://localhost%s/logger/api/logs", cfg.Listen)
		if err := srv.Start(cfg.Listen); err != nil {
			log.Printf("Server stopped: %v", err)
		}
	}()

	// 4. Graceful shutdown hook
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	log.Printf("Received signal: %v. Shutting down...", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	tl.Stop()

	log.Println("tailview exited gracefully.")
}
