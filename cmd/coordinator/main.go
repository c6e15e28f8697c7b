package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/adityaraj/storegate/internal/communication"
	"github.com/adityaraj/storegate/internal/log_service"
	"github.com/adityaraj/storegate/internal/server"
)

func main() {
	var (
		configPath = flag.String("config", "./configs/coordinator.yaml", "Path to coordinator config")
		listen     = flag.String("listen", "", "Listen address (overrides config)")
		baseDir    = flag.String("base-dir", "", "Shared file directory (overrides config)")
		limit      = flag.Int("limit", 0, "Global concurrency limit (overrides config)")
		logLevel   = flag.String("log-level", "", "Minimum log level (overrides config)")
	)
	flag.Parse()

	cfg, err := server.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if *listen != "" {
		cfg.ListenAddress = *listen
	}
	if *baseDir != "" {
		cfg.BaseDir = *baseDir
	}
	if *limit > 0 {
		cfg.ConcurrencyLimit = *limit
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	ls := log_service.NewStdoutLogService("coordinator", cfg.LogLevel)
	comm := communication.NewHTTPCommunicator(cfg.ListenAddress, cfg.Namespace, ls)

	srv := server.Build(server.BuildOptions{
		Config: cfg,
		Comm:   comm,
		Logger: ls,
	})

	if err := srv.Start(); err != nil {
		log.Fatalf("Failed to start coordinator: %v", err)
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	log.Println("Shutting down coordinator...")
	if err := srv.Stop(); err != nil {
		log.Printf("Error stopping coordinator: %v", err)
	}
}
