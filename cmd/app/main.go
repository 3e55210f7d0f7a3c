package main

import (
	"flag"
	"log"
	"os"

	"OrbLab/internal/di"
	"OrbLab/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	log.Printf("env=%s data=%s kafka=%t clickhouse=%t redis=%t",
		cfg.Environment, cfg.Data.Source, cfg.Kafka.Enabled, cfg.ClickHouse.Enabled, cfg.Redis.Enabled)

	app, cleanup, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	runErr := app.Run()
	cleanup()
	if runErr != nil {
		log.Printf("app error: %v", runErr)
		os.Exit(1)
	}
}
