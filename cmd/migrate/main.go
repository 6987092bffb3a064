package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/config"
	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/logger"
	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/internal/storage"
)

func main() {
	var (
		command = flag.String("command", "", "Migration command: up, down, status, create")
		name    = flag.String("name", "", "Migration name (for create)")
		dir     = flag.String("dir", "", "Directory for new migration files (for create)")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zlog, err := logger.New(cfg.Server.Environment, cfg.Observability.LogLevel, "console")
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zlog.Sync()

	store, err := storage.NewStorage(cfg.Database.Driver, cfg.Database.URL, zlog)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()

	migrator, err := storage.NewMigrator(store, zlog)
	if err != nil {
		log.Fatalf("Failed to create migrator: %v", err)
	}

	ctx := context.Background()
	switch *command {
	case "up":
		if err := migrator.Up(ctx); err != nil {
			log.Fatalf("Migration up failed: %v", err)
		}
		fmt.Println("Migrations applied successfully")
	case "down":
		if err := migrator.Down(ctx); err != nil {
			log.Fatalf("Migration down failed: %v", err)
		}
		fmt.Println("Migrations rolled back successfully")
	case "status":
		applied, err := migrator.Applied(ctx)
		if err != nil {
			log.Fatalf("Failed to read migration status: %v", err)
		}
		for _, m := range applied {
			fmt.Println(m)
		}
		fmt.Printf("%d migrations applied\n", len(applied))
	case "create":
		if *name == "" || *dir == "" {
			log.Fatal("Migration name and dir are required for create command")
		}
		if err := migrator.Create(*dir, *name); err != nil {
			log.Fatalf("Failed to create migration: %v", err)
		}
		fmt.Printf("Migration created: %s\n", *name)
	default:
		fmt.Fprintf(os.Stderr, "Usage: %s -command [up|down|status|create] [-name migration_name -dir path]\n", os.Args[0])
		os.Exit(1)
	}
}
