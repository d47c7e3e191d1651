package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"oxinot/internal/engine"
	mcpserver "oxinot/internal/mcp"
	"oxinot/internal/storage"
)

func main() {
	dbFlag := flag.String("db", "", "path to the database file (default ~/.local/share/oxinot/oxinot.db)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	dbPath := *dbFlag
	if dbPath == "" {
		homeDir, _ := os.UserHomeDir()
		dataDir := filepath.Join(homeDir, ".local", "share", "oxinot")
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			log.Fatalf("Failed to create data dir: %v", err)
		}
		dbPath = filepath.Join(dataDir, "oxinot.db")
	}

	db, err := storage.New(dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	srv := mcpserver.New(ctx, mcpserver.Deps{
		Emitter: engine.NoopEmitter{},
		Pages:   storage.NewPageStore(db),
		Gateway: storage.NewBlockGateway(db),
	})

	log.Println("[MCP] Starting standalone stdio server...")
	if err := srv.ServeStdio(); err != nil {
		log.Fatalf("MCP server error: %v", err)
	}
}
