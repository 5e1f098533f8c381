/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the fleet premium engine server. Handles
  configuration, dependency wiring, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Initialize SQLite store
  3. Load rating configuration (JSON file or built-in defaults)
  4. Start the job coordinator worker pool
  5. Configure HTTP router
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port     HTTP server port (default: 8080)
  -db       SQLite database path (default: fleet.db)
            Use ":memory:" for an in-memory database
  -config   Rating config JSON path (optional; defaults apply otherwise)
  -workers  Recalculation worker count (default: 4)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the job coordinator (drains running jobs)
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database and custom rating config
  ./server -db="./data/fleet.db" -config="./config/rating.json"

  # Run with in-memory database
  ./server -db=":memory:"

ENVIRONMENT:
  No environment variables currently. All config via flags.

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
  - jobs/coordinator.go: Recalculation worker pool
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fleetsure/premium-engine/api"
	"github.com/fleetsure/premium-engine/engine"
	"github.com/fleetsure/premium-engine/factory"
	"github.com/fleetsure/premium-engine/jobs"
	"github.com/fleetsure/premium-engine/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "fleet.db", "SQLite database path")
	configPath := flag.String("config", "", "rating config JSON path")
	workers := flag.Int("workers", 4, "recalculation worker count")
	flag.Parse()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Rating configuration
	ratingConfig := engine.DefaultRatingConfig()
	if *configPath != "" {
		config, layers, err := factory.NewRatingFactory().LoadFile(*configPath)
		if err != nil {
			log.Fatalf("Failed to load rating config: %v", err)
		}
		ratingConfig = config
		for _, layer := range layers {
			if err := store.SaveLayer(context.Background(), layer); err != nil {
				log.Fatalf("Failed to save reinsurance layer %q: %v", layer.Name, err)
			}
		}
	}

	// Recalculation pipeline
	recalculator := engine.NewRecalculator(store, ratingConfig)
	coordinator := jobs.NewCoordinator(recalculator, store, *workers)
	coordinator.Start()
	defer coordinator.Stop()

	// Create router
	router := api.NewRouter(api.NewHandler(store, coordinator))

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server starting on http://localhost:%d", *port)
		log.Printf("API available at http://localhost:%d/api", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
