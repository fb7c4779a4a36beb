package bootstrap

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"

	"ipam/internal/app/server"
	"ipam/internal/config"
	"ipam/internal/database"
	"ipam/internal/ipam"
)

// Setup loads settings, connects the database, and wires the allocator
// into the HTTP layer.
func Setup() error {
	config.ReadSettings()

	if os.Getenv("API_KEY") == "" {
		log.Warn("API_KEY not set in environment variables")
	}

	db, err := database.SetupDB()
	if err != nil {
		return fmt.Errorf("failed to set up database: %w", err)
	}

	opts, err := config.GetConfig().AllocatorOptions()
	if err != nil {
		return err
	}

	server.UseAllocator(ipam.New(database.NewStore(db), opts...))
	return nil
}
