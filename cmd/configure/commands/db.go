package commands

import (
	"fmt"
	"os"

	"github.com/inkwell/inkwell-api/internal/config"
	"github.com/inkwell/inkwell-api/internal/database"
)

// openDB connects with the service credential when one is configured, since role changes and
// flood guard settings are not writable through row-level security.
func openDB() (*database.DB, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	url := cfg.DatabaseURL
	if cfg.ElevatedLookupEnabled() {
		url = cfg.ServiceDatabaseURL
	}
	db, err := database.New(url)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	closeFn := func() {
		if err := db.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
		}
	}
	return db, closeFn, nil
}
