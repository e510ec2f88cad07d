package overrides

import (
	"context"
	"fmt"
	"strings"
)

// Open connects the backend named by driver: "memory", "sqlite" (path is the
// database file) or "postgres" (dsn; migrations are applied first).
func Open(ctx context.Context, driver, path, dsn string, layout Layout) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "memory":
		return NewMemory(layout), nil
	case "sqlite":
		return OpenSQLite(strings.TrimSpace(path), layout)
	case "postgres":
		dsn = strings.TrimSpace(dsn)
		if dsn == "" {
			return nil, fmt.Errorf("postgres: empty dsn")
		}
		return OpenPostgres(ctx, dsn, layout)
	default:
		return nil, fmt.Errorf("unsupported override store driver: %q", driver)
	}
}
