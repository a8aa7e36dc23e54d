package health

import (
	"context"
	"errors"
	"fmt"

	"mercator-hq/meridian/pkg/audit"
	"mercator-hq/meridian/pkg/rules/catalog"
)

// CatalogCheck is unhealthy until store holds a catalog, and while the most
// recent reload failed.
func CatalogCheck(store *catalog.Store) CheckFunc {
	return func(ctx context.Context) error {
		status := store.Status()
		if store.Current() == nil {
			if status.LastError != nil {
				return fmt.Errorf("catalog not loaded: %v", status.LastError)
			}
			return errors.New("catalog not loaded")
		}
		if status.LastError != nil {
			return fmt.Errorf("last reload failed, serving catalog loaded at %s: %v",
				status.LoadedAt.Format("2006-01-02T15:04:05Z07:00"), status.LastError)
		}
		return nil
	}
}

// AuditCheck reads one record from storage to prove it is reachable.
func AuditCheck(storage audit.Storage) CheckFunc {
	return func(ctx context.Context) error {
		if _, err := storage.List(ctx, &audit.Query{Limit: 1}); err != nil {
			return fmt.Errorf("audit storage: %w", err)
		}
		return nil
	}
}
