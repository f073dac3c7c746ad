package testsupport

import (
	"testing"

	"dynpower/internal/config"
	"dynpower/internal/statestore"
)

// MustOpenStateStore opens the config's state database and registers
// cleanup.
func MustOpenStateStore(t testing.TB, cfg *config.Config) *statestore.Store {
	t.Helper()

	store, err := statestore.Open(cfg.StateDBPath())
	if err != nil {
		t.Fatalf("statestore.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}
