package sqlitestore_test

import (
	"testing"

	"github.com/klingon-exchange/ledger-engine/internal/ledger"
	"github.com/klingon-exchange/ledger-engine/internal/storage/sqlitestore"
	"github.com/klingon-exchange/ledger-engine/internal/storage/storagetest"
)

func TestStore(t *testing.T) {
	storagetest.Run(t, func() ledger.Storage {
		s, err := sqlitestore.Open(":memory:")
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		t.Cleanup(func() { s.Close() })
		return s
	})
}
