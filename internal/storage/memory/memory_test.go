package memory_test

import (
	"testing"

	"github.com/klingon-exchange/ledger-engine/internal/ledger"
	"github.com/klingon-exchange/ledger-engine/internal/storage/memory"
	"github.com/klingon-exchange/ledger-engine/internal/storage/storagetest"
)

func TestStore(t *testing.T) {
	storagetest.Run(t, func() ledger.Storage { return memory.New() })
}
