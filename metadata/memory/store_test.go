package memory

import (
	"testing"

	"github.com/ebogdum/fsbridge/metadata"
	"github.com/ebogdum/fsbridge/metadata/storetest"
)

func TestMemoryStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) metadata.Store {
		return NewMemoryStore()
	})
}
