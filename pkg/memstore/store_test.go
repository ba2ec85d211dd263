package memstore

import (
	"testing"

	"github.com/jakechorley/spin-wheel/pkg/db"
	"github.com/jakechorley/spin-wheel/pkg/db/dbtest"
)

func TestStore(t *testing.T) {
	dbtest.RunStoreTests(t, func(t *testing.T) db.Store {
		return New()
	})
}
