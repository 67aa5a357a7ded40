package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/dshills/musicbox/internal/storage"
	"github.com/dshills/musicbox/internal/storage/storagetest"
)

func TestStore(t *testing.T) {
	storagetest.Run(t, func(*testing.T) storage.Store { return New() })
}

func TestClosedStore(t *testing.T) {
	s := New()
	s.Close()
	if err := s.Set(context.Background(), "k", nil); !errors.Is(err, storage.ErrClosed) {
		t.Errorf("Set() after Close error = %v, want ErrClosed", err)
	}
}
