package otpsvc

import (
	"context"
	"testing"
	"time"

	"github.com/newedu/guardian/core"
)

func TestInMemStore(t *testing.T) {
	ctx := context.Background()
	ttl := 5 * time.Minute

	t.Run("unknown key", func(t *testing.T) {
		store := NewInMemStore()
		if _, err := store.Check(ctx, "+998901112233", "123456"); err != core.ErrOTPNotFound {
			t.Errorf("Check() error = %v, want %v", err, core.ErrOTPNotFound)
		}
	})

	t.Run("match consumes the code", func(t *testing.T) {
		store := NewInMemStore()
		if err := store.Store(ctx, "+998901112233", "123456", ttl); err != nil {
			t.Fatalf("Store() failed: %v", err)
		}

		ok, err := store.Check(ctx, "+998901112233", "000000")
		if err != nil || ok {
			t.Errorf("Check() = %v, %v; want a rejected mismatch", ok, err)
		}

		ok, err = store.Check(ctx, "+998901112233", "123456")
		if err != nil || !ok {
			t.Errorf("Check() = %v, %v; want a match", ok, err)
		}

		// single-use
		if _, err = store.Check(ctx, "+998901112233", "123456"); err != core.ErrOTPNotFound {
			t.Errorf("Check() error = %v, want %v", err, core.ErrOTPNotFound)
		}
	})

	t.Run("expiry", func(t *testing.T) {
		store := NewInMemStore()
		if err := store.Store(ctx, "+998901112233", "123456", ttl); err != nil {
			t.Fatalf("Store() failed: %v", err)
		}

		NowFunc = func() time.Time { return time.Now().Add(ttl + time.Minute) }
		defer func() { NowFunc = time.Now }()

		if _, err := store.Check(ctx, "+998901112233", "123456"); err != core.ErrOTPNotFound {
			t.Errorf("Check() error = %v, want %v", err, core.ErrOTPNotFound)
		}
	})

	t.Run("rewrite replaces the code", func(t *testing.T) {
		store := NewInMemStore()
		store.Store(ctx, "+998901112233", "111111", ttl)
		store.Store(ctx, "+998901112233", "222222", ttl)

		if ok, _ := store.Check(ctx, "+998901112233", "111111"); ok {
			t.Error("Check() accepted a replaced code")
		}
	})
}
