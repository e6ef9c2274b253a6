//go:build !windows

package lockfile

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

// lockName returns a name no other test or process uses.
func lockName() string {
	return "tgrel-test-" + uuid.New().String()
}

func TestAcquireReleaseRoundTrip(t *testing.T) {
	t.Parallel()

	name := lockName()
	lock, err := Acquire(name)
	if err != nil {
		t.Fatalf("Acquire() error = %v, want nil", err)
	}

	held, err := Held(name)
	if err != nil {
		t.Fatalf("Held() error = %v", err)
	}
	if !held {
		t.Fatal("Held() = false while the handle is acquired")
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}

	held, err = Held(name)
	if err != nil {
		t.Fatalf("Held() after release error = %v", err)
	}
	if held {
		t.Fatal("Held() = true after release")
	}
}

func TestAcquireRefusesSecondHolder(t *testing.T) {
	t.Parallel()

	name := lockName()
	lock, err := Acquire(name)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer lock.Release()

	if _, err := Acquire(name); !errors.Is(err, ErrHeld) {
		t.Fatalf("second Acquire() error = %v, want ErrHeld", err)
	}
}

func TestHeldUnknownNameIsFalse(t *testing.T) {
	t.Parallel()

	held, err := Held(lockName())
	if err != nil {
		t.Fatalf("Held() error = %v", err)
	}
	if held {
		t.Fatal("Held() = true for a name nothing ever locked")
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	t.Parallel()

	lock, err := Acquire(lockName())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("first Release() error = %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("second Release() error = %v, want nil", err)
	}
}
