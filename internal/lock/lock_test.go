package lock

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseLocker(t *testing.T, l Locker) {
	t.Helper()
	ctx := context.Background()

	release, err := l.Acquire(ctx, "journal")
	require.NoError(t, err)

	short, cancel := context.WithTimeout(ctx, 3*pollInterval)
	defer cancel()
	_, err = l.Acquire(short, "journal")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	release()

	again, err := l.Acquire(ctx, "journal")
	require.NoError(t, err)
	again()
}

func TestMutex(t *testing.T) {
	exerciseLocker(t, NewMutex())
}

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "journal.json.lock")
	exerciseLocker(t, NewFile(path))
}

func TestFileSeparateHandles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.lock")
	first, err := NewFile(path).Acquire(context.Background(), "")
	require.NoError(t, err)

	acquired := make(chan func(), 1)
	go func() {
		release, err := NewFile(path).Acquire(context.Background(), "")
		if err == nil {
			acquired <- release
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second holder acquired a held lock")
	case <-time.After(3 * pollInterval):
	}

	first()
	select {
	case release := <-acquired:
		release()
	case <-time.After(5 * time.Second):
		t.Fatal("lock was not handed over after release")
	}
}

func TestHashKeyIsStable(t *testing.T) {
	assert.Equal(t, hashKey("chschema_journal"), hashKey("chschema_journal"))
	assert.NotEqual(t, hashKey("a"), hashKey("b"))
	assert.GreaterOrEqual(t, hashKey("anything"), int64(0))
}
