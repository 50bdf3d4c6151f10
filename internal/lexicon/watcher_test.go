package lexicon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	primary := filepath.Join(dir, "pl.txt")
	secondary := filepath.Join(dir, "en.txt")
	require.NoError(t, os.WriteFile(primary, []byte("kurde\n"), 0o600))
	require.NoError(t, os.WriteFile(secondary, []byte("damn\n"), 0o600))

	f, err := NewFilterFromFiles(primary, secondary)
	require.NoError(t, err)

	w := NewWatcher(f, primary, secondary, nil)
	w.debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Give the watcher time to register the directory.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(secondary, []byte("damn\nheck\n"), 0o600))

	assert.Eventually(t, func() bool {
		_, s := f.Sizes()
		return s == 2
	}, 2*time.Second, 10*time.Millisecond)
}
