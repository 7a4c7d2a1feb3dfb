package importer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"foiahub/internal/archive"
	"foiahub/internal/blob"
)

func stopWatcher(t *testing.T, w *Watcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, w.Stop(ctx))
}

func TestWatcherSchedulesNewBatches(t *testing.T) {
	defer goleak.VerifyNone(t)

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, nara, oig), 0o755))
	src, err := archive.NewLocal(root)
	require.NoError(t, err)

	seen := make(chan string, 8)
	w := NewWatcher(src, func(_ context.Context, agency string) error {
		seen <- agency
		return nil
	}, WithDebounce(50*time.Millisecond))
	require.NoError(t, w.Start(context.Background()))

	require.NoError(t, os.MkdirAll(filepath.Join(root, nara, oig, "20140212"), 0o755))
	select {
	case agency := <-seen:
		assert.Equal(t, nara, agency)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not schedule an import for the new batch")
	}

	// Non-batch directories do not trigger imports.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "fbi", "readme"), 0o755))
	select {
	case agency := <-seen:
		t.Fatalf("unexpected import of %s", agency)
	case <-time.After(200 * time.Millisecond):
	}
	stopWatcher(t, w)
}

func TestWatcherImportsMovedBatch(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, nara), 0o755))
	src, err := archive.NewLocal(root)
	require.NoError(t, err)

	// Stage the batch outside the archive, then move it in as one event.
	staging := t.TempDir()
	batch := filepath.Join(staging, "20150331")
	require.NoError(t, os.MkdirAll(filepath.Join(batch, "a"), 0o755))
	manifest := "- doc_location: a\n  document:\n    title: Moved\n    file_type: pdf\n    document_date: \"20150301\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(batch, ManifestName), []byte(manifest), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(batch, "a", "record.pdf"), []byte("%PDF"), 0o644))

	store := newStore(t, seed{agencies: []string{nara}})
	done := make(chan error, 1)
	run := Runner(src, store, blob.NewMemory())
	w := NewWatcher(src, func(ctx context.Context, agency string) error {
		err := run(ctx, agency)
		done <- err
		return err
	}, WithDebounce(50*time.Millisecond))
	require.NoError(t, w.Start(ctx))

	require.NoError(t, os.Rename(batch, filepath.Join(root, nara, "20150331")))
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watched import did not run")
	}
	stopWatcher(t, w)

	docs := listDocuments(t, store)
	require.Len(t, docs, 1)
	assert.Equal(t, "Moved", docs[0].Title)
}

// stageBatch writes a one-document batch under dir; the document file is
// left out when withFile is false.
func stageBatch(t *testing.T, dir string, withFile bool) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "a"), 0o755))
	manifest := "- doc_location: a\n  document:\n    title: Late\n    file_type: pdf\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestName), []byte(manifest), 0o644))
	if withFile {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "a", "record.pdf"), []byte("%PDF"), 0o644))
	}
}

func waitRun(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("watched import did not run")
		return nil
	}
}

func TestWatcherRetriesOfficeBatchWhenFileArrives(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, nara, oig), 0o755))
	src, err := archive.NewLocal(root)
	require.NoError(t, err)

	staging := filepath.Join(t.TempDir(), "20150331")
	stageBatch(t, staging, false)

	store := naraStore(t)
	done := make(chan error, 16)
	run := Runner(src, store, blob.NewMemory())
	w := NewWatcher(src, func(ctx context.Context, agency string) error {
		err := run(ctx, agency)
		done <- err
		return err
	}, WithDebounce(50*time.Millisecond))
	require.NoError(t, w.Start(ctx))

	batch := filepath.Join(root, nara, oig, "20150331")
	require.NoError(t, os.Rename(staging, batch))
	require.Error(t, waitRun(t, done), "the document file is still missing")

	time.Sleep(300 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(batch, "a", "record.pdf"), []byte("%PDF"), 0o644))
	require.NoError(t, waitRun(t, done))
	stopWatcher(t, w)

	docs := listDocuments(t, store)
	require.Len(t, docs, 1)
	assert.Equal(t, "Late", docs[0].Title)
}

func TestWatcherImportsMovedAgencyTree(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	root := t.TempDir()
	src, err := archive.NewLocal(root)
	require.NoError(t, err)

	staging := filepath.Join(t.TempDir(), nara)
	stageBatch(t, filepath.Join(staging, "20150331"), true)

	store := newStore(t, seed{agencies: []string{nara}})
	done := make(chan error, 4)
	run := Runner(src, store, blob.NewMemory())
	w := NewWatcher(src, func(ctx context.Context, agency string) error {
		err := run(ctx, agency)
		done <- err
		return err
	}, WithDebounce(50*time.Millisecond))
	require.NoError(t, w.Start(ctx))

	require.NoError(t, os.Rename(staging, filepath.Join(root, nara)))
	require.NoError(t, waitRun(t, done))
	stopWatcher(t, w)

	assert.Len(t, listDocuments(t, store), 1)
}

func TestWatcherStopReleasesWatchOnTimeout(t *testing.T) {
	defer goleak.VerifyNone(t)

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, nara), 0o755))
	src, err := archive.NewLocal(root)
	require.NoError(t, err)

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	w := NewWatcher(src, func(context.Context, string) error {
		once.Do(func() { close(started) })
		<-release
		return nil
	}, WithDebounce(20*time.Millisecond))
	require.NoError(t, w.Start(context.Background()))

	require.NoError(t, os.MkdirAll(filepath.Join(root, nara, "20150331"), 0o755))
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("watched import did not start")
	}

	expired, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, w.Stop(expired), context.Canceled)
	assert.True(t, errors.Is(w.fsw.Add(root), fsnotify.ErrClosed), "watch must be closed after Stop")

	close(release)
	stopWatcher(t, w)
}

func TestWatcherStopWithoutStart(t *testing.T) {
	src, err := archive.NewLocal(t.TempDir())
	require.NoError(t, err)
	w := NewWatcher(src, func(context.Context, string) error { return nil })
	assert.NoError(t, w.Stop(context.Background()))
}
