package infrastructure

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nhdinh03/Download-Video/internal/domain"
)

func newTestTempFiles(t *testing.T) (*TempFileManager, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	m, err := NewTempFileManager(fs, "/scratch", "mp4", zap.NewNop())
	require.NoError(t, err)
	return m, fs
}

func TestTempFileManager_Allocate(t *testing.T) {
	m, _ := newTestTempFiles(t)

	a, err := m.Allocate()
	require.NoError(t, err)
	b, err := m.Allocate()
	require.NoError(t, err)

	assert.NotEqual(t, a.Name, b.Name)
	assert.True(t, strings.HasSuffix(a.Name, ".mp4"))
	assert.Equal(t, filepath.Join("/scratch", a.Name), a.Path)
	assert.NoError(t, domain.ValidateFilename(a.Name), "allocated names must be servable")
}

func TestTempFileManager_ClaimOnce(t *testing.T) {
	m, fs := newTestTempFiles(t)
	file, _ := m.Allocate()
	require.NoError(t, afero.WriteFile(fs, file.Path, []byte("video-bytes"), 0644))

	r, info, release, err := m.Claim(file.Name)
	require.NoError(t, err)
	assert.Equal(t, int64(len("video-bytes")), info.Size())

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "video-bytes", string(data))
	release(true)

	_, err = m.Stat(file.Name)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	_, _, _, err = m.Claim(file.Name)
	assert.True(t, errors.Is(err, os.ErrNotExist), "second retrieval must be not found")

	exists, err := afero.Exists(fs, file.Path+claimSuffix)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestTempFileManager_ConcurrentClaims(t *testing.T) {
	m, fs := newTestTempFiles(t)
	file, _ := m.Allocate()
	require.NoError(t, afero.WriteFile(fs, file.Path, []byte("x"), 0644))

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, release, err := m.Claim(file.Name)
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				release(true)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
}

func TestTempFileManager_IncompleteReleaseKeepsFile(t *testing.T) {
	m, fs := newTestTempFiles(t)
	now := time.Now()
	m.now = func() time.Time { return now }

	file, _ := m.Allocate()
	require.NoError(t, afero.WriteFile(fs, file.Path, []byte("video-bytes"), 0644))

	r, _, release, err := m.Claim(file.Name)
	require.NoError(t, err)
	_, err = io.CopyN(io.Discard, r, 3)
	require.NoError(t, err)
	release(false)

	claimed := file.Path + claimSuffix
	exists, err := afero.Exists(fs, claimed)
	require.NoError(t, err)
	assert.True(t, exists, "interrupted transfer must leave the file for reclaim")

	_, _, _, err = m.Claim(file.Name)
	assert.True(t, errors.Is(err, os.ErrNotExist), "a claimed file is never served twice")

	old := now.Add(-25 * time.Hour)
	require.NoError(t, fs.Chtimes(claimed, old, old))
	deleted, err := m.Reclaim(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	exists, err = afero.Exists(fs, claimed)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestTempFileManager_ClaimRejectsBadNames(t *testing.T) {
	m, _ := newTestTempFiles(t)

	_, _, _, err := m.Claim("../etc/passwd")
	assert.Equal(t, domain.KindInvalidInput, domain.KindOf(err))

	_, _, _, err = m.Claim("missing.mp4")
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestTempFileManager_Remove(t *testing.T) {
	m, fs := newTestTempFiles(t)
	file, _ := m.Allocate()
	require.NoError(t, afero.WriteFile(fs, file.Path+partialSuffix, []byte("partial"), 0644))

	require.NoError(t, m.Remove(file.Name))

	exists, _ := afero.Exists(fs, file.Path+partialSuffix)
	assert.False(t, exists)
}

func TestTempFileManager_Reclaim(t *testing.T) {
	m, fs := newTestTempFiles(t)
	now := time.Now()
	m.now = func() time.Time { return now }

	old := now.Add(-25 * time.Hour)
	fresh := now.Add(-time.Hour)

	files := map[string]time.Time{
		"old.mp4":          old,
		"old.mp4.part":     old,
		"old2.mp4.serving": old,
		"fresh.mp4":        fresh,
		"notes.txt":        old,
	}
	for name, mtime := range files {
		path := filepath.Join("/scratch", name)
		require.NoError(t, afero.WriteFile(fs, path, []byte("x"), 0644))
		require.NoError(t, fs.Chtimes(path, mtime, mtime))
	}

	deleted, err := m.Reclaim(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 3, deleted)

	for name, keep := range map[string]bool{
		"old.mp4":          false,
		"old.mp4.part":     false,
		"old2.mp4.serving": false,
		"fresh.mp4":        true,
		"notes.txt":        true,
	} {
		exists, err := afero.Exists(fs, filepath.Join("/scratch", name))
		require.NoError(t, err)
		assert.Equal(t, keep, exists, name)
	}
}

func TestTempFileManager_ReclaimMissingDir(t *testing.T) {
	m, fs := newTestTempFiles(t)
	require.NoError(t, fs.RemoveAll("/scratch"))

	deleted, err := m.Reclaim(time.Hour)
	assert.NoError(t, err)
	assert.Equal(t, 0, deleted)
}
