package ipc

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ierr "github.com/xdgtools/desktop-indexer/internal/errors"
)

func TestClient_ProbeNoDaemon(t *testing.T) {
	c := NewClientAt(filepath.Join(t.TempDir(), "nonexistent.sock"))
	assert.False(t, c.Probe())
}

func TestClient_DoNoDaemonIsIOError(t *testing.T) {
	c := NewClientAt(filepath.Join(t.TempDir(), "nonexistent.sock"))
	_, err := c.Do(Request{Cmd: CmdStatus})
	require.Error(t, err)
	assert.Equal(t, ierr.KindIO, ierr.KindOf(err),
		"an unreachable daemon reads as IoError so callers fall back locally")
}

func TestClient_ProbeLiveServer(t *testing.T) {
	f := startServer(t)
	c := NewClientAt(f.socketPath)
	assert.True(t, c.Probe())
}

func TestClient_StatusRoundTrip(t *testing.T) {
	f := startServer(t)
	c := NewClientAt(f.socketPath)

	resp, err := c.Status()
	require.NoError(t, err)
	require.NotNil(t, resp.HasIndexCount)
	assert.Equal(t, 0, *resp.HasIndexCount)
}

func TestClient_WarmupSearchList(t *testing.T) {
	f := startServer(t)
	c := NewClientAt(f.socketPath)

	require.NoError(t, c.Warmup([]string{f.root}, false))

	entries, err := c.Search([]string{f.root}, "fire", 5, "recency", false)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "firefox", entries[0].ID)
	require.NotNil(t, entries[0].Score)

	all, err := c.List([]string{f.root}, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestClient_LaunchAndShutdown(t *testing.T) {
	f := startServer(t)
	c := NewClientAt(f.socketPath)

	require.NoError(t, c.Launch([]string{f.root}, "code", "", false))
	assert.Equal(t, []string{"code/"}, f.executor.launched)

	err := c.Launch([]string{f.root}, "missing", "", false)
	require.Error(t, err)
	assert.Equal(t, ierr.KindNotFound, ierr.KindOf(err),
		"daemon error kinds survive the wire round trip")

	require.NoError(t, c.Shutdown())
}

func TestClient_SearchErrorSurfaced(t *testing.T) {
	f := startServer(t)
	c := NewClientAt(f.socketPath)

	_, err := c.Search(nil, "x", 5, "recency", false)
	require.Error(t, err)
	assert.Equal(t, ierr.KindProtocol, ierr.KindOf(err))
}
