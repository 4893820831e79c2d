package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xdgtools/desktop-indexer/internal/desktop"
	ierr "github.com/xdgtools/desktop-indexer/internal/errors"
	"github.com/xdgtools/desktop-indexer/internal/index"
	"github.com/xdgtools/desktop-indexer/internal/usage"
)

// testSocketPath creates a unique socket path short enough for Unix sockets.
func testSocketPath(t *testing.T) string {
	t.Helper()
	path := filepath.Join("/tmp", fmt.Sprintf("dski-test-%d.sock", time.Now().UnixNano()))
	t.Cleanup(func() { os.Remove(path) })
	return path
}

// fakeExecutor records launches instead of spawning processes.
type fakeExecutor struct {
	mu       sync.Mutex
	launched []string
	fail     bool
}

func (f *fakeExecutor) Launch(entry *desktop.Entry, action string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return ierr.New(ierr.KindIO, "spawn failed")
	}
	f.launched = append(f.launched, entry.ID+"/"+action)
	return nil
}

type serverFixture struct {
	socketPath string
	root       string
	usage      *usage.Store
	executor   *fakeExecutor
	cancel     context.CancelFunc
	done       chan struct{}
}

func writeDesktopFile(t *testing.T, root, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(root, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(content), 0o644))
}

func startServer(t *testing.T) *serverFixture {
	t.Helper()

	root := t.TempDir()
	writeDesktopFile(t, root, "code.desktop",
		"[Desktop Entry]\nName=Visual Studio Code\nExec=/usr/bin/code\nActions=new-window;\n\n[Desktop Action new-window]\nName=New Window\nExec=/usr/bin/code --new-window\n")
	writeDesktopFile(t, root, "firefox.desktop",
		"[Desktop Entry]\nName=Firefox\nExec=/usr/bin/firefox\n")

	f := &serverFixture{
		socketPath: testSocketPath(t),
		root:       root,
		usage:      usage.Load(filepath.Join(t.TempDir(), usage.FileName)),
		executor:   &fakeExecutor{},
		done:       make(chan struct{}),
	}

	registry := index.NewRegistry(filepath.Join(t.TempDir(), "parse-cache.v1"))
	srv, err := NewServer(f.socketPath, registry, f.usage, f.executor)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	go func() {
		_ = srv.ListenAndServe(ctx)
		close(f.done)
	}()

	// Wait for the socket to come up.
	require.Eventually(t, func() bool {
		conn, err := net.Dial("unix", f.socketPath)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	}, 2*time.Second, 10*time.Millisecond)

	t.Cleanup(func() {
		cancel()
		select {
		case <-f.done:
		case <-time.After(3 * time.Second):
			t.Error("server did not stop")
		}
	})

	return f
}

// roundTrip sends request lines on one connection and decodes one response
// per request.
func roundTrip(t *testing.T, socketPath string, reqs ...Request) []Response {
	t.Helper()
	conn, err := net.Dial("unix", socketPath)
	require.NoError(t, err)
	defer conn.Close()

	reader := bufio.NewScanner(conn)
	var out []Response
	for _, req := range reqs {
		line, err := json.Marshal(req)
		require.NoError(t, err)
		line = append(line, '\n')
		_, err = conn.Write(line)
		require.NoError(t, err)

		require.True(t, reader.Scan(), "expected a response line")
		var resp Response
		require.NoError(t, json.Unmarshal(reader.Bytes(), &resp))
		out = append(out, resp)
	}
	return out
}

func TestServer_StatusEmpty(t *testing.T) {
	f := startServer(t)
	resps := roundTrip(t, f.socketPath, Request{Cmd: CmdStatus})
	require.Len(t, resps, 1)
	assert.Equal(t, TypeStatus, resps[0].Type)
	require.NotNil(t, resps[0].HasIndexCount)
	assert.Equal(t, 0, *resps[0].HasIndexCount)
}

func TestServer_WarmupThenStatus(t *testing.T) {
	f := startServer(t)
	resps := roundTrip(t, f.socketPath,
		Request{Cmd: CmdWarmup, Roots: []string{f.root}},
		Request{Cmd: CmdStatus},
	)
	assert.Equal(t, TypeOK, resps[0].Type)
	require.NotNil(t, resps[1].HasIndexCount)
	assert.Equal(t, 1, *resps[1].HasIndexCount)
}

func TestServer_SearchReturnsScoredEntries(t *testing.T) {
	f := startServer(t)
	resps := roundTrip(t, f.socketPath,
		Request{Cmd: CmdSearch, Roots: []string{f.root}, Query: "code"})
	require.Len(t, resps, 1)
	require.Equal(t, TypeEntries, resps[0].Type)
	require.Len(t, resps[0].Entries, 1)

	e := resps[0].Entries[0]
	assert.Equal(t, "code", e.ID)
	assert.Equal(t, "Visual Studio Code", e.Name)
	require.NotNil(t, e.Score, "search responses carry a score")
	assert.Greater(t, *e.Score, 0.0)
}

func TestServer_TypeaheadRefinementSameConnection(t *testing.T) {
	f := startServer(t)
	resps := roundTrip(t, f.socketPath,
		Request{Cmd: CmdSearch, Roots: []string{f.root}, Query: "f"},
		Request{Cmd: CmdSearch, Roots: []string{f.root}, Query: "fire"},
		Request{Cmd: CmdSearch, Roots: []string{f.root}, Query: "firefox"},
	)
	require.Len(t, resps, 3)
	for _, r := range resps {
		assert.Equal(t, TypeEntries, r.Type)
	}
	require.Len(t, resps[2].Entries, 1)
	assert.Equal(t, "firefox", resps[2].Entries[0].ID)
}

func TestServer_ListSortedByName(t *testing.T) {
	f := startServer(t)
	resps := roundTrip(t, f.socketPath, Request{Cmd: CmdList, Roots: []string{f.root}})
	require.Equal(t, TypeEntries, resps[0].Type)
	require.Len(t, resps[0].Entries, 2)
	assert.Equal(t, "firefox", resps[0].Entries[0].ID)
	assert.Equal(t, "code", resps[0].Entries[1].ID)
	assert.Nil(t, resps[0].Entries[0].Score, "list responses carry no score")
}

func TestServer_LaunchRecordsUsage(t *testing.T) {
	f := startServer(t)
	resps := roundTrip(t, f.socketPath,
		Request{Cmd: CmdLaunch, Roots: []string{f.root}, DesktopID: "code"})
	assert.Equal(t, TypeOK, resps[0].Type)
	assert.Equal(t, []string{"code/"}, f.executor.launched)

	rec := f.usage.Get("code")
	assert.Equal(t, uint64(1), rec.Count)
	assert.NotZero(t, rec.LastLaunchNS)

	// Scenario: the launch is reflected in a later empty recency search.
	resps = roundTrip(t, f.socketPath,
		Request{Cmd: CmdSearch, Roots: []string{f.root}, Query: "", Limit: intPtr(1)})
	require.Equal(t, TypeEntries, resps[0].Type)
	require.Len(t, resps[0].Entries, 1)
	assert.Equal(t, "code", resps[0].Entries[0].ID)
}

func TestServer_LaunchWithAction(t *testing.T) {
	f := startServer(t)
	action := "new-window"
	resps := roundTrip(t, f.socketPath,
		Request{Cmd: CmdLaunch, Roots: []string{f.root}, DesktopID: "code.desktop", Action: &action})
	assert.Equal(t, TypeOK, resps[0].Type)
	assert.Equal(t, []string{"code/new-window"}, f.executor.launched)
}

func TestServer_LaunchUnknownID(t *testing.T) {
	f := startServer(t)
	resps := roundTrip(t, f.socketPath,
		Request{Cmd: CmdLaunch, Roots: []string{f.root}, DesktopID: "nope"})
	assert.Equal(t, TypeError, resps[0].Type)
	assert.Equal(t, string(ierr.KindNotFound), resps[0].Kind)
}

func TestServer_LaunchFailureDoesNotRecordUsage(t *testing.T) {
	f := startServer(t)
	f.executor.fail = true
	resps := roundTrip(t, f.socketPath,
		Request{Cmd: CmdLaunch, Roots: []string{f.root}, DesktopID: "code"})
	assert.Equal(t, TypeError, resps[0].Type)
	assert.Zero(t, f.usage.Get("code").Count)
}

func TestServer_ProtocolErrorKeepsConnectionUsable(t *testing.T) {
	f := startServer(t)
	conn, err := net.Dial("unix", f.socketPath)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("this is not json\n"))
	require.NoError(t, err)

	reader := bufio.NewScanner(conn)
	require.True(t, reader.Scan())
	var resp Response
	require.NoError(t, json.Unmarshal(reader.Bytes(), &resp))
	assert.Equal(t, TypeError, resp.Type)
	assert.Equal(t, string(ierr.KindProtocol), resp.Kind)

	// The same connection still serves valid requests.
	line, _ := json.Marshal(Request{Cmd: CmdStatus})
	_, err = conn.Write(append(line, '\n'))
	require.NoError(t, err)
	require.True(t, reader.Scan())
	require.NoError(t, json.Unmarshal(reader.Bytes(), &resp))
	assert.Equal(t, TypeStatus, resp.Type)
}

func TestServer_UnknownCmd(t *testing.T) {
	f := startServer(t)
	resps := roundTrip(t, f.socketPath, Request{Cmd: "frobnicate"})
	assert.Equal(t, TypeError, resps[0].Type)
	assert.Equal(t, string(ierr.KindProtocol), resps[0].Kind)
}

func TestServer_ShutdownRespondsBeforeClosing(t *testing.T) {
	f := startServer(t)
	resps := roundTrip(t, f.socketPath, Request{Cmd: CmdShutdown})
	assert.Equal(t, TypeOK, resps[0].Type)

	select {
	case <-f.done:
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop after shutdown request")
	}

	_, err := net.Dial("unix", f.socketPath)
	assert.Error(t, err, "socket is gone after shutdown")
}

func TestServer_SecondInstanceFailsAlreadyRunning(t *testing.T) {
	f := startServer(t)

	registry := index.NewRegistry(filepath.Join(t.TempDir(), "parse-cache.v1"))
	second, err := NewServer(f.socketPath, registry, f.usage, nil)
	require.NoError(t, err)

	err = second.ListenAndServe(context.Background())
	require.Error(t, err)
	assert.Equal(t, ierr.KindAlreadyRunning, ierr.KindOf(err))
}

func TestServer_StaleSocketReplaced(t *testing.T) {
	path := testSocketPath(t)

	// A dead socket file with no listener behind it.
	l, err := net.Listen("unix", path)
	require.NoError(t, err)
	_ = l.Close()
	// Listener close unlinks; recreate the stale file.
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	registry := index.NewRegistry(filepath.Join(t.TempDir(), "parse-cache.v1"))
	usageStore := usage.Load(filepath.Join(t.TempDir(), usage.FileName))
	srv, err := NewServer(path, registry, usageStore, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(ctx) }()

	require.Eventually(t, func() bool {
		conn, err := net.Dial("unix", path)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestServer_SocketPermissions(t *testing.T) {
	f := startServer(t)
	info, err := os.Stat(f.socketPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func intPtr(v int) *int { return &v }
