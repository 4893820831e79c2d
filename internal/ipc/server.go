package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/xdgtools/desktop-indexer/internal/desktop"
	ierr "github.com/xdgtools/desktop-indexer/internal/errors"
	"github.com/xdgtools/desktop-indexer/internal/index"
	"github.com/xdgtools/desktop-indexer/internal/launch"
	"github.com/xdgtools/desktop-indexer/internal/search"
	"github.com/xdgtools/desktop-indexer/internal/usage"
)

const (
	// ProbeTimeout bounds the connect used to detect a live peer.
	ProbeTimeout = 200 * time.Millisecond
	// ShutdownGrace bounds the wait for outstanding handlers on shutdown.
	ShutdownGrace = 2 * time.Second

	// typeaheadStates bounds the number of per-index refinement states kept.
	typeaheadStates = 8
)

// typeaheadState remembers the previous query's candidate set for one index
// so a refined query filters candidates instead of rescanning the index.
type typeaheadState struct {
	idx        *index.Index
	queryKey   string
	tokens     []string
	candidates []int
}

// Server accepts daemon connections and dispatches requests against the
// index registry and usage store. Handlers are the only mutators of both.
type Server struct {
	socketPath string
	registry   *index.Registry
	usage      *usage.Store
	executor   launch.Executor

	states   *lru.Cache[string, *typeaheadState]
	statesMu sync.Mutex

	mu           sync.Mutex
	listener     net.Listener
	shuttingDown bool
	wg           sync.WaitGroup
}

// NewServer creates a server. The executor may be nil, in which case launch
// requests fail with an internal error (used in tests).
func NewServer(socketPath string, registry *index.Registry, usageStore *usage.Store, executor launch.Executor) (*Server, error) {
	states, err := lru.New[string, *typeaheadState](typeaheadStates)
	if err != nil {
		return nil, err
	}
	return &Server{
		socketPath: socketPath,
		registry:   registry,
		usage:      usageStore,
		executor:   executor,
		states:     states,
	}, nil
}

// ListenAndServe binds the socket and serves until ctx is cancelled or a
// shutdown request arrives. A live peer on the socket path yields
// AlreadyRunning; a stale socket file is unlinked and replaced.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if conn, err := net.DialTimeout("unix", s.socketPath, ProbeTimeout); err == nil {
		_ = conn.Close()
		return ierr.Newf(ierr.KindAlreadyRunning, "daemon already listening on %s", s.socketPath)
	}
	if _, err := os.Lstat(s.socketPath); err == nil {
		slog.Info("removing stale socket", slog.String("socket", s.socketPath))
		_ = os.Remove(s.socketPath)
	}

	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0o755); err != nil {
		return ierr.Wrap(ierr.KindIO, "create socket directory", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return ierr.Wrap(ierr.KindIO, "listen on "+s.socketPath, err)
	}
	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		_ = listener.Close()
		_ = os.Remove(s.socketPath)
		return ierr.Wrap(ierr.KindIO, "chmod socket", err)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	defer func() {
		_ = listener.Close()
		_ = os.Remove(s.socketPath)
	}()

	slog.Info("daemon listening", slog.String("socket", s.socketPath))

	go func() {
		<-ctx.Done()
		s.beginShutdown()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.isShuttingDown() {
				break
			}
			slog.Error("accept error", slog.String("error", err.Error()))
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	// Grace window for outstanding handlers.
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(ShutdownGrace):
		slog.Warn("shutdown grace elapsed with handlers outstanding")
	}

	return nil
}

// Close stops accepting connections.
func (s *Server) Close() {
	s.beginShutdown()
}

func (s *Server) beginShutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shuttingDown {
		return
	}
	s.shuttingDown = true
	if s.listener != nil {
		_ = s.listener.Close()
	}
}

func (s *Server) isShuttingDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shuttingDown
}

// handleConnection serves serial request/response pairs on one connection.
// A malformed line yields an error response and the connection stays usable.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	reader := bufio.NewScanner(conn)
	reader.Buffer(make([]byte, 64*1024), 1024*1024)
	encoder := json.NewEncoder(conn)

	for reader.Scan() {
		line := strings.TrimSpace(reader.Text())
		if line == "" {
			continue
		}

		resp, shutdown := s.handleLine(ctx, []byte(line))
		if err := encoder.Encode(resp); err != nil {
			return
		}
		if shutdown {
			s.beginShutdown()
			return
		}
	}
}

func (s *Server) handleLine(ctx context.Context, line []byte) (Response, bool) {
	req, err := DecodeRequest(line)
	if err != nil {
		return Error(err), false
	}

	switch req.Cmd {
	case CmdStatus:
		return Status(s.registry.Count()), false

	case CmdShutdown:
		slog.Info("shutdown requested")
		return OK(), true

	case CmdWarmup:
		if err := s.requireRoots(req); err != nil {
			return Error(err), false
		}
		key := index.NewKey(req.Roots, req.RespectTryExec)
		if err := s.registry.Warmup(ctx, key); err != nil {
			return Error(err), false
		}
		return OK(), false

	case CmdSearch:
		resp, err := s.handleSearch(ctx, req)
		if err != nil {
			return Error(err), false
		}
		return resp, false

	case CmdList:
		if err := s.requireRoots(req); err != nil {
			return Error(err), false
		}
		key := index.NewKey(req.Roots, req.RespectTryExec)
		idx, err := s.registry.GetOrBuild(ctx, key)
		if err != nil {
			return Error(err), false
		}
		return Entries(WireEntries(search.List(idx))), false

	case CmdLaunch:
		if err := s.handleLaunch(ctx, req); err != nil {
			return Error(err), false
		}
		return OK(), false

	default:
		return Error(ierr.Protocol("unknown cmd: %q", req.Cmd)), false
	}
}

func (s *Server) requireRoots(req *Request) error {
	if len(req.Roots) == 0 {
		return ierr.Protocol("roots is required for cmd %q", req.Cmd)
	}
	return nil
}

func (s *Server) handleSearch(ctx context.Context, req *Request) (Response, error) {
	if err := s.requireRoots(req); err != nil {
		return Response{}, err
	}
	emptyMode, err := search.ParseEmptyMode(req.EmptyMode)
	if err != nil {
		return Response{}, err
	}

	key := index.NewKey(req.Roots, req.RespectTryExec)
	idx, err := s.registry.GetOrBuild(ctx, key)
	if err != nil {
		return Response{}, err
	}

	opts := search.Options{
		Limit:     req.EffectiveLimit(),
		EmptyMode: emptyMode,
		Now:       time.Now(),
	}

	tokens := search.Tokenize(req.Query)
	if len(tokens) == 0 {
		s.dropState(key)
		scored := search.Search(idx, req.Query, s.usage.Snapshot(), opts)
		return Entries(WireScoredEntries(scored)), nil
	}

	candidates := search.Filter(idx, tokens, s.reusableCandidates(key, idx, tokens, req.Query))
	scored := search.Rank(idx, candidates, req.Query, tokens, s.usage.Snapshot(), opts)
	s.saveState(key, idx, tokens, req.Query, candidates)

	return Entries(WireScoredEntries(scored)), nil
}

func (s *Server) handleLaunch(ctx context.Context, req *Request) error {
	if err := s.requireRoots(req); err != nil {
		return err
	}
	if req.DesktopID == "" {
		return ierr.Protocol("desktop_id is required for cmd %q", req.Cmd)
	}
	if s.executor == nil {
		return ierr.New(ierr.KindInternal, "no executor configured")
	}

	key := index.NewKey(req.Roots, req.RespectTryExec)
	idx, err := s.registry.GetOrBuild(ctx, key)
	if err != nil {
		return err
	}

	id := strings.TrimSuffix(req.DesktopID, ".desktop")
	entry := findEntry(idx, id)
	if entry == nil {
		return ierr.NotFound("unknown desktop-id: %s", id)
	}

	action := ""
	if req.Action != nil {
		action = *req.Action
	}
	if action != "" {
		if _, ok := entry.FindAction(action); !ok {
			return ierr.NotFound("unknown action %q for id=%s", action, id)
		}
	}

	if err := s.executor.Launch(entry, action); err != nil {
		return err
	}

	// Usage feeds ranking for every later search, from any client.
	if err := s.usage.RecordLaunch(id, time.Now().UnixNano()); err != nil {
		slog.Warn("usage store save failed", slog.String("error", err.Error()))
	}
	return nil
}

// reusableCandidates returns the previous candidate set when the new query
// refines the previous one on the same published index: a typeahead prefix
// or a token superset. Matching is monotone, so filtering the previous
// candidates is equivalent to a full scan.
func (s *Server) reusableCandidates(key index.Key, idx *index.Index, tokens []string, query string) []int {
	s.statesMu.Lock()
	defer s.statesMu.Unlock()

	state, ok := s.states.Get(key.String())
	if !ok || state.idx != idx || len(state.tokens) == 0 {
		return nil
	}

	qkey := queryKey(query)
	if strings.HasPrefix(qkey, state.queryKey) && len(qkey) > len(state.queryKey) {
		return state.candidates
	}
	if tokensContainAll(tokens, state.tokens) {
		return state.candidates
	}
	return nil
}

func (s *Server) saveState(key index.Key, idx *index.Index, tokens []string, query string, candidates []int) {
	s.statesMu.Lock()
	defer s.statesMu.Unlock()
	s.states.Add(key.String(), &typeaheadState{
		idx:        idx,
		queryKey:   queryKey(query),
		tokens:     tokens,
		candidates: candidates,
	})
}

func (s *Server) dropState(key index.Key) {
	s.statesMu.Lock()
	defer s.statesMu.Unlock()
	s.states.Remove(key.String())
}

func findEntry(idx *index.Index, id string) *desktop.Entry {
	for _, e := range idx.Entries {
		if e.ID == id {
			return e
		}
	}
	return nil
}

func queryKey(query string) string {
	return strings.Join(search.Tokenize(query), " ")
}

func tokensContainAll(tokens, prev []string) bool {
	if len(prev) == 0 {
		return false
	}
	for _, p := range prev {
		found := false
		for _, t := range tokens {
			if t == p {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
