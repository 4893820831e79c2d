// Package ipc implements the daemon's line-framed JSON protocol over a Unix
// domain socket: one request object per line, one response line per request.
package ipc

import (
	"encoding/json"

	"github.com/xdgtools/desktop-indexer/internal/desktop"
	ierr "github.com/xdgtools/desktop-indexer/internal/errors"
	"github.com/xdgtools/desktop-indexer/internal/search"
)

// Commands.
const (
	CmdStatus   = "status"
	CmdWarmup   = "warmup"
	CmdSearch   = "search"
	CmdList     = "list"
	CmdLaunch   = "launch"
	CmdShutdown = "shutdown"
)

// Response types.
const (
	TypeOK      = "ok"
	TypeStatus  = "status"
	TypeEntries = "entries"
	TypeError   = "error"
)

// Search limit bounds.
const (
	DefaultLimit = 20
	MaxLimit     = 1000
)

// Request is one decoded request line.
type Request struct {
	Cmd            string   `json:"cmd"`
	Roots          []string `json:"roots,omitempty"`
	Query          string   `json:"query,omitempty"`
	Limit          *int     `json:"limit,omitempty"`
	EmptyMode      string   `json:"empty_mode,omitempty"`
	RespectTryExec bool     `json:"respect_try_exec,omitempty"`
	DesktopID      string   `json:"desktop_id,omitempty"`
	Action         *string  `json:"action,omitempty"`
}

// EffectiveLimit applies the default and the cap to the requested limit.
func (r *Request) EffectiveLimit() int {
	if r.Limit == nil || *r.Limit <= 0 {
		return DefaultLimit
	}
	if *r.Limit > MaxLimit {
		return MaxLimit
	}
	return *r.Limit
}

// Action is the wire shape of a desktop action.
type Action struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Exec string `json:"exec"`
	Icon string `json:"icon"`
}

// Entry is the wire shape of a desktop entry, bit-stable for client
// consumption. Score is present only on search responses.
type Entry struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	GenericName string   `json:"generic_name"`
	Comment     string   `json:"comment"`
	Exec        string   `json:"exec"`
	Icon        string   `json:"icon"`
	Categories  []string `json:"categories"`
	Keywords    []string `json:"keywords"`
	MimeTypes   []string `json:"mime_types"`
	NoDisplay   bool     `json:"no_display"`
	Terminal    bool     `json:"terminal"`
	Actions     []Action `json:"actions"`
	Score       *float64 `json:"score,omitempty"`
}

// WireEntry projects an internal entry onto the wire shape.
func WireEntry(e *desktop.Entry) Entry {
	actions := make([]Action, 0, len(e.Actions))
	for _, a := range e.Actions {
		actions = append(actions, Action{ID: a.ID, Name: a.Name, Exec: a.Exec, Icon: a.Icon})
	}
	return Entry{
		ID:          e.ID,
		Name:        e.Name,
		GenericName: e.GenericName,
		Comment:     e.Comment,
		Exec:        e.Exec,
		Icon:        e.Icon,
		Categories:  emptyIfNil(e.Categories),
		Keywords:    emptyIfNil(e.Keywords),
		MimeTypes:   emptyIfNil(e.MimeTypes),
		NoDisplay:   e.NoDisplay,
		Terminal:    e.Terminal,
		Actions:     actions,
	}
}

// WireScored projects a search result, attaching its score.
func WireScored(s search.Scored) Entry {
	e := WireEntry(s.Entry)
	score := s.Score
	e.Score = &score
	return e
}

// WireEntries projects a plain entry list (no scores).
func WireEntries(entries []*desktop.Entry) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		out = append(out, WireEntry(e))
	}
	return out
}

// WireScoredEntries projects ranked search results.
func WireScoredEntries(scored []search.Scored) []Entry {
	out := make([]Entry, 0, len(scored))
	for _, s := range scored {
		out = append(out, WireScored(s))
	}
	return out
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Response is one encoded response line. Exactly one of the typed payloads
// is populated, selected by Type.
type Response struct {
	Type          string  `json:"type"`
	Kind          string  `json:"kind,omitempty"`
	Message       string  `json:"message,omitempty"`
	HasIndexCount *int    `json:"has_index_count,omitempty"`
	Entries       []Entry `json:"entries,omitempty"`
}

// OK builds an ok response.
func OK() Response {
	return Response{Type: TypeOK}
}

// Status builds a status response.
func Status(indexCount int) Response {
	return Response{Type: TypeStatus, HasIndexCount: &indexCount}
}

// Entries builds an entries response. The entries array is always present,
// even when empty.
func Entries(entries []Entry) Response {
	if entries == nil {
		entries = []Entry{}
	}
	return Response{Type: TypeEntries, Entries: entries}
}

// Error builds an error response carrying the error's stable kind.
func Error(err error) Response {
	return Response{
		Type:    TypeError,
		Kind:    string(ierr.KindOf(err)),
		Message: err.Error(),
	}
}

// MarshalJSON keeps the entries array stable: an entries response never
// serializes a null array.
func (r Response) MarshalJSON() ([]byte, error) {
	type alias Response
	if r.Type != TypeEntries {
		return json.Marshal(alias(r))
	}
	entries := r.Entries
	if entries == nil {
		entries = []Entry{}
	}
	// The outer field shadows the embedded omitempty one, so an empty array
	// is still written.
	return json.Marshal(struct {
		alias
		Entries []Entry `json:"entries"`
	}{alias: alias(r), Entries: entries})
}

// Err converts an error response back into a typed error; nil for other
// response types.
func (r *Response) Err() error {
	if r.Type != TypeError {
		return nil
	}
	return ierr.New(ierr.Kind(r.Kind), r.Message)
}

// DecodeRequest parses one request line, classifying malformed JSON or
// type-mismatched fields as protocol errors.
func DecodeRequest(line []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return nil, ierr.Protocol("invalid request: %v", err)
	}
	if req.Cmd == "" {
		return nil, ierr.Protocol("missing cmd")
	}
	return &req, nil
}
