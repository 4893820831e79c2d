package ipc

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xdgtools/desktop-indexer/internal/desktop"
	ierr "github.com/xdgtools/desktop-indexer/internal/errors"
)

func TestDecodeRequest_Valid(t *testing.T) {
	req, err := DecodeRequest([]byte(`{"cmd":"search","roots":["/a"],"query":"fox","limit":5}`))
	require.NoError(t, err)
	assert.Equal(t, CmdSearch, req.Cmd)
	assert.Equal(t, []string{"/a"}, req.Roots)
	assert.Equal(t, 5, *req.Limit)
}

func TestDecodeRequest_MalformedJSON(t *testing.T) {
	_, err := DecodeRequest([]byte(`{"cmd":`))
	require.Error(t, err)
	assert.Equal(t, ierr.KindProtocol, ierr.KindOf(err))
}

func TestDecodeRequest_TypeMismatchedField(t *testing.T) {
	_, err := DecodeRequest([]byte(`{"cmd":"search","limit":"many"}`))
	require.Error(t, err)
	assert.Equal(t, ierr.KindProtocol, ierr.KindOf(err))
}

func TestDecodeRequest_MissingCmd(t *testing.T) {
	_, err := DecodeRequest([]byte(`{"roots":["/a"]}`))
	require.Error(t, err)
	assert.Equal(t, ierr.KindProtocol, ierr.KindOf(err))
}

func TestEffectiveLimit(t *testing.T) {
	req := &Request{}
	assert.Equal(t, DefaultLimit, req.EffectiveLimit())

	five := 5
	req.Limit = &five
	assert.Equal(t, 5, req.EffectiveLimit())

	huge := 5000
	req.Limit = &huge
	assert.Equal(t, MaxLimit, req.EffectiveLimit())

	neg := -1
	req.Limit = &neg
	assert.Equal(t, DefaultLimit, req.EffectiveLimit())
}

func TestWireEntry_RoundTripPreservesFields(t *testing.T) {
	e := &desktop.Entry{
		ID:          "code",
		Name:        "Visual Studio Code",
		GenericName: "Editor",
		Comment:     "Code Editing.",
		Exec:        "/usr/bin/code %F",
		Icon:        "vscode",
		Categories:  []string{"Development"},
		Keywords:    []string{"editor", "ide"},
		MimeTypes:   []string{"text/plain"},
		NoDisplay:   false,
		Terminal:    false,
		Actions:     []desktop.Action{{ID: "new-window", Name: "New Window", Exec: "/usr/bin/code -n", Icon: "vscode"}},
	}

	wire := WireEntry(e)
	data, err := json.Marshal(wire)
	require.NoError(t, err)

	var decoded Entry
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, wire, decoded)
	assert.Nil(t, decoded.Score)
}

func TestWireEntry_EmptyListsSerializeAsArrays(t *testing.T) {
	wire := WireEntry(&desktop.Entry{ID: "x", Name: "X"})
	data, err := json.Marshal(wire)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"categories":[]`)
	assert.Contains(t, string(data), `"keywords":[]`)
	assert.Contains(t, string(data), `"actions":[]`)
}

func TestResponse_EntriesNeverNull(t *testing.T) {
	data, err := json.Marshal(Entries(nil))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"entries":[]`)
}

func TestResponse_StatusSerializesZeroCount(t *testing.T) {
	data, err := json.Marshal(Status(0))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"has_index_count":0`)
}

func TestResponse_ErrorRoundTrip(t *testing.T) {
	resp := Error(ierr.NotFound("unknown desktop-id: x"))
	data, err := json.Marshal(resp)
	require.NoError(t, err)

	var decoded Response
	require.NoError(t, json.Unmarshal(data, &decoded))
	gotErr := decoded.Err()
	require.Error(t, gotErr)
	assert.Equal(t, ierr.KindNotFound, ierr.KindOf(gotErr))
}
