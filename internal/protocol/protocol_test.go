package protocol

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Huddle/internal/app/orch"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

func TestErrorResponseCarriesOkFalse(t *testing.T) {
	m := NewErrorResponse(7, fmt.Errorf("join: %w", core.ErrRoomNotFound))
	b, err := json.Marshal(m)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(b, &raw))
	assert.Equal(t, false, raw["ok"])
	assert.Equal(t, true, raw["response"])
	assert.Equal(t, "RoomNotFound", raw["errorCode"])

	back, err := Decode(b)
	require.NoError(t, err)
	var pe *Error
	require.ErrorAs(t, back.Err(), &pe)
	assert.Equal(t, CodeRoomNotFound, pe.Code)
	assert.Equal(t, CodeRoomNotFound, CodeOf(back.Err()))
}

func TestNilDataIsNull(t *testing.T) {
	m, err := NewResponse(3, nil)
	require.NoError(t, err)
	b, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"response":true,"id":3,"ok":true,"data":null}`, string(b))
}

func TestDecodeRejects(t *testing.T) {
	for _, raw := range []string{
		`not json`,
		`{"id":1,"method":"join"}`,
		`{"request":true,"response":true,"id":1,"method":"join"}`,
		`{"request":true,"id":1}`,
	} {
		_, err := Decode([]byte(raw))
		assert.ErrorIs(t, err, ErrBadFrame, raw)
	}
}

func TestCodeOf(t *testing.T) {
	cases := map[error]Code{
		core.ErrRoomExists:                             CodeAlreadyExists,
		core.ErrNotReady:                               CodeNotReady,
		fmt.Errorf("x: %w", core.ErrTransportNotFound): CodeTransportNotFound,
		orch.ErrNotInRoom:                              CodeNotInRoom,
		orch.ErrAlreadyJoined:                          CodeAlreadyJoined,
		domain.ErrNameTooLong:                          CodeBadRequest,
		core.ErrEngine:                                 CodeInternal,
	}
	for err, want := range cases {
		assert.Equal(t, want, CodeOf(err), err.Error())
	}
}

func TestTransportRole(t *testing.T) {
	assert.Equal(t, core.RoleSend, CreateTransportRequest{Producing: true}.Role())
	assert.Equal(t, core.RoleReceive, CreateTransportRequest{Consuming: true}.Role())
	assert.Equal(t, core.RoleReceive, CreateTransportRequest{RtpCapabilities: json.RawMessage(`{}`)}.Role())
	assert.Equal(t, core.RoleSend, CreateTransportRequest{}.Role())
}

func TestProduceMediaKind(t *testing.T) {
	k, err := ProduceRequest{Kind: "video", AppData: ProduceAppData{MediaTag: "screen"}}.MediaKind()
	require.NoError(t, err)
	assert.Equal(t, domain.KindScreen, k)

	k, err = ProduceRequest{Kind: "audio"}.MediaKind()
	require.NoError(t, err)
	assert.Equal(t, domain.KindAudio, k)

	_, err = ProduceRequest{Kind: "data"}.MediaKind()
	assert.Equal(t, CodeBadRequest, CodeOf(err))
}
