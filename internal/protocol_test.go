package internal_test

import (
	"encoding/json"
	"testing"

	"github.com/fujikiadace-cloud/fujikiponggame/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDecodeClientMessage 解碼：合法訊息、格式錯誤、缺少標籤
func TestDecodeClientMessage(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		wantErr  bool
		validate func(t *testing.T, msg *internal.ClientMessage)
	}{
		{
			name: "join with room and character",
			data: `{"t":"join","room":"abcd","c":2}`,
			validate: func(t *testing.T, msg *internal.ClientMessage) {
				assert.Equal(t, internal.TagJoin, msg.T)
				assert.Equal(t, "abcd", msg.Room)
				assert.Equal(t, 2, msg.C)
			},
		},
		{
			name: "input keeps raw position",
			data: `{"t":"input","pos":-5}`,
			validate: func(t *testing.T, msg *internal.ClientMessage) {
				assert.Equal(t, internal.TagInput, msg.T)
				assert.Equal(t, -5.0, msg.Pos, "夾取延後到 tick，解碼保持原值")
			},
		},
		{
			name: "bare tag",
			data: `{"t":"special"}`,
			validate: func(t *testing.T, msg *internal.ClientMessage) {
				assert.Equal(t, internal.TagSpecial, msg.T)
			},
		},
		{name: "not json", data: `not json`, wantErr: true},
		{name: "missing tag", data: `{"pos":0.5}`, wantErr: true},
		{name: "wrong field type", data: `{"t":"join","room":42}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := internal.DecodeClientMessage([]byte(tt.data))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.validate(t, msg)
		})
	}
}

// TestRoomMessage_OtherCharOmittedWhenAbsent 對手缺席時不帶 otherChar 欄位
func TestRoomMessage_OtherCharOmittedWhenAbsent(t *testing.T) {
	msg := internal.RoomMessage{T: "room", Room: "ABCD", Role: internal.RoleNear}

	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.NotContains(t, raw, "otherChar")
	assert.Equal(t, false, raw["otherPresent"], "在座旗標即使為 false 也要送出")
	assert.Equal(t, false, raw["canStart"])
}

// TestStateMessage_WinnerOmittedWhileUnset 尚無勝者時快照不帶 winner 欄位
func TestStateMessage_WinnerOmittedWhileUnset(t *testing.T) {
	s := internal.NewSimState()

	data, err := json.Marshal(internal.NewState(s.Snapshot(internal.OrientationHorizontal)))
	require.NoError(t, err)

	var raw struct {
		T string         `json:"t"`
		S map[string]any `json:"s"`
	}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "state", raw.T)
	assert.NotContains(t, raw.S, "winner")
	assert.Equal(t, "ready", raw.S["mode"])

	s.Winner = internal.RoleFar
	data, err = json.Marshal(internal.NewState(s.Snapshot(internal.OrientationHorizontal)))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "far", raw.S["winner"])
}
