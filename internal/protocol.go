package internal

import (
	"encoding/json"
	"fmt"
)

// 線上協議：雙向皆為帶標籤的 JSON 物件，標籤欄位為 "t"。
// 客戶端 → 服務器：create / join / leave / char / start / rematch / input / special
// 服務器 → 客戶端：info / room / other_char / start_ok / state

// 客戶端訊息標籤
const (
	TagCreate  = "create"
	TagJoin    = "join"
	TagLeave   = "leave"
	TagChar    = "char"
	TagStart   = "start"
	TagRematch = "rematch"
	TagInput   = "input"
	TagSpecial = "special"
)

// ClientMessage 客戶端送來的單一訊息。未用到的欄位保持零值。
type ClientMessage struct {
	T    string  `json:"t"`
	Room string  `json:"room,omitempty"` // join：房間代碼
	C    int     `json:"c,omitempty"`    // create / join / char：角色外觀索引
	Pos  float64 `json:"pos"`            // input：正規化的拍面目標位置
}

// DecodeClientMessage 解碼一則客戶端訊息。解碼失敗或缺少標籤視為
// 格式錯誤，由呼叫端靜默忽略（不得影響房間狀態）。
func DecodeClientMessage(data []byte) (*ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("解碼客戶端訊息失敗: %w", err)
	}
	if msg.T == "" {
		return nil, fmt.Errorf("客戶端訊息缺少標籤")
	}
	return &msg, nil
}

// InfoMessage 連線確認或使用者可讀的失敗通知。
type InfoMessage struct {
	T   string `json:"t"`
	Msg string `json:"msg"`
}

// NewInfo 建立 info 訊息。
func NewInfo(msg string) InfoMessage {
	return InfoMessage{T: "info", Msg: msg}
}

// RoomMessage 房間資訊：create / join / leave 後推送給受影響的在座者。
type RoomMessage struct {
	T            string `json:"t"`
	Room         string `json:"room"`
	Role         Role   `json:"role"`
	OtherPresent bool   `json:"otherPresent"`
	CanStart     bool   `json:"canStart"`
	OtherChar    *int   `json:"otherChar,omitempty"` // 對手在座時才帶
}

// OtherCharMessage 對手的角色外觀變更或首次得知。
type OtherCharMessage struct {
	T string `json:"t"`
	C int    `json:"c"`
}

// NewOtherChar 建立 other_char 訊息。
func NewOtherChar(c int) OtherCharMessage {
	return OtherCharMessage{T: "other_char", C: c}
}

// StartOKMessage 比賽（重新）開始的確認。
type StartOKMessage struct {
	T string `json:"t"`
}

// NewStartOK 建立 start_ok 訊息。
func NewStartOK() StartOKMessage {
	return StartOKMessage{T: "start_ok"}
}

// Snapshot 每 tick 推送的完整模擬快照。
type Snapshot struct {
	Mode        Mode    `json:"mode"`
	ScoreNear   int     `json:"scoreNear"`
	ScoreFar    int     `json:"scoreFar"`
	PaddleNear  float64 `json:"paddleNear"`
	PaddleFar   float64 `json:"paddleFar"`
	BallX       float64 `json:"ballX"`
	BallY       float64 `json:"ballY"`
	BallR       float64 `json:"ballR"`
	Spin        float64 `json:"spin"`
	GaugeNear   float64 `json:"gaugeNear"`
	GaugeFar    float64 `json:"gaugeFar"`
	SpecialNear bool    `json:"specialNear"`
	SpecialFar  bool    `json:"specialFar"`
	Winner      Role    `json:"winner,omitempty"`
}

// StateMessage 包裝快照的 state 訊息。
type StateMessage struct {
	T string   `json:"t"`
	S Snapshot `json:"s"`
}

// NewState 建立 state 訊息。
func NewState(s Snapshot) StateMessage {
	return StateMessage{T: "state", S: s}
}
