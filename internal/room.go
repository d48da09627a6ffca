package internal

import (
	"math/rand"
	"sync"
	"time"
)

// 系統設計問題：
//   如何讓會話轉換（加入、離開、開賽、重賽）與每 tick 的模擬推進
//   安全地共用同一份房間狀態？
//
// 核心挑戰：
//   1. 互斥：訊息處理與 tick 推進對同一房間的讀寫必須序列化
//   2. 生命週期：雙槽皆空的房間必須在造成它的同一臨界區內被判定可回收
//   3. 廣播一致性：推送給雙方的房間資訊必須出自同一個鎖內視圖
//
// 設計方案：
//   ✅ 每房間一把 Mutex - 方法內部取鎖，呼叫端無須關心
//   ✅ 固定雙槽 - near / far 兩個角色槽，不是開放式玩家集合
//   ✅ Send 非阻塞 - 在鎖內推送也不會被慢客戶端拖住

// Conn 抽象一條已建立的邏輯連線。
//
// 核心只需要：識別連線、向它推送訊息。斷線偵測由傳輸層負責，透過
// Manager.Disconnect 回呼進來；Send 對已斷開的端點是無害的 no-op。
type Conn interface {
	ID() string
	Send(v any)
}

// Room 一場對戰的配對與模擬單位。
//
// 不變量：
//   - 每個角色槽至多被一條連線佔據，一條連線至多屬於一個房間
//   - 雙槽皆空的房間不被保留（由 Manager 在同一臨界區內刪除）
//   - 模擬狀態只由 Step 與會話轉換的重置路徑修改
type Room struct {
	Code string // 4 字元房間代碼（大寫，排除易混淆字元）

	mu      sync.Mutex
	slots   map[Role]Conn
	chars   map[Role]int     // 角色外觀索引 [0,2]，僅作裝飾、回聲給對手
	inputs  map[Role]float64 // 最後收到的拍面目標位置
	started bool
	sim     SimState
	rng     *rand.Rand
}

// NewRoom 建立新房間。
func NewRoom(code string) *Room {
	return &Room{
		Code:   code,
		slots:  make(map[Role]Conn),
		chars:  make(map[Role]int),
		inputs: map[Role]float64{RoleNear: 0.5, RoleFar: 0.5},
		sim:    NewSimState(),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Seat 把連線安置到第一個空槽（near 優先），並記錄外觀選擇。
// 雙槽皆滿時回傳 false。
func (r *Room) Seat(conn Conn, char int) (Role, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var role Role
	switch {
	case r.slots[RoleNear] == nil:
		role = RoleNear
	case r.slots[RoleFar] == nil:
		role = RoleFar
	default:
		return "", false
	}

	r.slots[role] = conn
	r.chars[role] = clampChar(char)
	r.inputs[role] = 0.5
	return role, true
}

// Vacate 把指定連線移出其角色槽。
// 回傳留下的在座者（可能為 nil）與房間是否因此變空。
func (r *Room) Vacate(connID string) (remaining Conn, empty bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for role, conn := range r.slots {
		if conn != nil && conn.ID() == connID {
			delete(r.slots, role)
			break
		}
	}

	// 明確檢查「雙槽皆空」，與槽位變更同屬一個原子區段
	empty = r.slots[RoleNear] == nil && r.slots[RoleFar] == nil
	if !empty {
		if r.slots[RoleNear] != nil {
			remaining = r.slots[RoleNear]
		} else {
			remaining = r.slots[RoleFar]
		}
	}
	return remaining, empty
}

// Info 組出指定角色視角的房間資訊。
func (r *Room) Info(role Role) RoomMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.infoLocked(role)
}

// infoLocked 需持有鎖。
func (r *Room) infoLocked(role Role) RoomMessage {
	other := role.Opponent()
	msg := RoomMessage{
		T:            "room",
		Room:         r.Code,
		Role:         role,
		OtherPresent: r.slots[other] != nil,
		CanStart:     r.slots[RoleNear] != nil && r.slots[RoleFar] != nil && !r.started,
	}
	if r.slots[other] != nil {
		c := r.chars[other]
		msg.OtherChar = &c
	}
	return msg
}

// BroadcastInfo 向雙方在座者各自推送自己視角的房間資訊。
func (r *Room) BroadcastInfo() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, role := range []Role{RoleNear, RoleFar} {
		if conn := r.slots[role]; conn != nil {
			conn.Send(r.infoLocked(role))
		}
	}
}

// ExchangeChars 在新角色入座後，讓雙方互相得知對方的外觀選擇。
func (r *Room) ExchangeChars(joined Role) {
	r.mu.Lock()
	defer r.mu.Unlock()

	other := joined.Opponent()
	joinedConn, otherConn := r.slots[joined], r.slots[other]
	if joinedConn == nil || otherConn == nil {
		return
	}
	joinedConn.Send(NewOtherChar(r.chars[other]))
	otherConn.Send(NewOtherChar(r.chars[joined]))
}

// SetCharacter 更新角色外觀，回傳夾取後的值與需要被通知的對手連線。
func (r *Room) SetCharacter(role Role, char int) (int, Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := clampChar(char)
	r.chars[role] = c
	return c, r.slots[role.Opponent()]
}

// SetInput 記錄該角色最後收到的拍面目標位置。夾取延後到 tick 時。
func (r *Room) SetInput(role Role, pos float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inputs[role] = pos
}

// ArmSpecial 嘗試為該角色裝填必殺。
func (r *Room) ArmSpecial(role Role) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sim.ArmSpecial(role)
}

// StartMatch 開賽（start 與 rematch 共用）：重置比賽累計、far 先發、
// 立即發球。對手不在座時回傳 false，不改動任何狀態。
func (r *Room) StartMatch() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.slots[RoleNear] == nil || r.slots[RoleFar] == nil {
		return false
	}
	r.started = true
	r.sim.ResetMatch()
	r.sim.ResetRound(RoleFar)
	r.sim.Serve(r.rng)
	return true
}

// Broadcast 向雙方在座者推送同一則訊息。
func (r *Room) Broadcast(v any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, role := range []Role{RoleNear, RoleFar} {
		if conn := r.slots[role]; conn != nil {
			conn.Send(v)
		}
	}
}

// Tick 推進一個模擬步並組出要推送的狀態快照與接收者。
// 尚未開賽的房間不推進物理，但仍回報快照（大廳畫面同步）。
func (r *Room) Tick(o Orientation) (StateMessage, []Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		r.sim.Step(r.inputs[RoleNear], r.inputs[RoleFar], r.rng)
	}

	conns := make([]Conn, 0, 2)
	for _, role := range []Role{RoleNear, RoleFar} {
		if conn := r.slots[role]; conn != nil {
			conns = append(conns, conn)
		}
	}
	return NewState(r.sim.Snapshot(o)), conns
}

// Started 是否已開賽。
func (r *Room) Started() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started
}

// Sim 複製當前模擬狀態（測試與監控用）。
func (r *Room) Sim() SimState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sim
}

// clampChar 夾取外觀索引到 [0,2]。
func clampChar(c int) int {
	if c < 0 {
		return 0
	}
	if c > 2 {
		return 2
	}
	return c
}
