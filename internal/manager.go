package internal

import (
	"crypto/rand"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// 系統設計問題：
//   如何在單一進程內同時驅動「每 tick 的權威模擬」與「逐訊息的會話
//   轉換」，而不讓兩者在同一房間上交錯出競態？
//
// 核心挑戰：
//   1. 共享狀態：房間表與連線註冊表是唯一的可變共享資源
//   2. 排程模型：一個全域週期驅動器 + 每則入站訊息一個處理流程
//   3. 生命週期：最後一名在座者離開時立刻回收房間，tick 迴圈
//      因此不需要特判空房間，只需容忍房間在迭代中途消失
//
// 設計方案：
//   ✅ RWMutex 保護房間表與註冊表，每房間另有自己的鎖（順序固定：
//      Manager 鎖 → Room 鎖，避免死鎖）
//   ✅ tick 迴圈先在讀鎖下拍下房間切片，再逐一取房間鎖推進
//   ✅ 背景迴圈用 stopCh + WaitGroup 收斂，優雅關閉

// membership 連線當前的會話歸屬。
type membership struct {
	conn Conn
	room *Room
	role Role
}

// Manager 房間商店、連線註冊表、會話轉換與 tick 排程的持有者。
type Manager struct {
	mu          sync.RWMutex
	rooms       map[string]*Room       // code -> Room
	conns       map[string]*membership // connID -> 歸屬
	orientation Orientation
	logger      *slog.Logger
	stopCh      chan struct{}
	wg          sync.WaitGroup
}

// NewManager 建立管理器並啟動 30 Hz tick 迴圈。
func NewManager(logger *slog.Logger, orientation Orientation) *Manager {
	m := &Manager{
		rooms:       make(map[string]*Room),
		conns:       make(map[string]*membership),
		orientation: orientation,
		logger:      logger,
		stopCh:      make(chan struct{}),
	}

	m.wg.Add(1)
	go m.tickLoop()

	return m
}

// Register 註冊新連線並送出連線確認。
func (m *Manager) Register(conn Conn) {
	m.mu.Lock()
	m.conns[conn.ID()] = &membership{conn: conn}
	m.mu.Unlock()

	conn.Send(NewInfo("connected"))
	m.logger.Info("連線已註冊", "conn_id", conn.ID())
}

// Disconnect 處理連線關閉：等同離開房間，並徹底遺忘這條連線。
// 重複呼叫是冪等的。
func (m *Manager) Disconnect(conn Conn) {
	m.Leave(conn)

	m.mu.Lock()
	_, known := m.conns[conn.ID()]
	delete(m.conns, conn.ID())
	m.mu.Unlock()

	if known {
		m.logger.Info("連線已移除", "conn_id", conn.ID())
	}
}

// HandleMessage 解碼並分派一則入站訊息。
//
// 錯誤處理策略（對戰雙方是互信的休閒玩家，不是敵對輸入）：
//   - 格式錯誤或未知標籤：靜默忽略，只留 debug 日誌
//   - 前置條件不滿足：以 info 訊息回覆當事連線，不改動狀態
//   - 任何錯誤都只影響這一則訊息，不中斷 tick 迴圈或其他房間
func (m *Manager) HandleMessage(conn Conn, data []byte) {
	msg, err := DecodeClientMessage(data)
	if err != nil {
		m.logger.Debug("忽略格式錯誤的訊息", "conn_id", conn.ID(), "error", err)
		return
	}

	switch msg.T {
	case TagCreate:
		m.Create(conn, msg.C)
	case TagJoin:
		m.Join(conn, msg.Room, msg.C)
	case TagLeave:
		m.Leave(conn)
	case TagChar:
		m.SetCharacter(conn, msg.C)
	case TagStart:
		m.Start(conn)
	case TagRematch:
		m.Rematch(conn)
	case TagInput:
		m.Input(conn, msg.Pos)
	case TagSpecial:
		m.Special(conn)
	default:
		m.logger.Debug("忽略未知訊息標籤", "conn_id", conn.ID(), "tag", msg.T)
	}
}

// Create 建立新房間並讓連線入座第一個角色槽（near）。
// 連線已在其他房間時先行離開。
func (m *Manager) Create(conn Conn, char int) {
	m.Leave(conn)

	m.mu.Lock()
	me, ok := m.conns[conn.ID()]
	if !ok {
		m.mu.Unlock()
		return
	}
	code := m.generateCodeLocked()
	room := NewRoom(code)
	m.rooms[code] = room

	role, _ := room.Seat(conn, char)
	me.room = room
	me.role = role
	m.mu.Unlock()

	conn.Send(room.Info(role))
	m.logger.Info("房間已創建", "room", code, "conn_id", conn.ID())
}

// Join 依代碼加入既有房間（不分大小寫、去除空白）。
// 查無房間或雙槽皆滿時，以 info 通知當事連線，不改動狀態。
func (m *Manager) Join(conn Conn, code string, char int) {
	m.Leave(conn)

	code = strings.ToUpper(strings.TrimSpace(code))

	m.mu.Lock()
	me, ok := m.conns[conn.ID()]
	if !ok {
		m.mu.Unlock()
		return
	}
	room, exists := m.rooms[code]
	if !exists {
		m.mu.Unlock()
		conn.Send(NewInfo("找不到房間"))
		return
	}
	role, seated := room.Seat(conn, char)
	if !seated {
		m.mu.Unlock()
		conn.Send(NewInfo("房間已滿"))
		return
	}
	me.room = room
	me.role = role
	m.mu.Unlock()

	// 雙方都要收到更新後的房間資訊（原在座者因此得知新對手）
	room.BroadcastInfo()
	room.ExchangeChars(role)

	m.logger.Info("連線已加入房間", "room", code, "conn_id", conn.ID(), "role", role)
}

// Leave 把連線移出其房間。房間因此變空時在同一臨界區內刪除。
// 連線不在任何房間時是 no-op。
func (m *Manager) Leave(conn Conn) {
	m.mu.Lock()
	me, ok := m.conns[conn.ID()]
	if !ok || me.room == nil {
		m.mu.Unlock()
		return
	}
	room := me.room
	me.room = nil
	me.role = ""

	remaining, empty := room.Vacate(conn.ID())
	if empty {
		delete(m.rooms, room.Code)
	}
	m.mu.Unlock()

	if empty {
		m.logger.Info("房間已回收", "room", room.Code)
		return
	}
	if remaining != nil {
		room.BroadcastInfo()
	}
	m.logger.Info("連線已離開房間", "room", room.Code, "conn_id", conn.ID())
}

// SetCharacter 更新外觀選擇並通知對手。
func (m *Manager) SetCharacter(conn Conn, char int) {
	room, role := m.lookup(conn)
	if room == nil {
		return
	}
	c, opponent := room.SetCharacter(role, char)
	if opponent != nil {
		opponent.Send(NewOtherChar(c))
	}
}

// Start 開賽。對手尚未入座時以 info 通知當事連線。
func (m *Manager) Start(conn Conn) {
	room, _ := m.lookup(conn)
	if room == nil {
		return
	}
	if !room.StartMatch() {
		conn.Send(NewInfo("對手尚未入室"))
		return
	}
	room.Broadcast(NewStartOK())
	m.logger.Info("比賽開始", "room", room.Code)
}

// Rematch 重賽。效果與 Start 相同，但雙槽未滿時靜默 no-op
// （賽後留在房間等待對手時的重試路徑）。
func (m *Manager) Rematch(conn Conn) {
	room, _ := m.lookup(conn)
	if room == nil {
		return
	}
	if !room.StartMatch() {
		return
	}
	room.Broadcast(NewStartOK())
	m.logger.Info("重賽開始", "room", room.Code)
}

// Input 更新該連線的拍面目標位置。
func (m *Manager) Input(conn Conn, pos float64) {
	room, role := m.lookup(conn)
	if room == nil {
		return
	}
	room.SetInput(role, pos)
}

// Special 嘗試消耗充能裝填必殺。充能未滿時靜默拒絕。
func (m *Manager) Special(conn Conn) {
	room, role := m.lookup(conn)
	if room == nil {
		return
	}
	room.ArmSpecial(role)
}

// lookup 取得連線當前的房間與角色。
func (m *Manager) lookup(conn Conn) (*Room, Role) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	me, ok := m.conns[conn.ID()]
	if !ok || me.room == nil {
		return nil, ""
	}
	return me.room, me.role
}

// tickLoop 固定速率驅動所有房間。
func (m *Manager) tickLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(time.Second / TickRate)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Tick()
		case <-m.stopCh:
			return
		}
	}
}

// Tick 推進所有房間一個模擬步並廣播狀態快照（公開方法供測試使用）。
//
// 先在讀鎖下拍下房間切片再逐一推進：房間可能在迭代中途被離開處理
// 流程刪除，但切片裡的指標仍有效，多推一步並廣播給空房間是無害的
// no-op（接收者清單為空）。
func (m *Manager) Tick() {
	m.mu.RLock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, room := range m.rooms {
		rooms = append(rooms, room)
	}
	m.mu.RUnlock()

	for _, room := range rooms {
		state, conns := room.Tick(m.orientation)
		for _, conn := range conns {
			conn.Send(state)
		}
	}
}

// Stop 停止管理器。
func (m *Manager) Stop() {
	close(m.stopCh)
	m.wg.Wait()
	m.logger.Info("房間管理器已停止")
}

// Stats 獲取統計資訊。
func (m *Manager) Stats() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	started := 0
	for _, room := range m.rooms {
		if room.Started() {
			started++
		}
	}

	return map[string]any{
		"total_rooms":       len(m.rooms),
		"total_connections": len(m.conns),
		"started_rooms":     started,
	}
}

// codeAlphabet 房間代碼字母表：排除易混淆的 I / O / 0 / 1。
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// generateCodeLocked 生成在現存房間中唯一的 4 字元代碼。需持有寫鎖。
// 代碼只保證進程內唯一，不跨重啟。
func (m *Manager) generateCodeLocked() string {
	for {
		b := make([]byte, 4)
		for i := range b {
			b[i] = codeAlphabet[randInt(len(codeAlphabet))]
		}
		code := string(b)
		if _, exists := m.rooms[code]; !exists {
			return code
		}
	}
}

// randInt 生成隨機數
func randInt(max int) int {
	b := make([]byte, 1)
	if _, err := rand.Read(b); err != nil {
		// 如果隨機讀取失敗，使用時間作為隨機源
		return int(time.Now().UnixNano()) % max
	}
	return int(b[0]) % max
}
