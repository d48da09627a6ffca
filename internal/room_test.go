package internal_test

import (
	"testing"

	"github.com/fujikiadace-cloud/fujikiponggame/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRoom_SeatPrefersNear 創建者入座 near，第二人入座 far，第三人被拒
func TestRoom_SeatPrefersNear(t *testing.T) {
	room := internal.NewRoom("ABCD")

	a := newFakeConn("a")
	role, ok := room.Seat(a, 0)
	require.True(t, ok)
	assert.Equal(t, internal.RoleNear, role)

	b := newFakeConn("b")
	role, ok = room.Seat(b, 1)
	require.True(t, ok)
	assert.Equal(t, internal.RoleFar, role)

	c := newFakeConn("c")
	_, ok = room.Seat(c, 0)
	assert.False(t, ok, "雙槽皆滿")
}

// TestRoom_VacateDetectsEmpty 空槽判定與槽位變更同屬一個原子區段
func TestRoom_VacateDetectsEmpty(t *testing.T) {
	room := internal.NewRoom("ABCD")
	a := newFakeConn("a")
	b := newFakeConn("b")
	room.Seat(a, 0)
	room.Seat(b, 0)

	remaining, empty := room.Vacate("a")
	assert.False(t, empty)
	require.NotNil(t, remaining)
	assert.Equal(t, "b", remaining.ID())

	remaining, empty = room.Vacate("b")
	assert.True(t, empty)
	assert.Nil(t, remaining)

	// 冪等：再次移出不存在的連線
	_, empty = room.Vacate("b")
	assert.True(t, empty)
}

// TestRoom_VacateFreesSlotForReuse 離開後空出的槽可再次入座
func TestRoom_VacateFreesSlotForReuse(t *testing.T) {
	room := internal.NewRoom("ABCD")
	a := newFakeConn("a")
	b := newFakeConn("b")
	room.Seat(a, 0)
	room.Seat(b, 0)
	room.Vacate("a")

	c := newFakeConn("c")
	role, ok := room.Seat(c, 2)
	require.True(t, ok)
	assert.Equal(t, internal.RoleNear, role, "near 槽被釋放後優先補位")
}

// TestRoom_InfoReflectsPresence 房間資訊反映在座狀態與可開賽條件
func TestRoom_InfoReflectsPresence(t *testing.T) {
	room := internal.NewRoom("ABCD")
	a := newFakeConn("a")
	room.Seat(a, 2)

	info := room.Info(internal.RoleNear)
	assert.Equal(t, "ABCD", info.Room)
	assert.Equal(t, internal.RoleNear, info.Role)
	assert.False(t, info.OtherPresent)
	assert.False(t, info.CanStart)
	assert.Nil(t, info.OtherChar)

	b := newFakeConn("b")
	room.Seat(b, 1)

	info = room.Info(internal.RoleNear)
	assert.True(t, info.OtherPresent)
	assert.True(t, info.CanStart)
	require.NotNil(t, info.OtherChar)
	assert.Equal(t, 1, *info.OtherChar)

	// 開賽後 canStart 轉為 false
	require.True(t, room.StartMatch())
	info = room.Info(internal.RoleFar)
	assert.True(t, info.OtherPresent)
	assert.False(t, info.CanStart)
	require.NotNil(t, info.OtherChar)
	assert.Equal(t, 2, *info.OtherChar)
}

// TestRoom_StartMatchRequiresBoth 單人房不可開賽；開賽即重置並發球
func TestRoom_StartMatchRequiresBoth(t *testing.T) {
	room := internal.NewRoom("ABCD")
	a := newFakeConn("a")
	room.Seat(a, 0)

	assert.False(t, room.StartMatch())
	assert.False(t, room.Started())

	b := newFakeConn("b")
	room.Seat(b, 0)

	require.True(t, room.StartMatch())
	assert.True(t, room.Started())

	sim := room.Sim()
	assert.Equal(t, internal.ModePlaying, sim.Mode)
	assert.Zero(t, sim.ScoreNear)
	assert.Zero(t, sim.ScoreFar)
	assert.Empty(t, sim.Winner)
	assert.NotZero(t, sim.VelU, "開賽立即發球")
	assert.Less(t, sim.VelU, 0.0, "far 先發，球朝向 near")
}

// TestRoom_SetCharacterClamps 外觀索引夾取到 [0,2]，並回傳待通知的對手
func TestRoom_SetCharacterClamps(t *testing.T) {
	room := internal.NewRoom("ABCD")
	a := newFakeConn("a")
	b := newFakeConn("b")
	room.Seat(a, 0)
	room.Seat(b, 0)

	c, opponent := room.SetCharacter(internal.RoleNear, -3)
	assert.Equal(t, 0, c)
	require.NotNil(t, opponent)
	assert.Equal(t, "b", opponent.ID())

	c, _ = room.SetCharacter(internal.RoleFar, 9)
	assert.Equal(t, 2, c)
}

// TestRoom_TickTargetsSeatedOnly tick 快照只推送給在座的連線
func TestRoom_TickTargetsSeatedOnly(t *testing.T) {
	room := internal.NewRoom("ABCD")
	a := newFakeConn("a")
	room.Seat(a, 0)

	state, conns := room.Tick(internal.OrientationHorizontal)
	require.Len(t, conns, 1)
	assert.Equal(t, "a", conns[0].ID())
	assert.Equal(t, "state", state.T)
	assert.Equal(t, internal.ModeReady, state.S.Mode, "未開賽的房間不推進物理")

	room.Vacate("a")
	_, conns = room.Tick(internal.OrientationHorizontal)
	assert.Empty(t, conns)
}
