package internal

import (
	"fmt"
	"math"
	"math/rand"
)

// 系統設計問題：
//   如何在服務器端權威地模擬一場雙人彈球對戰？
//
// 核心挑戰：
//   1. 權威模擬：客戶端只送輸入，球的物理、得分、勝負全由服務器決定
//   2. 固定步長：30 Hz 固定 tick，確保兩端看到一致的物理行為
//   3. 方向抽象：橫向與縱向兩種場地佈局共用同一套引擎
//   4. 純函數式狀態轉移：引擎不做任何 I/O，便於測試與重現
//
// 設計方案：
//   ✅ 發球軸座標系 - 引擎內部只認「發球軸 U / 橫軸 V」，編碼快照時才映射成 X/Y
//   ✅ 有限狀態機 - ready → playing → finished 的明確轉換
//   ✅ 注入亂數源 - 發球角度抖動可重現（測試用固定種子）
//   ✅ 常數集中 - 所有物理調校值集中於一處

// Role 場地角色。near 防守發球軸低座標端，far 防守高座標端。
type Role string

const (
	RoleNear Role = "near"
	RoleFar  Role = "far"
)

// Opponent 回傳對面的角色。
func (r Role) Opponent() Role {
	if r == RoleNear {
		return RoleFar
	}
	return RoleNear
}

// Mode 單一房間的模擬狀態機
//
// 狀態轉換規則：
//   - ready → playing：發球
//   - playing → ready：非決勝分落地（隨即自動再發球回到 playing）
//   - playing → finished：任一方達到 7 分
//   - finished → ready：start / rematch 重置
//
// 非 playing 狀態下 tick 是 no-op，房間處於惰性狀態。
type Mode string

const (
	ModeReady    Mode = "ready"
	ModePlaying  Mode = "playing"
	ModeFinished Mode = "finished"
)

// 物理調校常數（正規化座標系，場地為 [0,1]×[0,1]）
const (
	TickRate = 30 // 每秒模擬步數
	tickDT   = 1.0 / TickRate

	WinScore   = 7     // 勝利門檻
	BallRadius = 0.014 // 球半徑

	paddleHalfWidth = 0.13  // 球拍沿橫軸的半寬（命中窗口）
	paddleNearPlane = 0.08  // near 拍面在發球軸上的位置
	paddleFarPlane  = 0.92  // far 拍面在發球軸上的位置
	paddleDepth     = 0.012 // 拍面厚度

	baseServeSpeed = 0.42  // 發球基礎速度
	serveSpeedRamp = 0.012 // 每累計一分的加速
	serveJitter    = 0.28  // 發球角度抖動上限（弧度）

	spinEpsilon  = 0.0005 // 低於此值旋轉歸零，避免無窮小震盪
	spinAccel    = 0.22   // 旋轉對橫向速度的影響係數（每秒）
	spinDecay    = 0.985  // 旋轉每 tick 的幾何衰減
	wallSpinDamp = 0.9    // 撞牆後的旋轉阻尼

	gaugeGain       = 0.14 // 每次成功回擊的充能
	returnSpeedGain = 0.02 // 回擊加速
	normalSpeedCap  = 0.95 // 一般回擊速度上限
	specialBoost    = 0.22 // 必殺回擊的額外加速
	specialSpeedCap = 1.15 // 必殺回擊速度上限

	normalSpinBlend = 0.4  // 一般回擊保留的舊旋轉比例
	normalSpinGain  = 0.06 // 一般回擊由擊球偏移帶入的旋轉
	normalSpinCap   = 0.6  // 一般回擊旋轉上限
	specialSpinGain = 0.9  // 必殺回擊由擊球偏移帶入的旋轉
	specialSpinCap  = 1.6  // 必殺回擊旋轉上限

	reboundAngleGain = 0.9 // 擊球偏移轉換為反彈角的係數
	maxReboundAngle  = 1.1 // 反彈角上限（弧度）

	scoreMargin = 0.08 // 越過邊界多遠才算得分
)

// SimState 單一房間的模擬狀態。
//
// 座標系：BallU 沿發球軸（球在兩個拍面之間往返的軸），BallV 沿橫軸
// （球拍移動的軸）。橫向／縱向場地只差在快照編碼時 U/V 如何映射到
// X/Y，引擎本身與方向無關。
type SimState struct {
	Mode        Mode
	ScoreNear   int
	ScoreFar    int
	PaddleNear  float64 // near 拍在橫軸上的位置 [0,1]
	PaddleFar   float64
	BallU       float64 // 發球軸座標（得分時可短暫超出 [0,1]）
	BallV       float64 // 橫軸座標
	VelU        float64
	VelV        float64
	Spin        float64
	GaugeNear   float64 // 充能 [0,1]
	GaugeFar    float64
	SpecialNear bool // 必殺已裝填，於下次成功回擊消耗
	SpecialFar  bool
	Winner      Role // 空字串表示尚無勝者
	Serving     Role // 下一球的發球方
}

// NewSimState 建立初始模擬狀態：球置中、拍置中、far 先發。
func NewSimState() SimState {
	return SimState{
		Mode:       ModeReady,
		PaddleNear: 0.5,
		PaddleFar:  0.5,
		BallU:      0.5,
		BallV:      0.5,
		Serving:    RoleFar,
	}
}

// ResetMatch 重置整場比賽的累計狀態（分數、充能、勝者）。
func (s *SimState) ResetMatch() {
	s.ScoreNear = 0
	s.ScoreFar = 0
	s.GaugeNear = 0
	s.GaugeFar = 0
	s.Winner = ""
}

// ResetRound 重置單一回合：球置中、速度與旋轉歸零、必殺清除。
func (s *SimState) ResetRound(serving Role) {
	s.Mode = ModeReady
	s.BallU = 0.5
	s.BallV = 0.5
	s.VelU = 0
	s.VelV = 0
	s.Spin = 0
	s.SpecialNear = false
	s.SpecialFar = false
	s.Serving = serving
}

// Serve 發球：依累計分數微幅加速（難度爬升），方向朝向接球方，
// 角度帶少量隨機抖動。
func (s *SimState) Serve(rng *rand.Rand) {
	s.Mode = ModePlaying
	dir := 1.0
	if s.Serving == RoleFar {
		dir = -1
	}
	speed := baseServeSpeed + float64(s.ScoreNear+s.ScoreFar)*serveSpeedRamp
	angle := (rng.Float64()*2 - 1) * serveJitter
	s.VelU = math.Cos(angle) * speed * dir
	s.VelV = math.Sin(angle) * speed
	s.Spin = 0
}

// ArmSpecial 嘗試消耗充能裝填必殺。充能未滿時是 no-op（尚未允許的
// 正常狀態，不視為錯誤）。
func (s *SimState) ArmSpecial(role Role) bool {
	if role == RoleNear {
		if s.GaugeNear < 1 {
			return false
		}
		s.GaugeNear = 0
		s.SpecialNear = true
		return true
	}
	if s.GaugeFar < 1 {
		return false
	}
	s.GaugeFar = 0
	s.SpecialFar = true
	return true
}

// Step 推進一個固定時間步。
//
// 僅在 playing 狀態下推進；ready / finished 的房間保持惰性，直到
// 會話層觸發 serve 或重賽。輸入在這裡夾取到 [0,1] 後直接指定給拍面
// 位置，這是拍面移動的唯一途徑（不做插值或平滑）。
func (s *SimState) Step(inputNear, inputFar float64, rng *rand.Rand) {
	if s.Mode != ModePlaying {
		return
	}

	s.PaddleNear = clamp(inputNear, 0, 1)
	s.PaddleFar = clamp(inputFar, 0, 1)

	s.BallU += s.VelU * tickDT
	s.BallV += s.VelV * tickDT

	// 旋轉：對橫向速度施加擾動並幾何衰減，低於 epsilon 直接歸零
	if math.Abs(s.Spin) > spinEpsilon {
		s.VelV += s.Spin * spinAccel * tickDT
		s.Spin *= spinDecay
	} else {
		s.Spin = 0
	}

	// 牆面反彈：位置夾回場內、橫向速度取反、旋轉阻尼（能量損耗）
	if s.BallV-BallRadius < 0 {
		s.BallV = BallRadius
		s.VelV = -s.VelV
		s.Spin *= wallSpinDamp
	}
	if s.BallV+BallRadius > 1 {
		s.BallV = 1 - BallRadius
		s.VelV = -s.VelV
		s.Spin *= wallSpinDamp
	}

	// 球拍碰撞：只在球朝該端移動且到達拍面、並落在半寬窗口內時觸發。
	// 碰撞後把球釘回拍面，避免單一 tick 內穿拍或重複觸發。
	if s.VelU < 0 && s.BallU-BallRadius <= paddleNearPlane+paddleDepth {
		if s.inHitZone(s.PaddleNear) {
			s.BallU = paddleNearPlane + paddleDepth + BallRadius
			s.rebound(RoleNear)
		}
	}
	if s.VelU > 0 && s.BallU+BallRadius >= paddleFarPlane-paddleDepth {
		if s.inHitZone(s.PaddleFar) {
			s.BallU = paddleFarPlane - paddleDepth - BallRadius
			s.rebound(RoleFar)
		}
	}

	// 得分：越過邊界外側的固定餘裕才算，對面得分
	if s.BallU < -scoreMargin {
		s.score(RoleFar, rng)
	} else if s.BallU > 1+scoreMargin {
		s.score(RoleNear, rng)
	}
}

// inHitZone 球的橫軸座標是否落在拍面當前位置的半寬窗口內。
func (s *SimState) inHitZone(paddle float64) bool {
	return s.BallV > paddle-paddleHalfWidth && s.BallV < paddle+paddleHalfWidth
}

// rebound 處理一次成功回擊。
//
// 擊球點相對拍心的偏移（以半寬正規化到 [-1,1]）決定反彈角；防守方
// 充能增加；速度微幅提升。若該方已裝填必殺則在此消耗：速度獲得額外
// 提升並以偏移比例設定激進旋轉；否則旋轉以 40% 舊值混合少量偏移。
func (s *SimState) rebound(defender Role) {
	paddle := s.PaddleNear
	if defender == RoleFar {
		paddle = s.PaddleFar
	}
	rel := clamp((s.BallV-paddle)/paddleHalfWidth, -1, 1)

	if defender == RoleNear {
		s.GaugeNear = clamp(s.GaugeNear+gaugeGain, 0, 1)
	} else {
		s.GaugeFar = clamp(s.GaugeFar+gaugeGain, 0, 1)
	}

	speed := math.Min(normalSpeedCap, math.Hypot(s.VelU, s.VelV)+returnSpeedGain)

	armed := s.SpecialNear
	if defender == RoleFar {
		armed = s.SpecialFar
	}
	if armed {
		if defender == RoleNear {
			s.SpecialNear = false
		} else {
			s.SpecialFar = false
		}
		speed = math.Min(specialSpeedCap, speed+specialBoost)
		s.Spin = clamp(rel*specialSpinGain, -specialSpinCap, specialSpinCap)
	} else {
		s.Spin = clamp(s.Spin*normalSpinBlend+rel*normalSpinGain, -normalSpinCap, normalSpinCap)
	}

	dir := 1.0
	if defender == RoleFar {
		dir = -1
	}
	angle := clamp(rel*reboundAngleGain, -maxReboundAngle, maxReboundAngle)
	s.VelU = math.Cos(angle) * speed * dir
	s.VelV = math.Sin(angle) * speed
}

// score 記一分。達到勝利門檻則轉入 finished 並設定勝者；否則重置
// 回合（得分方發球）並立即自動再發球。
func (s *SimState) score(scorer Role, rng *rand.Rand) {
	if scorer == RoleNear {
		s.ScoreNear++
	} else {
		s.ScoreFar++
	}

	if s.ScoreNear >= WinScore || s.ScoreFar >= WinScore {
		s.Mode = ModeFinished
		if s.ScoreNear > s.ScoreFar {
			s.Winner = RoleNear
		} else {
			s.Winner = RoleFar
		}
		return
	}

	s.ResetRound(scorer)
	s.Serve(rng)
}

// Orientation 場地方向：決定快照編碼時發球軸映射到哪個螢幕座標。
type Orientation string

const (
	// OrientationHorizontal 發球軸為 X：拍面在左右兩側，沿 Y 移動
	OrientationHorizontal Orientation = "horizontal"
	// OrientationVertical 發球軸為 Y：拍面在上下兩端，沿 X 移動
	OrientationVertical Orientation = "vertical"
)

// ParseOrientation 解析場地方向設定值。
func ParseOrientation(s string) (Orientation, error) {
	switch Orientation(s) {
	case OrientationHorizontal, OrientationVertical:
		return Orientation(s), nil
	default:
		return "", fmt.Errorf("未知的場地方向: %q", s)
	}
}

// Snapshot 產生推送給客戶端的狀態快照，依場地方向映射球座標。
func (s *SimState) Snapshot(o Orientation) Snapshot {
	ballX, ballY := s.BallU, s.BallV
	if o == OrientationVertical {
		ballX, ballY = s.BallV, s.BallU
	}
	return Snapshot{
		Mode:        s.Mode,
		ScoreNear:   s.ScoreNear,
		ScoreFar:    s.ScoreFar,
		PaddleNear:  s.PaddleNear,
		PaddleFar:   s.PaddleFar,
		BallX:       ballX,
		BallY:       ballY,
		BallR:       BallRadius,
		Spin:        s.Spin,
		GaugeNear:   s.GaugeNear,
		GaugeFar:    s.GaugeFar,
		SpecialNear: s.SpecialNear,
		SpecialFar:  s.SpecialFar,
		Winner:      s.Winner,
	}
}

// clamp 夾取數值到 [lo, hi]。
func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
