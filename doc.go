// Package fujikiponggame 提供了一個權威式的雙人彈球對戰服務器。
//
// 兩名玩家透過 4 字元房間代碼配對，各自控制場地一側的球拍；球的
// 物理、得分與勝負完全由服務器以 30 Hz 固定 tick 模擬，客戶端只
// 負責送出輸入並渲染服務器推送的狀態。
//
// 房間與會話
//
// 每個房間恰好有兩個角色槽（near / far）：
//   - 創建者固定入座 near，加入者取得第一個空槽
//   - 離開與斷線等價，最後一名在座者離開時房間立即回收
//   - start 需要雙方在座，rematch 在賽後原班人馬重開
//
// # 權威模擬
//
// 模擬引擎以發球軸／橫軸座標系運作，與場地的橫向或縱向佈局無關：
//   - 固定步長積分、牆面反彈、旋轉衰減
//   - 擊球偏移決定反彈角，成功回擊累積充能
//   - 充能滿格可裝填必殺，於下一次回擊爆發
//   - 先得 7 分者勝
//
// 併發安全設計
//
// 共享狀態只有房間表與連線註冊表：
//   - Manager 以 RWMutex 保護兩張表
//   - 每個房間各自持鎖，訊息處理與 tick 推進互斥
//   - 推送一律非阻塞，慢客戶端只會丟幀不會拖慢 tick
//
// 使用範例
//
// 啟動服務器：
//
//	manager := internal.NewManager(logger, internal.OrientationHorizontal)
//	hub := internal.NewHub(manager, logger)
//
//	http.HandleFunc("/ws", hub.ServeWS)
//	log.Fatal(http.ListenAndServe(":8787", nil))
//
// 客戶端連接後的訊息流：
//
//	→ {"t":"create","c":0}
//	← {"t":"room","room":"ABCD","role":"near","otherPresent":false,"canStart":false}
//	→ {"t":"start"}
//	← {"t":"start_ok"}
//	← {"t":"state","s":{...}}   // 每 tick
//
// 配置選項
//
// 支援多種運行時配置：
//   - -port：服務監聽端口（預設 8787）
//   - -static：靜態資源目錄（對局頁面與素材）
//   - -orientation：場地方向（horizontal / vertical）
//   - -log-level：日誌級別（debug/info/warn/error）
//   - -log-format：日誌格式（text/json）
package fujikiponggame
