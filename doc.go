// Package typingrace 提供了一個多人打字競速遊戲的後端服務。
//
// 實現了一個支援多房間、多玩家同場競速的即時服務器，包含以下核心功能：
//
// 房間與比賽協調
//
// 比賽以房間為單位進行：
//   - 房間建立時選定目標文字並寫入房間記錄
//   - 玩家加入後等待統一的開始訊號
//   - 倒數結束後訊號翻轉一次，所有玩家同時起跑
//   - 最後一位玩家離線或全員完賽時房間自動移除
//
// # 按鍵評分
//
// 每一次按鍵都經過純函式評分：
//   - 以字元（而非位元組）為單位比對目標文字
//   - 錯誤只在「正確 → 錯誤」的轉換時計數一次
//   - 持續打錯的按鍵合併到同一筆按鍵記錄
//   - 即時計算進度、WPM、CPM 與正確率
//
// # WebSocket 通訊
//
// 採用帶類型標籤的 JSON 協定進行雙向通訊：
//   - 心跳檢測（Ping/Pong）偵測死連接
//   - 房間廣播與玩家單播
//   - 外送佇列非阻塞發送，慢客戶端不拖累比賽
//
// 併發安全設計
//
// 多條連線共享房間狀態，採用以下策略：
//   - 註冊表與房間各自以讀寫鎖保護
//   - 寫鎖只涵蓋最小必要的狀態變更，廣播在釋放鎖之後進行
//   - 「最後一位離開者刪房」與「全員完賽關房」的判斷在註冊表寫鎖內完成
//   - 開始訊號以一次性關閉的 channel 廣播，等待者不輪詢
//
// 持久化
//
// 比賽結果透過 Store 介面寫入 PostgreSQL：
//   - 房間、參賽記錄與完賽結果各一張資料表
//   - 完整按鍵記錄以 JSONB 保存供後續分析
//   - 寫入失敗只記錄日誌，不影響進行中的比賽
package typingrace
