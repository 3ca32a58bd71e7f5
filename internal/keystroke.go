package internal

import (
	"strings"
	"time"
)

// Keystroke 一筆按鍵記錄。
// 注意：連續打錯時 Key 可能包含多個字元——錯誤串流中的後續按鍵
// 會附加到同一筆記錄，保留完整輸入供分析，但不灌水錯誤計數。
type Keystroke struct {
	Key       string    `json:"key"`
	Mistake   bool      `json:"mistake"`
	Expected  string    `json:"expected,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// StrokeOutcome 單次按鍵的評分結果
type StrokeOutcome struct {
	Correct    bool   // 按鍵符合目標文字的下一個字元
	NewMistake bool   // 正確 → 錯誤的轉換，錯誤計數應 +1
	Expected   string // 期望的字元；已超出文字結尾時為空字串
}

// ScoreStroke 對單一按鍵評分。純函式，不碰任何共享狀態。
//
// 以字元（rune）為索引單位而非位元組，目標文字包含多位元組
// 字元時比對位置才會正確。錯誤只在「正確 → 錯誤」的轉換時
// 視為新錯誤；已處於錯誤串流中的按鍵既不是正確也不是新錯誤，
// 呼叫者應將其合併到最近一筆按鍵記錄。
func ScoreStroke(target, typed string, lastIsMistake bool, key string) StrokeOutcome {
	runes := []rune(target)
	pos := len([]rune(typed))

	if pos < len(runes) {
		expected := string(runes[pos])
		if key == expected {
			return StrokeOutcome{Correct: true, Expected: expected}
		}
		return StrokeOutcome{NewMistake: !lastIsMistake, Expected: expected}
	}

	// 超出結尾的額外按鍵一律視為錯誤，期望字元留空
	return StrokeOutcome{NewMistake: !lastIsMistake}
}

// Progress 回傳已輸入進度的百分比（0–100）
func Progress(typedCount, targetCount int) float64 {
	if targetCount == 0 {
		return 0
	}
	return 100 * float64(typedCount) / float64(targetCount)
}

// SpeedWPM 每分鐘字數，以空白分隔的字為單位。
// 經過時間為零時回傳 0 而非無限大。
func SpeedWPM(typed string, elapsed time.Duration) float64 {
	secs := elapsed.Seconds()
	if secs <= 0 {
		return 0
	}
	words := float64(len(strings.Fields(typed)))
	return words / secs * 60
}

// SpeedCPM 每分鐘字元數
func SpeedCPM(typedCount int, elapsed time.Duration) float64 {
	secs := elapsed.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(typedCount) / secs * 60
}

// Accuracy 正確率百分比，下限為 0
func Accuracy(typedCount, mistakes int) float64 {
	if typedCount == 0 {
		return 0
	}
	acc := 100 * float64(typedCount-mistakes) / float64(typedCount)
	if acc < 0 {
		return 0
	}
	return acc
}
