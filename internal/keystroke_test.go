package internal_test

import (
	"testing"
	"time"

	"github.com/koopa0/typing-race/internal"
	"github.com/stretchr/testify/assert"
)

// TestScoreStroke 測試單鍵評分
func TestScoreStroke(t *testing.T) {
	tests := []struct {
		name          string
		target        string
		typed         string
		lastIsMistake bool
		key           string
		validate      func(t *testing.T, outcome internal.StrokeOutcome)
	}{
		{
			name:   "correct first character",
			target: "cat",
			typed:  "",
			key:    "c",
			validate: func(t *testing.T, outcome internal.StrokeOutcome) {
				assert.True(t, outcome.Correct)
				assert.False(t, outcome.NewMistake)
				assert.Equal(t, "c", outcome.Expected)
			},
		},
		{
			name:   "wrong key counts as new mistake",
			target: "cat",
			typed:  "c",
			key:    "x",
			validate: func(t *testing.T, outcome internal.StrokeOutcome) {
				assert.False(t, outcome.Correct)
				assert.True(t, outcome.NewMistake)
				assert.Equal(t, "a", outcome.Expected)
			},
		},
		{
			name:          "second wrong key in a streak is not a new mistake",
			target:        "cat",
			typed:         "c",
			lastIsMistake: true,
			key:           "y",
			validate: func(t *testing.T, outcome internal.StrokeOutcome) {
				assert.False(t, outcome.Correct)
				assert.False(t, outcome.NewMistake)
				assert.Equal(t, "a", outcome.Expected)
			},
		},
		{
			name:          "correct key ends a mistake streak",
			target:        "cat",
			typed:         "c",
			lastIsMistake: true,
			key:           "a",
			validate: func(t *testing.T, outcome internal.StrokeOutcome) {
				assert.True(t, outcome.Correct)
				assert.False(t, outcome.NewMistake)
			},
		},
		{
			name:   "keystroke past end of text is a mistake with empty expected",
			target: "cat",
			typed:  "cat",
			key:    "s",
			validate: func(t *testing.T, outcome internal.StrokeOutcome) {
				assert.False(t, outcome.Correct)
				assert.True(t, outcome.NewMistake)
				assert.Empty(t, outcome.Expected)
			},
		},
		{
			name:   "multibyte target indexes by rune",
			target: "你好世界",
			typed:  "你好",
			key:    "世",
			validate: func(t *testing.T, outcome internal.StrokeOutcome) {
				assert.True(t, outcome.Correct)
				assert.Equal(t, "世", outcome.Expected)
			},
		},
		{
			name:   "wrong multibyte key reports rune expected",
			target: "你好世界",
			typed:  "你",
			key:    "世",
			validate: func(t *testing.T, outcome internal.StrokeOutcome) {
				assert.False(t, outcome.Correct)
				assert.True(t, outcome.NewMistake)
				assert.Equal(t, "好", outcome.Expected)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome := internal.ScoreStroke(tt.target, tt.typed, tt.lastIsMistake, tt.key)
			tt.validate(t, outcome)
		})
	}
}

// TestProgress 測試進度百分比計算
func TestProgress(t *testing.T) {
	// "cat" 的三次正確輸入應依序產生 33.3 / 66.7 / 100
	assert.InDelta(t, 33.3, internal.Progress(1, 3), 0.1)
	assert.InDelta(t, 66.7, internal.Progress(2, 3), 0.1)
	assert.InDelta(t, 100.0, internal.Progress(3, 3), 0.001)

	// 空目標文字不除以零
	assert.Equal(t, 0.0, internal.Progress(0, 0))
}

// TestSpeedWPM 測試字速計算
func TestSpeedWPM(t *testing.T) {
	tests := []struct {
		name     string
		typed    string
		elapsed  time.Duration
		expected float64
	}{
		{
			name:     "five words in one minute",
			typed:    "one two three four five",
			elapsed:  time.Minute,
			expected: 5.0,
		},
		{
			name:     "two words in thirty seconds",
			typed:    "hello world",
			elapsed:  30 * time.Second,
			expected: 4.0,
		},
		{
			name:     "zero elapsed yields zero not inf",
			typed:    "hello",
			elapsed:  0,
			expected: 0.0,
		},
		{
			name:     "empty text yields zero",
			typed:    "",
			elapsed:  time.Minute,
			expected: 0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, internal.SpeedWPM(tt.typed, tt.elapsed), 0.001)
		})
	}
}

// TestSpeedCPM 測試字元速率計算
func TestSpeedCPM(t *testing.T) {
	assert.InDelta(t, 120.0, internal.SpeedCPM(60, 30*time.Second), 0.001)
	assert.Equal(t, 0.0, internal.SpeedCPM(60, 0))
}

// TestAccuracy 測試準確率計算與下限
func TestAccuracy(t *testing.T) {
	tests := []struct {
		name     string
		typed    int
		mistakes int
		expected float64
	}{
		{name: "perfect run", typed: 10, mistakes: 0, expected: 100.0},
		{name: "one mistake in ten", typed: 10, mistakes: 1, expected: 90.0},
		{name: "mistakes exceed typed clamps at zero", typed: 3, mistakes: 10, expected: 0.0},
		{name: "nothing typed", typed: 0, mistakes: 0, expected: 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, internal.Accuracy(tt.typed, tt.mistakes), 0.001)
		})
	}
}
