package compose

import (
	"strings"
	"time"
)

// genericContext is embedded when no context signal is available.
const genericContext = "美味健康的家常菜谱推荐"

// Ambient describes the situation a recommendation is made in.
type Ambient struct {
	Season    string
	MealSlot  string
	Holiday   string
	TimeOfDay string
}

// AmbientAt derives the season from the month and the meal slot from the
// hour of t, in t's location.
func AmbientAt(t time.Time) Ambient {
	return Ambient{Season: seasonOf(t.Month()), MealSlot: mealSlotOf(t.Hour())}
}

func seasonOf(m time.Month) string {
	switch {
	case m >= time.March && m <= time.May:
		return "春季"
	case m >= time.June && m <= time.August:
		return "夏季"
	case m >= time.September && m <= time.November:
		return "秋季"
	default:
		return "冬季"
	}
}

func mealSlotOf(hour int) string {
	switch {
	case hour >= 6 && hour < 10:
		return "早餐"
	case hour >= 10 && hour < 14:
		return "午餐"
	case hour >= 14 && hour < 17:
		return "下午茶"
	case hour >= 17 && hour < 21:
		return "晚餐"
	default:
		return "宵夜"
	}
}

// Text is the natural-language description embedded for a.
func (a Ambient) Text() string {
	var b strings.Builder
	if a.Season != "" {
		b.WriteString(a.Season + "季节适合的食谱，使用当季食材。")
	}
	if a.Holiday != "" {
		b.WriteString("适合" + a.Holiday + "的传统或创新食谱。")
	}
	if a.MealSlot != "" {
		b.WriteString("适合作为" + a.MealSlot + "的食谱。")
	}
	if a.TimeOfDay != "" {
		b.WriteString("适合在" + a.TimeOfDay + "食用的餐点。")
	}
	if b.Len() == 0 {
		return genericContext
	}
	return b.String()
}

// Scope names a for cache keys.
func (a Ambient) Scope() string {
	return "context:" + a.Season + ":" + a.MealSlot
}
