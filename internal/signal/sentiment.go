package signal

import (
	"math"
	"regexp"
	"strings"
	"time"
)

// HalfLife 为情绪衰减半衰期。
const HalfLife = 120 * time.Minute

const (
	minDecay = 0.2
	maxDecay = 1.0
)

var wordToken = regexp.MustCompile(`[a-z]+`)

// TextSentiment 返回 (看多词数 - 看空词数) / 总词数，均为 0 时返回 0。
func (l *Lexicon) TextSentiment(text string) float64 {
	var bull, bear int
	for _, w := range wordToken.FindAllString(strings.ToLower(text), -1) {
		if _, ok := l.bullish[w]; ok {
			bull++
		}
		if _, ok := l.bearish[w]; ok {
			bear++
		}
	}
	total := bull + bear
	if total == 0 {
		return 0
	}
	return float64(bull-bear) / float64(total)
}

// Decay 计算 0.5^(age/半衰期)，限制在 [0.2, 1.0]，负数年龄按 0 处理。
func Decay(age time.Duration) float64 {
	if age < 0 {
		age = 0
	}
	d := math.Pow(0.5, age.Minutes()/HalfLife.Minutes())
	return math.Max(minDecay, math.Min(maxDecay, d))
}

// DecayAt 以 now 为基准计算衰减，时间缺失时视为刚发布。
func DecayAt(createdAt, now time.Time) float64 {
	if createdAt.IsZero() {
		return maxDecay
	}
	return Decay(now.Sub(createdAt))
}

// EngagementMultiplier 为点赞与评论阶梯系数的均值。
func EngagementMultiplier(upvotes, comments int) float64 {
	up := 0.8
	switch {
	case upvotes >= 1000:
		up = 1.5
	case upvotes >= 500:
		up = 1.3
	case upvotes >= 200:
		up = 1.2
	case upvotes >= 100:
		up = 1.1
	case upvotes >= 50:
		up = 1.0
	}
	cm := 0.9
	switch {
	case comments >= 200:
		cm = 1.4
	case comments >= 100:
		cm = 1.25
	case comments >= 50:
		cm = 1.15
	case comments >= 20:
		cm = 1.05
	}
	return (up + cm) / 2
}
