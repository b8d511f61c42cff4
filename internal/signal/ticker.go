package signal

import (
	"regexp"
	"strings"
)

var (
	dollarTicker = regexp.MustCompile(`\$([A-Z]{1,5})\b`)
	bareTicker   = regexp.MustCompile(`\b[A-Z]{2,5}\b`)
	nextWord     = regexp.MustCompile(`^\s+([A-Za-z]+)`)
)

// ExtractTickers 提取 $TICKER 或后接交易关键词的 2-5 位大写代码，按首次出现顺序去重。
func (l *Lexicon) ExtractTickers(text string) []string {
	type hit struct {
		pos    int
		symbol string
	}
	var hits []hit
	for _, m := range dollarTicker.FindAllStringSubmatchIndex(text, -1) {
		hits = append(hits, hit{pos: m[0], symbol: text[m[2]:m[3]]})
	}
	for _, m := range bareTicker.FindAllStringIndex(text, -1) {
		if m[0] > 0 && text[m[0]-1] == '$' {
			continue
		}
		follow := nextWord.FindStringSubmatch(text[m[1]:])
		if follow == nil {
			continue
		}
		if _, ok := l.tradeWords[strings.ToLower(follow[1])]; !ok {
			continue
		}
		hits = append(hits, hit{pos: m[0], symbol: text[m[0]:m[1]]})
	}
	// 两类匹配按出现位置合并
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && hits[j].pos < hits[j-1].pos; j-- {
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}
	seen := make(map[string]struct{}, len(hits))
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		if l.Blacklisted(h.symbol) {
			continue
		}
		if _, dup := seen[h.symbol]; dup {
			continue
		}
		seen[h.symbol] = struct{}{}
		out = append(out, h.symbol)
	}
	return out
}
