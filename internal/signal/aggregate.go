package signal

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"tradepilot/internal/pkg/text"
	"tradepilot/internal/store/model"
)

const (
	reasonLimit       = 150
	activeReasonLimit = 200
)

// Message 为结构化来源（自带看多/看空标签）的一条消息。
type Message struct {
	ID        int64
	Body      string
	Sentiment string // Bullish / Bearish / 空
	CreatedAt time.Time
}

// Post 为论坛类来源的一篇帖子，情绪需从文本推断。
type Post struct {
	ID        string
	Subreddit string
	Title     string
	Body      string
	Upvotes   int
	Comments  int
	CreatedAt time.Time
}

// Text 返回参与提取与打分的文本。
func (p Post) Text() string {
	if p.Body == "" {
		return p.Title
	}
	return p.Title + " " + p.Body
}

// StructuredScore 为结构化消息集合的聚合结果。
type StructuredScore struct {
	Score     float64
	Freshness float64
	Volume    int
	Bullish   float64
	Bearish   float64
	TopBody   string
}

// ScoreStructured 以衰减加权计算 (bull - bear) / Σdecay，Freshness 为平均衰减。
func ScoreStructured(msgs []Message, now time.Time) StructuredScore {
	out := StructuredScore{Volume: len(msgs)}
	if len(msgs) == 0 {
		return out
	}
	var total float64
	for _, m := range msgs {
		d := DecayAt(m.CreatedAt, now)
		total += d
		switch m.Sentiment {
		case "Bullish":
			out.Bullish += d
		case "Bearish":
			out.Bearish += d
		}
		if utf8.RuneCountInString(m.Body) > utf8.RuneCountInString(out.TopBody) {
			out.TopBody = m.Body
		}
	}
	if total > 0 {
		out.Score = (out.Bullish - out.Bearish) / total
	}
	out.Freshness = total / float64(len(msgs))
	return out
}

// TickerAggregate 为论坛帖子按代码聚合后的结果。
type TickerAggregate struct {
	Symbol            string
	Mentions          int
	RawSentiment      float64
	WeightedSentiment float64
	Freshness         float64
	SourceWeight      float64
	Upvotes           int
	Comments          int
	Subreddits        []string
	TopContent        string

	sumRaw     float64
	sumQuality float64
	sumWeighed float64
	sumWeight  float64
	topQuality float64
	subs       map[string]struct{}
}

// ScorePosts 对每个被提及的代码计算质量加权情绪：
// quality = 衰减 × 互动系数 × 子版块权重，情绪 = Σ(s·q)/Σq。
func (l *Lexicon) ScorePosts(posts []Post, weight func(subreddit string) float64, now time.Time) []TickerAggregate {
	byTicker := make(map[string]*TickerAggregate)
	for _, p := range posts {
		text := p.Text()
		tickers := l.ExtractTickers(text)
		if len(tickers) == 0 {
			continue
		}
		s := l.TextSentiment(text)
		decay := DecayAt(p.CreatedAt, now)
		w := weight(p.Subreddit)
		q := decay * EngagementMultiplier(p.Upvotes, p.Comments) * w
		for _, sym := range tickers {
			agg, ok := byTicker[sym]
			if !ok {
				agg = &TickerAggregate{Symbol: sym, subs: make(map[string]struct{})}
				byTicker[sym] = agg
			}
			agg.Mentions++
			agg.sumRaw += s
			agg.sumWeighed += s * q
			agg.sumQuality += q
			agg.sumWeight += w
			agg.Upvotes += p.Upvotes
			agg.Comments += p.Comments
			if decay > agg.Freshness {
				agg.Freshness = decay
			}
			if q > agg.topQuality {
				agg.topQuality = q
				agg.TopContent = p.Title
			}
			if p.Subreddit != "" {
				agg.subs[p.Subreddit] = struct{}{}
			}
		}
	}

	out := make([]TickerAggregate, 0, len(byTicker))
	for _, agg := range byTicker {
		n := float64(agg.Mentions)
		agg.RawSentiment = agg.sumRaw / n
		agg.SourceWeight = agg.sumWeight / n
		if agg.sumQuality > 0 {
			agg.WeightedSentiment = agg.sumWeighed / agg.sumQuality
		} else {
			agg.WeightedSentiment = agg.RawSentiment
		}
		agg.Subreddits = make([]string, 0, len(agg.subs))
		for sub := range agg.subs {
			agg.Subreddits = append(agg.Subreddits, sub)
		}
		sort.Strings(agg.Subreddits)
		out = append(out, *agg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// AggregateStructured 将结构化消息聚合为单条信号，消息数低于 minVolume 时返回 nil。
func AggregateStructured(symbol string, msgs []Message, weight float64, minVolume int, now time.Time) *model.Signal {
	if len(msgs) == 0 || len(msgs) < minVolume {
		return nil
	}
	sc := ScoreStructured(msgs, now)
	return &model.Signal{
		Symbol:            symbol,
		Source:            model.SourceStockTwits,
		SourceDetail:      "stocktwits_trending",
		RawSentiment:      sc.Score,
		WeightedSentiment: sc.Score * weight * sc.Freshness,
		Volume:            sc.Volume,
		Freshness:         sc.Freshness,
		SourceWeight:      weight,
		Reason:            fmt.Sprintf("StockTwits: %s (Sentiment: %.0f%%)", text.Clip(sc.TopBody, reasonLimit), sc.Score*100),
		Timestamp:         now,
		Metadata: map[string]any{
			"bullish":     sc.Bullish,
			"bearish":     sc.Bearish,
			"top_content": text.Clip(sc.TopBody, activeReasonLimit),
		},
	}
}

// activeSignal 将主动抓取的消息聚合为信号，至少一条消息即可。
func activeSignal(symbol string, msgs []Message, weight float64, now time.Time) *model.Signal {
	sig := AggregateStructured(symbol, msgs, weight, 1, now)
	if sig == nil {
		return nil
	}
	sc := ScoreStructured(msgs, now)
	sig.Source = model.SourceActiveFetch
	sig.SourceDetail = model.SourceActiveFetch
	sig.Reason = "Active Fetch: " + text.Clip(sc.TopBody, activeReasonLimit)
	sig.Metadata["active_fetch"] = true
	return sig
}

// AggregatePosts 将论坛帖子聚合为每个代码一条信号，提及次数低于 minVolume 的代码被忽略。
func (l *Lexicon) AggregatePosts(posts []Post, weight func(subreddit string) float64, minVolume int, now time.Time) []*model.Signal {
	if minVolume < 1 {
		minVolume = 1
	}
	var out []*model.Signal
	for _, agg := range l.ScorePosts(posts, weight, now) {
		if agg.Mentions < minVolume {
			continue
		}
		out = append(out, &model.Signal{
			Symbol:            agg.Symbol,
			Source:            model.SourceRedditPrefix + strings.Join(agg.Subreddits, ","),
			SourceDetail:      "reddit_" + strings.Join(agg.Subreddits, "_"),
			RawSentiment:      agg.RawSentiment,
			WeightedSentiment: agg.WeightedSentiment,
			Volume:            agg.Mentions,
			Freshness:         agg.Freshness,
			SourceWeight:      agg.SourceWeight,
			Reason:            fmt.Sprintf("Reddit: %s (%d mentions)", text.Clip(agg.TopContent, reasonLimit), agg.Mentions),
			Timestamp:         now,
			Metadata: map[string]any{
				"upvotes":     agg.Upvotes,
				"comments":    agg.Comments,
				"subreddits":  agg.Subreddits,
				"top_content": text.Clip(agg.TopContent, activeReasonLimit),
			},
		})
	}
	return out
}
