package signal

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"tradepilot/internal/logger"
	"tradepilot/internal/metrics"
	"tradepilot/internal/store"
	"tradepilot/internal/store/model"

	"golang.org/x/sync/errgroup"
)

// StreamFeed 为带情绪标签的结构化消息源（StockTwits）。
type StreamFeed interface {
	Trending(ctx context.Context, limit int) ([]string, error)
	Stream(ctx context.Context, symbol string) ([]Message, error)
}

// ForumFeed 为论坛热帖源（Reddit）。
type ForumFeed interface {
	Hot(ctx context.Context, subreddit string) ([]Post, error)
}

// WeightFunc 按来源键返回权重，例如 stocktwits、reddit_wallstreetbets。
type WeightFunc func(source string) float64

// Options 控制聚合规模与阈值。
type Options struct {
	TrendingLimit       int
	StructuredMinVolume int
	ForumMinVolume      int
	Subreddits          []string
}

// Aggregator 并发拉取社交来源，生成信号并在一个事务内落库。
type Aggregator struct {
	store   store.Store
	stream  StreamFeed
	forum   ForumFeed
	lexicon *Lexicon
	weight  WeightFunc
	opts    Options
	now     func() time.Time
}

// NewAggregator 创建聚合器；stream 或 forum 为 nil 时跳过对应来源。
func NewAggregator(st store.Store, stream StreamFeed, forum ForumFeed, lex *Lexicon, weight WeightFunc, opts Options) *Aggregator {
	if lex == nil {
		lex = DefaultLexicon()
	}
	if weight == nil {
		weight = func(string) float64 { return 0.7 }
	}
	if opts.TrendingLimit <= 0 {
		opts.TrendingLimit = 15
	}
	if opts.StructuredMinVolume <= 0 {
		opts.StructuredMinVolume = 5
	}
	if opts.ForumMinVolume <= 0 {
		opts.ForumMinVolume = 1
	}
	return &Aggregator{
		store:   st,
		stream:  stream,
		forum:   forum,
		lexicon: lex,
		weight:  weight,
		opts:    opts,
		now:     time.Now,
	}
}

// Lexicon 返回当前词表。
func (a *Aggregator) Lexicon() *Lexicon { return a.lexicon }

// Gather 运行所有来源，单个来源失败只记录日志；结果整体写入数据库。
func (a *Aggregator) Gather(ctx context.Context) ([]*model.Signal, error) {
	now := a.now().UTC()
	var (
		mu  sync.Mutex
		out []*model.Signal
	)
	collect := func(name string, fn func(context.Context, time.Time) ([]*model.Signal, error)) func() error {
		return func() error {
			sigs, err := fn(ctx, now)
			if err != nil {
				logger.Warnf("信号来源 %s 拉取失败: %v", name, err)
				metrics.RecordSourceFailure(name)
				return nil
			}
			mu.Lock()
			out = append(out, sigs...)
			mu.Unlock()
			return nil
		}
	}
	var g errgroup.Group
	if a.stream != nil {
		g.Go(collect(model.SourceStockTwits, a.gatherStream))
	}
	if a.forum != nil {
		g.Go(collect("reddit", a.gatherForum))
	}
	_ = g.Wait()

	sortSignals(out)
	if err := a.persist(ctx, out); err != nil {
		return nil, err
	}
	logger.Infof("本轮信号聚合完成，共 %d 条", len(out))
	return out, nil
}

// FetchForTicker 主动抓取单个标的的结构化消息并落库；无消息时返回 nil。
func (a *Aggregator) FetchForTicker(ctx context.Context, symbol string) (*model.Signal, error) {
	sig, err := a.fetchTicker(ctx, symbol)
	if err != nil || sig == nil {
		return nil, err
	}
	if err := a.persist(ctx, []*model.Signal{sig}); err != nil {
		return nil, err
	}
	return sig, nil
}

// GatherForHistory 为用户历史交互过的标的主动抓取信号，跳过 exclude 与黑名单中的代码。
func (a *Aggregator) GatherForHistory(ctx context.Context, exclude []string) ([]*model.Signal, error) {
	if a.stream == nil {
		return nil, nil
	}
	var symbols []string
	err := store.Run(ctx, a.store, func(uow store.UnitOfWork) error {
		var err error
		symbols, err = uow.Activities().DistinctSymbols(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list activity symbols: %w", err)
	}
	skip := make(map[string]struct{}, len(exclude))
	for _, s := range exclude {
		skip[strings.ToUpper(s)] = struct{}{}
	}
	var out []*model.Signal
	for _, sym := range symbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" || a.lexicon.Blacklisted(sym) {
			continue
		}
		if _, ok := skip[sym]; ok {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		sig, err := a.fetchTicker(ctx, sym)
		if err != nil {
			logger.Warnf("历史标的 %s 主动抓取失败: %v", sym, err)
			metrics.RecordSourceFailure(model.SourceActiveFetch)
			continue
		}
		if sig != nil {
			out = append(out, sig)
		}
	}
	if err := a.persist(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *Aggregator) fetchTicker(ctx context.Context, symbol string) (*model.Signal, error) {
	if a.stream == nil {
		return nil, fmt.Errorf("structured source disabled")
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("symbol required")
	}
	msgs, err := a.stream.Stream(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("stream %s: %w", symbol, err)
	}
	return activeSignal(symbol, msgs, a.weight(model.SourceStockTwits), a.now().UTC()), nil
}

func (a *Aggregator) gatherStream(ctx context.Context, now time.Time) ([]*model.Signal, error) {
	symbols, err := a.stream.Trending(ctx, a.opts.TrendingLimit)
	if err != nil {
		return nil, fmt.Errorf("trending: %w", err)
	}
	weight := a.weight(model.SourceStockTwits)
	var out []*model.Signal
	for _, sym := range symbols {
		if ctx.Err() != nil {
			return out, nil
		}
		msgs, err := a.stream.Stream(ctx, sym)
		if err != nil {
			logger.Warnf("StockTwits %s 消息流拉取失败: %v", sym, err)
			continue
		}
		if sig := AggregateStructured(sym, msgs, weight, a.opts.StructuredMinVolume, now); sig != nil {
			out = append(out, sig)
		}
	}
	return out, nil
}

func (a *Aggregator) gatherForum(ctx context.Context, now time.Time) ([]*model.Signal, error) {
	var posts []Post
	var failed int
	for _, sub := range a.opts.Subreddits {
		if ctx.Err() != nil {
			break
		}
		batch, err := a.forum.Hot(ctx, sub)
		if err != nil {
			failed++
			logger.Warnf("Reddit r/%s 拉取失败: %v", sub, err)
			continue
		}
		for i := range batch {
			if batch[i].Subreddit == "" {
				batch[i].Subreddit = sub
			}
		}
		posts = append(posts, batch...)
	}
	if failed > 0 && failed == len(a.opts.Subreddits) {
		return nil, fmt.Errorf("all %d subreddits failed", failed)
	}
	weight := func(sub string) float64 { return a.weight("reddit_" + strings.ToLower(sub)) }
	return a.lexicon.AggregatePosts(posts, weight, a.opts.ForumMinVolume, now), nil
}

func (a *Aggregator) persist(ctx context.Context, sigs []*model.Signal) error {
	if len(sigs) == 0 || a.store == nil {
		return nil
	}
	err := store.Run(ctx, a.store, func(uow store.UnitOfWork) error {
		return uow.Signals().CreateBatch(ctx, sigs)
	})
	if err != nil {
		return fmt.Errorf("persist signals: %w", err)
	}
	counts := make(map[string]int)
	for _, s := range sigs {
		counts[sourceLabel(s.Source)]++
	}
	for src, n := range counts {
		metrics.RecordSignals(src, n)
	}
	return nil
}

func sourceLabel(source string) string {
	if strings.HasPrefix(source, model.SourceRedditPrefix) {
		return "reddit"
	}
	return source
}

func sortSignals(sigs []*model.Signal) {
	sort.SliceStable(sigs, func(i, j int) bool {
		if sigs[i].Source != sigs[j].Source {
			return sigs[i].Source > sigs[j].Source
		}
		return sigs[i].Symbol < sigs[j].Symbol
	})
}
