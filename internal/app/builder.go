package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"tradepilot/internal/agent"
	"tradepilot/internal/config"
	"tradepilot/internal/gateway/broker"
	"tradepilot/internal/gateway/notifier"
	"tradepilot/internal/gateway/oracle"
	"tradepilot/internal/guardrail"
	"tradepilot/internal/logger"
	"tradepilot/internal/market"
	"tradepilot/internal/pkg/symbol"
	"tradepilot/internal/sentinel"
	"tradepilot/internal/signal"
	"tradepilot/internal/store"
	"tradepilot/internal/store/model"
	"tradepilot/internal/transport/http/api"
)

// AppBuilder 按配置组装全部依赖；外部网关可通过选项替换，测试使用。
type AppBuilder struct {
	cfg *config.Config

	brokerOverride   broker.Broker
	oracleOverride   oracle.Oracle
	notifierOverride notifier.TextNotifier
}

type AppBuilderOption func(*AppBuilder)

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{cfg: cfg}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func WithBroker(br broker.Broker) AppBuilderOption {
	return func(b *AppBuilder) { b.brokerOverride = br }
}

func WithOracle(o oracle.Oracle) AppBuilderOption {
	return func(b *AppBuilder) { b.oracleOverride = o }
}

func WithNotifier(n notifier.TextNotifier) AppBuilderOption {
	return func(b *AppBuilder) { b.notifierOverride = n }
}

func (b *AppBuilder) Build(ctx context.Context) (app *App, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, errors.New("nil config")
	}
	cfg := b.cfg
	userID := cfg.App.UserID
	a := &App{cfg: cfg}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	st, err := buildStore(cfg.Database)
	if err != nil {
		return nil, err
	}
	a.store = st
	logger.Infof("✓ 数据库已就绪 (%s)", cfg.Database.Type)

	portfolio, err := seedPortfolio(ctx, st, userID, cfg)
	if err != nil {
		return nil, err
	}

	classifier := symbol.NewClassifier(cfg.Crypto.Symbols)
	br := b.brokerOverride
	if br == nil {
		br = buildBroker(cfg.Broker, classifier)
	}
	quotes := buildQuotes(cfg.Crypto, br, classifier)
	calendar, err := market.NewCalendar(classifier, cfg.Trading.IgnoreMarketHours)
	if err != nil {
		return nil, fmt.Errorf("init market calendar: %w", err)
	}
	locker, err := buildLocker(ctx, cfg.Lock)
	if err != nil {
		return nil, err
	}
	a.locker = locker
	orc := b.oracleOverride
	if orc == nil {
		orc = buildOracle(cfg.Oracle)
	}
	memory, err := buildMemory(cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("init memory store: %w", err)
	}
	a.memory = memory
	push := b.notifierOverride
	if push == nil {
		push = buildNotifier(cfg.Notify)
	}

	lex, err := signal.LoadLexicon(cfg.Sources.LexiconPath)
	if err != nil {
		return nil, err
	}
	stream, forum := buildFeeds(cfg.Sources)
	signals := signal.NewAggregator(st, stream, forum, lex, cfg.Sources.SourceWeight, signal.Options{
		TrendingLimit:       cfg.Sources.StockTwits.TrendingLimit,
		StructuredMinVolume: cfg.Sources.StockTwits.MinVolume,
		ForumMinVolume:      cfg.Sources.Reddit.MinVolume,
		Subreddits:          cfg.Sources.Reddit.Subreddits,
	})

	state := agent.NewRuntimeState(agent.ParamsFromConfig(cfg.Trading), portfolio.IsAutonomousActive)
	journal := agent.NewJournal(st)
	reader := guardrail.NewStoreReader(st, userID)
	lockTTL := seconds(cfg.Lock.TTLSeconds)

	closer := agent.NewCloser(agent.CloserParams{
		Store: st, Broker: br, Locker: locker, LockTTL: lockTTL,
		UserID: userID, Journal: journal, Notifier: push,
	})
	monitor := agent.NewPositionMonitor(agent.PositionMonitorParams{
		Store: st, Quotes: quotes, Closer: closer,
		Concurrency: cfg.Scheduler.QuoteConcurrency, Journal: journal,
	})
	loop := agent.NewDecisionLoop(agent.DecisionLoopParams{
		Store: st, Broker: br, Quotes: quotes, Oracle: orc,
		Guard: guardrail.NewEngine(reader), Portfolio: reader, Calendar: calendar,
		Locker: locker, LockTTL: lockTTL, UserID: userID,
		Analysts: cfg.Oracle.Analysts, Journal: journal, Notifier: push,
	})
	snapshotter := agent.NewSnapshotter(agent.SnapshotterParams{Store: st, Broker: br, UserID: userID})
	watchlist := agent.NewWatchlist(agent.WatchlistParams{
		Store: st, Oracle: orc, UserID: userID, Analysts: cfg.Oracle.Analysts, Journal: journal,
	})
	observer := sentinel.NewObserver(sentinel.ObserverParams{Store: st, Memory: memory, Fetcher: signals, UserID: userID})
	matcher := sentinel.NewMatcher(sentinel.MatcherParams{
		Store: st, Memory: memory, Notifier: push, UserID: userID, Threshold: cfg.Trading.SentinelThreshold,
	})
	svc := agent.NewService(agent.ServiceParams{
		Store: st, Broker: br, State: state, Closer: closer, Quotes: quotes,
		Signals: signals, Matcher: matcher, Observer: observer,
		Snapshotter: snapshotter, Watchlist: watchlist, Journal: journal, UserID: userID,
	})

	server, err := api.NewServer(api.ServerConfig{Addr: cfg.App.HTTPAddr, Controller: svc, Watchlist: watchlist})
	if err != nil {
		return nil, err
	}

	a.service = svc
	a.state = state
	a.calendar = calendar
	a.matcher = matcher
	a.notifier = push
	a.http = server
	a.tasks = buildTasks(cfg.Scheduler, state, taskFuncs{
		signals:   svc,
		decision:  loop,
		monitor:   monitor,
		watchlist: watchlist,
		snapshot:  snapshotter,
	})
	a.Summary = newStartupSummary(cfg, portfolio, a.tasks)
	return a, nil
}

// seedPortfolio 首次启动时按配置写入组合配置，之后以数据库为准。
func seedPortfolio(ctx context.Context, st store.Store, userID string, cfg *config.Config) (*model.PortfolioConfig, error) {
	seed := &model.PortfolioConfig{
		UserID:                 userID,
		IsAutonomousActive:     cfg.Trading.AutonomousEnabled,
		TotalBudget:            cfg.Portfolio.TotalBudget,
		MaxPositionSize:        cfg.Portfolio.MaxPositionSize,
		MaxDrawdown:            cfg.Portfolio.MaxDrawdown,
		RiskTolerance:          strings.ToLower(cfg.Portfolio.RiskTolerance),
		MinConfidenceThreshold: cfg.Portfolio.MinConfidence,
		StrategyName:           cfg.Portfolio.StrategyName,
	}
	seed.SetAllowlist(symbol.NormalizeList(cfg.Portfolio.AllowedSymbols))
	var out *model.PortfolioConfig
	err := store.Run(ctx, st, func(uow store.UnitOfWork) error {
		var err error
		out, err = uow.Portfolio().GetOrCreate(ctx, seed)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("seed portfolio config: %w", err)
	}
	return out, nil
}
