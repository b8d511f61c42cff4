package sentinel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tradepilot/internal/gateway/similarity"
	"tradepilot/internal/logger"
	"tradepilot/internal/store"
	"tradepilot/internal/store/model"

	"github.com/google/uuid"
)

// ContextWindow 为采集行为上下文时回看的信号窗口。
const ContextWindow = 24 * time.Hour

// ActiveFetcher 在标的缺少近期信号时主动抓取一次。
type ActiveFetcher interface {
	FetchForTicker(ctx context.Context, symbol string) (*model.Signal, error)
}

// ActivityInput 为一次用户行为。
type ActivityInput struct {
	ActivityType     string         `json:"activity_type" binding:"required"`
	Symbol           string         `json:"symbol" binding:"required"`
	Side             string         `json:"side"`
	Quantity         float64        `json:"quantity"`
	Price            float64        `json:"price"`
	TechnicalContext string         `json:"client_context"`
	Outcome          string         `json:"outcome"`
	Metadata         map[string]any `json:"metadata"`
}

type ObserverParams struct {
	Store   store.Store
	Memory  similarity.Store
	Fetcher ActiveFetcher
	UserID  string
}

// Observer 记录用户行为及当时的市场情绪，并写入记忆库。
type Observer struct {
	store   store.Store
	memory  similarity.Store
	fetcher ActiveFetcher
	userID  string
	now     func() time.Time
}

func NewObserver(p ObserverParams) *Observer {
	return &Observer{store: p.Store, memory: p.Memory, fetcher: p.Fetcher, userID: p.UserID, now: time.Now}
}

type marketContext struct {
	sentiment float64
	news      string
}

// LogAction 保存行为记录；写入记忆库失败只记录日志。
func (o *Observer) LogAction(ctx context.Context, in ActivityInput) (*model.UserActivity, error) {
	sym := strings.ToUpper(strings.TrimSpace(in.Symbol))
	if sym == "" || strings.TrimSpace(in.ActivityType) == "" {
		return nil, errors.New("activity_type and symbol are required")
	}
	mc, err := o.marketContext(ctx, sym)
	if err != nil {
		return nil, err
	}
	sentiment := mc.sentiment
	act := &model.UserActivity{
		UserID:           o.userID,
		ActivityType:     in.ActivityType,
		Symbol:           sym,
		Side:             in.Side,
		Quantity:         in.Quantity,
		PriceAtAction:    in.Price,
		SentimentScore:   &sentiment,
		NewsContext:      mc.news,
		TechnicalContext: in.TechnicalContext,
		Timestamp:        o.now().UTC(),
		Outcome:          in.Outcome,
		Metadata:         in.Metadata,
	}
	err = store.Run(ctx, o.store, func(uow store.UnitOfWork) error {
		return uow.Activities().Create(ctx, act)
	})
	if err != nil {
		return nil, fmt.Errorf("persist activity: %w", err)
	}

	doc := fmt.Sprintf("User %s on %s. ", act.ActivityType, sym)
	if act.Side != "" {
		doc += fmt.Sprintf("Side: %s. ", act.Side)
	}
	doc += fmt.Sprintf("Context: %s. Sentiment: %.2f.", mc.news, mc.sentiment)
	meta := map[string]any{
		"activity_id":   act.ID,
		"symbol":        sym,
		"activity_type": act.ActivityType,
		"timestamp":     act.Timestamp.Format(time.RFC3339),
	}
	if err := o.memory.AddActivity(ctx, uuid.NewString(), doc, meta); err != nil {
		logger.Errorf("写入行为记忆失败 (activity=%d): %v", act.ID, err)
	}
	logger.Infof("记录用户行为: %s %s (情绪 %.2f)", act.ActivityType, sym, mc.sentiment)
	return act, nil
}

// RecordOutcome 补写行为结果，只允许一次。
func (o *Observer) RecordOutcome(ctx context.Context, id uint, outcome string) error {
	outcome = strings.TrimSpace(outcome)
	if outcome == "" {
		return errors.New("outcome is required")
	}
	return store.Run(ctx, o.store, func(uow store.UnitOfWork) error {
		return uow.Activities().SetOutcome(ctx, id, outcome)
	})
}

func (o *Observer) History(ctx context.Context, limit int) ([]model.UserActivity, error) {
	var out []model.UserActivity
	err := store.Run(ctx, o.store, func(uow store.UnitOfWork) error {
		var err error
		out, err = uow.Activities().List(ctx, o.userID, limit)
		return err
	})
	return out, err
}

func (o *Observer) marketContext(ctx context.Context, sym string) (marketContext, error) {
	since := o.now().UTC().Add(-ContextWindow)
	var (
		mc    marketContext
		count int
	)
	err := store.Run(ctx, o.store, func(uow store.UnitOfWork) error {
		avg, n, err := uow.Signals().AverageSentiment(ctx, sym, since)
		if err != nil {
			return err
		}
		mc.sentiment, count = avg, n
		latest, err := uow.Signals().LatestForSymbol(ctx, sym, since)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		mc.news = latest.Reason
		return nil
	})
	if err != nil {
		return mc, fmt.Errorf("load market context: %w", err)
	}
	if count == 0 && o.fetcher != nil {
		logger.Infof("%s 无近期信号，主动抓取", sym)
		sig, err := o.fetcher.FetchForTicker(ctx, sym)
		if err != nil {
			logger.Warnf("主动抓取 %s 失败: %v", sym, err)
		} else if sig != nil {
			mc.sentiment = sig.WeightedSentiment
			mc.news = sig.Reason
		}
	}
	return mc, nil
}
