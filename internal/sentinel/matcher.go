// Package sentinel 将新信号与用户历史行为做相似匹配，命中时生成主动提醒。
package sentinel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"tradepilot/internal/gateway/notifier"
	"tradepilot/internal/gateway/similarity"
	"tradepilot/internal/logger"
	"tradepilot/internal/metrics"
	"tradepilot/internal/store"
	"tradepilot/internal/store/model"
)

// DefaultThreshold 为生成提醒的最低相似度。
const DefaultThreshold = 0.35

type MatcherParams struct {
	Store     store.Store
	Memory    similarity.Store
	Notifier  notifier.TextNotifier
	UserID    string
	Threshold float64
}

// Matcher 为信号查找最相似的一条历史行为。
type Matcher struct {
	store     store.Store
	memory    similarity.Store
	notifier  notifier.TextNotifier
	userID    string
	threshold atomic.Uint64
	now       func() time.Time
}

func NewMatcher(p MatcherParams) *Matcher {
	n := p.Notifier
	if n == nil {
		n = notifier.Nop{}
	}
	m := &Matcher{store: p.Store, memory: p.Memory, notifier: n, userID: p.UserID, now: time.Now}
	m.SetThreshold(p.Threshold)
	return m
}

// SetThreshold 热更新阈值，非正值回退到默认值。
func (m *Matcher) SetThreshold(v float64) {
	if v <= 0 || v > 1 {
		v = DefaultThreshold
	}
	m.threshold.Store(math.Float64bits(v))
}

func (m *Matcher) Threshold() float64 { return math.Float64frombits(m.threshold.Load()) }

// Query 构造检索文本。
func Query(sig *model.Signal) string {
	return fmt.Sprintf("News about %s: %s. %s", sig.Symbol, sig.Reason, sig.SourceDetail)
}

// Process 返回新生成的提醒；无命中、相似度低于阈值或已提醒过时返回 nil。
func (m *Matcher) Process(ctx context.Context, sig *model.Signal) (*model.Alert, error) {
	if sig == nil {
		return nil, nil
	}
	matches, err := m.memory.FindSimilar(ctx, Query(sig), 1)
	if err != nil {
		return nil, fmt.Errorf("find similar: %w", err)
	}
	if len(matches) == 0 {
		return nil, nil
	}
	best := matches[0]
	if best.Similarity < m.Threshold() {
		return nil, nil
	}
	activityID, hasActivity := metadataID(best.Metadata["activity_id"])

	var alert *model.Alert
	err = store.Run(ctx, m.store, func(uow store.UnitOfWork) error {
		if sig.ID != 0 && hasActivity {
			dup, err := uow.Alerts().ExistsForSignal(ctx, sig.ID, activityID)
			if err != nil {
				return err
			}
			if dup {
				return nil
			}
		}
		var activity *model.UserActivity
		if hasActivity {
			a, err := uow.Activities().FindByID(ctx, activityID)
			switch {
			case err == nil:
				activity = a
			case !errors.Is(err, store.ErrNotFound):
				return err
			}
		}
		alert = m.buildAlert(sig, best.Similarity, activity)
		if hasActivity {
			id := activityID
			alert.MatchedActivityID = &id
		}
		return uow.Alerts().Create(ctx, alert)
	})
	if err != nil {
		return nil, fmt.Errorf("persist alert: %w", err)
	}
	if alert == nil {
		return nil, nil
	}
	metrics.RecordAlert(alert.AlertType)
	logger.Infof("Sentinel 为 %s 生成提醒 (相似度 %.2f, 类型 %s)", sig.Symbol, best.Similarity, alert.AlertType)
	if err := m.notifier.SendText(ctx, alert.Title+"\n\n"+alert.Message); err != nil {
		logger.Warnf("推送提醒失败: %v", err)
	}
	return alert, nil
}

// ProcessBatch 逐条处理，单条失败只记录日志。
func (m *Matcher) ProcessBatch(ctx context.Context, sigs []*model.Signal) []*model.Alert {
	var out []*model.Alert
	for _, sig := range sigs {
		if ctx.Err() != nil {
			break
		}
		alert, err := m.Process(ctx, sig)
		if err != nil {
			logger.Errorf("Sentinel 处理信号 %s (#%d) 失败: %v", sig.Symbol, sig.ID, err)
			continue
		}
		if alert != nil {
			out = append(out, alert)
		}
	}
	return out
}

// Classify 依据历史结果判断提醒类型并给出建议。
func Classify(outcome string) (alertType, advice string) {
	if outcome == "" {
		return model.AlertPatternMatch, "Consider reviewing this pattern before trading."
	}
	lower := strings.ToLower(outcome)
	hasDollar := strings.Contains(outcome, "$")
	switch {
	case strings.Contains(lower, "profit") || (strings.Contains(outcome, "+") && hasDollar):
		return model.AlertOpportunity, "This pattern previously led to a profit. Similar opportunity detected."
	case strings.Contains(lower, "loss") || (strings.Contains(outcome, "-") && hasDollar):
		return model.AlertRiskWarning, "⚠️ Warning: This pattern previously led to a loss. Review carefully before trading."
	default:
		return model.AlertPatternMatch, "Consider reviewing this pattern before trading."
	}
}

func (m *Matcher) buildAlert(sig *model.Signal, score float64, activity *model.UserActivity) *model.Alert {
	event := sig.Reason
	if event == "" {
		event = "Market event"
	}
	action := "traded"
	result := "• Result: Outcome not yet recorded"
	var outcome string
	meta := map[string]any{
		"signal_reason": sig.Reason,
		"signal_source": sig.Source,
		"past_side":     nil,
		"past_quantity": nil,
		"past_price":    nil,
		"past_outcome":  nil,
		"news_context":  nil,
	}
	if activity != nil {
		side := activity.Side
		if side == "" {
			side = "traded"
		}
		action = fmt.Sprintf("%s %.0f shares", side, activity.Quantity)
		if activity.PriceAtAction != 0 {
			action += fmt.Sprintf(" at $%.2f", activity.PriceAtAction)
		}
		outcome = activity.Outcome
		if outcome != "" {
			result = "• Result: " + outcome
		}
		meta["past_side"] = nullable(activity.Side)
		if activity.Quantity != 0 {
			meta["past_quantity"] = activity.Quantity
		}
		if activity.PriceAtAction != 0 {
			meta["past_price"] = activity.PriceAtAction
		}
		meta["past_outcome"] = nullable(activity.Outcome)
		meta["news_context"] = nullable(activity.NewsContext)
	}
	alertType, advice := Classify(outcome)
	msg := fmt.Sprintf("📰 News Event: \"%s\"\n\n⚠️ Similar Situation Detected (%.0f%% match)\n\nLast time during similar news:\n• You %s\n%s\n\n💡 %s",
		event, score*100, action, result, advice)

	alert := &model.Alert{
		UserID:          m.userID,
		Title:           "Proactive Alert: " + sig.Symbol,
		Message:         msg,
		AlertType:       alertType,
		SimilarityScore: score,
		Timestamp:       m.now().UTC(),
		Metadata:        meta,
	}
	if sig.ID != 0 {
		id := sig.ID
		alert.SignalID = &id
	}
	return alert
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// metadataID 解析记忆库元数据中的行为 ID，JSON 往返后数值为 float64。
func metadataID(v any) (uint, bool) {
	switch x := v.(type) {
	case float64:
		if x > 0 {
			return uint(x), true
		}
	case int:
		if x > 0 {
			return uint(x), true
		}
	case int64:
		if x > 0 {
			return uint(x), true
		}
	case uint:
		return x, x > 0
	case json.Number:
		if n, err := x.Int64(); err == nil && n > 0 {
			return uint(n), true
		}
	case string:
		if n, err := strconv.ParseUint(x, 10, 64); err == nil && n > 0 {
			return uint(n), true
		}
	}
	return 0, false
}
