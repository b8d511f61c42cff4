package guardrail

import (
	"context"
	"fmt"
	"strings"

	"tradepilot/internal/logger"
	"tradepilot/internal/metrics"
	"tradepilot/internal/store"
	"tradepilot/internal/store/model"

	"github.com/shopspring/decimal"
)

const (
	RuleConfig      = "config"
	RuleInput       = "input"
	RuleAutonomous  = "autonomous"
	RulePositionCap = "max_position_size"
	RuleBudget      = "total_budget"
	RuleAllowlist   = "allowlist"
)

// Verdict 为风控结论，拒绝不视为错误。
type Verdict struct {
	Allowed bool
	Rule    string
	Reason  string
}

func allow() Verdict { return Verdict{Allowed: true, Reason: "ok"} }

func reject(rule, format string, args ...any) Verdict {
	return Verdict{Rule: rule, Reason: fmt.Sprintf(format, args...)}
}

// ConfigReader 读取当前组合配置。
type ConfigReader interface {
	Portfolio(ctx context.Context) (*model.PortfolioConfig, error)
}

// Engine 按顺序执行硬性风控规则，读取配置失败时拒绝交易。
type Engine struct {
	reader ConfigReader
}

func NewEngine(reader ConfigReader) *Engine {
	return &Engine{reader: reader}
}

func (e *Engine) Check(ctx context.Context, symbol string, qty, price float64) Verdict {
	v := e.evaluate(ctx, symbol, qty, price)
	if !v.Allowed {
		logger.Warnf("风控拒绝 %s x%.4f @ %.4f: %s", symbol, qty, price, v.Reason)
		metrics.RecordGuardrailRejection(v.Rule)
	}
	return v
}

func (e *Engine) evaluate(ctx context.Context, symbol string, qty, price float64) Verdict {
	if qty <= 0 || price <= 0 {
		return reject(RuleInput, "invalid order size: qty=%v price=%v", qty, price)
	}
	cfg, err := e.reader.Portfolio(ctx)
	if err != nil || cfg == nil {
		return reject(RuleConfig, "portfolio config unavailable: %v", err)
	}
	if !cfg.IsAutonomousActive {
		return reject(RuleAutonomous, "autonomous trading is disabled")
	}
	cost := decimal.NewFromFloat(qty).Mul(decimal.NewFromFloat(price))
	maxSize := decimal.NewFromFloat(cfg.MaxPositionSize)
	if cost.GreaterThan(maxSize) {
		return reject(RulePositionCap, "position value $%s exceeds max position size $%s",
			cost.StringFixed(2), maxSize.StringFixed(2))
	}
	total := decimal.NewFromFloat(cfg.CurrentAllocation).Add(cost)
	budget := decimal.NewFromFloat(cfg.TotalBudget)
	if total.GreaterThan(budget) {
		return reject(RuleBudget, "total allocation $%s would exceed budget $%s",
			total.StringFixed(2), budget.StringFixed(2))
	}
	if list := cfg.Allowlist(); len(list) > 0 && !contains(list, symbol) {
		return reject(RuleAllowlist, "%s is not in the allowed symbols list", symbol)
	}
	return allow()
}

func contains(list []string, sym string) bool {
	for _, s := range list {
		if strings.EqualFold(strings.TrimSpace(s), strings.TrimSpace(sym)) {
			return true
		}
	}
	return false
}

// StoreReader 每次调用都从数据库重新读取配置。
type StoreReader struct {
	store  store.Store
	userID string
}

func NewStoreReader(st store.Store, userID string) *StoreReader {
	return &StoreReader{store: st, userID: userID}
}

func (r *StoreReader) Portfolio(ctx context.Context) (*model.PortfolioConfig, error) {
	var cfg *model.PortfolioConfig
	err := store.Run(ctx, r.store, func(uow store.UnitOfWork) error {
		var err error
		cfg, err = uow.Portfolio().Get(ctx, r.userID)
		return err
	})
	return cfg, err
}
