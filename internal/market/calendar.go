package market

import (
	"fmt"
	"sync/atomic"
	"time"
	_ "time/tzdata"

	"tradepilot/internal/pkg/symbol"
)

const exchangeTZ = "America/New_York"

var (
	sessionOpen  = 9*time.Hour + 30*time.Minute
	sessionClose = 16 * time.Hour
)

// Calendar 判断标的当前是否可交易：加密货币 7x24，股票仅在美东工作日 09:30-16:00。
type Calendar struct {
	loc         *time.Location
	symbols     *symbol.Classifier
	ignoreHours atomic.Bool
	now         func() time.Time
}

func NewCalendar(symbols *symbol.Classifier, ignoreMarketHours bool) (*Calendar, error) {
	loc, err := time.LoadLocation(exchangeTZ)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", exchangeTZ, err)
	}
	if symbols == nil {
		symbols = symbol.NewClassifier(nil)
	}
	c := &Calendar{loc: loc, symbols: symbols, now: time.Now}
	c.ignoreHours.Store(ignoreMarketHours)
	return c, nil
}

// SetIgnoreMarketHours 热更新时切换是否忽略交易时段。
func (c *Calendar) SetIgnoreMarketHours(v bool) {
	c.ignoreHours.Store(v)
}

func (c *Calendar) IsCrypto(sym string) bool {
	return c.symbols.IsCrypto(sym)
}

// CanTrade 返回是否可交易以及原因。
func (c *Calendar) CanTrade(sym string) (bool, string) {
	if c.symbols.IsCrypto(sym) {
		return true, "crypto trades 24/7"
	}
	if c.ignoreHours.Load() {
		return true, "market hours ignored"
	}
	return c.sessionState(c.now())
}

// IsOpen 判断某一时刻美股是否处于常规交易时段。
func (c *Calendar) IsOpen(t time.Time) bool {
	ok, _ := c.sessionState(t)
	return ok
}

func (c *Calendar) sessionState(t time.Time) (bool, string) {
	local := t.In(c.loc)
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false, "market closed (weekend)"
	}
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.loc)
	offset := local.Sub(midnight)
	if offset < sessionOpen || offset >= sessionClose {
		return false, "market closed (outside 09:30-16:00 ET)"
	}
	return true, "market open"
}
