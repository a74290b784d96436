package trader

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gregtusar/thstrader/pkg/journal"
	"github.com/gregtusar/thstrader/pkg/models"
	"github.com/gregtusar/thstrader/pkg/stockcode"
	"github.com/gregtusar/thstrader/pkg/uiclient"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	BrokerName = "同花顺"
	Broker     = "ths"

	// PositionForegroundColumn is the column the platform colors by sign.
	PositionForegroundColumn = "参考盈亏"
)

// Column layout of the THS tables.
const (
	posCodeCol        = 1
	posNameCol        = 2
	posVolumeCol      = 3
	posPnLCol         = 6
	posCostCol        = 7
	posPriceCol       = 9
	posMarketValueCol = 10

	balanceTotalAssetCol  = 2
	balanceMarketValueCol = -2

	EntrustNoCol    = 10
	EntrustStateCol = 4
)

// cancelErrorMarkers flag a failed cancel in the window's reply text.
var cancelErrorMarkers = []string{"错误", "unkown"}

type Credentials struct {
	Account  string
	Password string
	ExePath  string
}

type Option func(*ThsTrader)

func WithRetryPolicy(p RetryPolicy) Option {
	return func(t *ThsTrader) {
		t.retry = p
	}
}

func WithHeartbeat(interval time.Duration) Option {
	return func(t *ThsTrader) {
		t.heartbeat = interval
	}
}

// WithPositionsListener is called with the tradable codes every time
// positions are fetched from the broker, so the quote subscription can follow.
func WithPositionsListener(fn func(codes []string)) Option {
	return func(t *ThsTrader) {
		t.onPositions = fn
	}
}

func WithJournal(j journal.Journal) Option {
	return func(t *ThsTrader) {
		t.journal = j
	}
}

// ThsTrader adapts the THS UI client to the platform's trading interface.
// Failures of the UI client are logged and reported as false, never returned.
type ThsTrader struct {
	client    uiclient.Client
	journal   journal.Journal
	logger    *logrus.Logger
	creds     Credentials
	retry     RetryPolicy
	heartbeat time.Duration

	onPositions func(codes []string)

	// uiMu serializes calls into the single threaded trading window.
	uiMu sync.Mutex

	mu        sync.RWMutex
	balance   *models.Table
	positions *models.Table

	stopCh    chan struct{}
	stopOnce  sync.Once
	startOnce sync.Once
}

func NewThsTrader(client uiclient.Client, creds Credentials, logger *logrus.Logger, opts ...Option) *ThsTrader {
	t := &ThsTrader{
		client:    client,
		journal:   journal.NewMemoryJournal(1000),
		logger:    logger,
		creds:     creds,
		retry:     DefaultRetryPolicy(),
		heartbeat: 60 * time.Second,
		stopCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *ThsTrader) BrokerName() string { return BrokerName }

func (t *ThsTrader) Broker() string { return Broker }

func (t *ThsTrader) Journal() journal.Journal { return t.journal }

// Start runs the heartbeat that keeps the brokerage session from timing out.
// Only the first call starts it.
func (t *ThsTrader) Start(ctx context.Context) error {
	if t.heartbeat <= 0 {
		return nil
	}

	t.startOnce.Do(func() {
		t.logger.WithField("interval", t.heartbeat).Info("Starting THS heartbeat")
		go t.keepAlive(ctx)
	})
	return nil
}

func (t *ThsTrader) Stop() {
	t.stopOnce.Do(func() {
		t.logger.Info("Stopping THS trader")
		close(t.stopCh)
	})
}

func (t *ThsTrader) keepAlive(ctx context.Context) {
	ticker := time.NewTicker(t.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stopCh:
			return
		case <-ticker.C:
			t.beat(ctx)
		}
	}
}

// beat refreshes the window and re-reads what a failed or stale fetch left
// behind: the balance when none is cached, positions when someone follows them.
func (t *ThsTrader) beat(ctx context.Context) {
	if err := t.Refresh(ctx); err != nil {
		t.logger.WithError(err).Warn("Heartbeat refresh failed")
		return
	}

	if _, ok := t.cached(&t.balance); !ok {
		if _, err := t.GetBalance(ctx, true); err != nil {
			t.logger.WithError(err).Warn("Heartbeat balance fetch failed")
		}
	}
	if _, ok := t.cached(&t.positions); !ok || t.onPositions != nil {
		if _, _, err := t.GetPositions(ctx, true); err != nil {
			t.logger.WithError(err).Warn("Heartbeat positions fetch failed")
		}
	}
}

func (t *ThsTrader) Login(ctx context.Context) bool {
	t.uiMu.Lock()
	defer t.uiMu.Unlock()

	if err := t.client.Login(ctx, t.creds.Account, t.creds.Password, t.creds.ExePath); err != nil {
		t.logger.WithError(err).Errorf("登录[%s]异常:%v", BrokerName, err)
		return false
	}

	t.logger.WithField("account", t.creds.Account).Info("Logged in")
	return true
}

// Logout closes the trading window. THS has no one-key hang up, so the flag
// is accepted for interface compatibility only.
func (t *ThsTrader) Logout(ctx context.Context, oneKeyHangUp bool) bool {
	return retry(ctx, t.retry, t.logger, "logout", func() bool {
		t.uiMu.Lock()
		defer t.uiMu.Unlock()

		if err := t.client.Exit(ctx); err != nil {
			t.logger.WithError(err).Errorf("%s: 退出失败", BrokerName)
			return false
		}
		return true
	})
}

func (t *ThsTrader) Refresh(ctx context.Context) error {
	t.uiMu.Lock()
	defer t.uiMu.Unlock()

	return t.client.Refresh(ctx)
}

// GetBalance returns the account funds. With fromBroker false a cached
// snapshot is returned when there is one.
func (t *ThsTrader) GetBalance(ctx context.Context, fromBroker bool) (models.Table, error) {
	if !fromBroker {
		if cached, ok := t.cached(&t.balance); ok {
			return cached, nil
		}
	}

	table, err := t.fetch(ctx, t.client.Balance)
	if err != nil {
		return models.Table{}, fmt.Errorf("get balance: %w", err)
	}

	clone := table.Clone()

	t.mu.Lock()
	t.balance = &table
	t.mu.Unlock()

	return clone, nil
}

// GetPositions returns held securities and the name of the P&L column.
func (t *ThsTrader) GetPositions(ctx context.Context, fromBroker bool) (models.Table, string, error) {
	if !fromBroker {
		if cached, ok := t.cached(&t.positions); ok {
			return cached, PositionForegroundColumn, nil
		}
	}

	table, err := t.fetch(ctx, t.client.Position)
	if err != nil {
		return models.Table{}, PositionForegroundColumn, fmt.Errorf("get positions: %w", err)
	}

	clone := table.Clone()

	t.mu.Lock()
	t.positions = &table
	t.mu.Unlock()

	if t.onPositions != nil {
		t.onPositions(PositionCodes(clone))
	}

	return clone, PositionForegroundColumn, nil
}

func (t *ThsTrader) GetCurEntrusts(ctx context.Context) (models.Table, error) {
	table, err := t.fetch(ctx, t.client.TodayEntrusts)
	if err != nil {
		return models.Table{}, fmt.Errorf("get entrusts: %w", err)
	}
	return table, nil
}

func (t *ThsTrader) GetCurDeals(ctx context.Context) (models.Table, error) {
	table, err := t.fetch(ctx, t.client.TodayTrades)
	if err != nil {
		return models.Table{}, fmt.Errorf("get deals: %w", err)
	}
	return table, nil
}

// CurEntrustNo reads the broker entrust number from a row of GetCurEntrusts.
func CurEntrustNo(row []any) string {
	return models.CellString(row, EntrustNoCol)
}

// CurEntrustState reads the state text from a row of GetCurEntrusts.
func CurEntrustState(row []any) string {
	return models.CellString(row, EntrustStateCol)
}

// PositionCodes lists the tradable platform codes held in a positions table,
// which is what the quote feed needs to subscribe to.
func PositionCodes(positions models.Table) []string {
	codes := make([]string, 0, len(positions.Rows))
	for _, row := range positions.Rows {
		code := stockcode.ToPlatform(models.CellString(row, posCodeCol))
		if stockcode.IsValid(code) {
			codes = append(codes, code)
		}
	}
	return codes
}

func (t *ThsTrader) cached(slot **models.Table) (models.Table, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if *slot == nil {
		return models.Table{}, false
	}
	return (*slot).Clone(), true
}

func (t *ThsTrader) fetch(ctx context.Context, get func(context.Context) (*uiclient.Frame, error)) (models.Table, error) {
	t.uiMu.Lock()
	frame, err := get(ctx)
	t.uiMu.Unlock()
	if err != nil {
		return models.Table{}, err
	}
	if frame == nil {
		return models.NewTable(nil, nil)
	}
	return models.NewTable(frame.Columns, frame.Data)
}

// OnTicks reprices cached positions with the latest ticks and moves the
// balance's market value and total asset by the change. Ticks are keyed by
// platform code. Nothing happens until both balance and positions are cached.
func (t *ThsTrader) OnTicks(ticks map[string]models.Tick) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.balance == nil || t.positions == nil {
		return
	}

	marketValue := decimal.Zero
	complete := true
	for i, pos := range t.positions.Rows {
		if len(pos) <= posMarketValueCol {
			t.logger.WithFields(logrus.Fields{
				"row":   i,
				"cells": len(pos),
			}).Warn("Position row too short to reprice")
			complete = false
			continue
		}

		code := stockcode.ToPlatform(models.CellString(pos, posCodeCol))
		if !stockcode.IsValid(code) {
			// allotted bonds show up in positions
			continue
		}
		name := models.CellString(pos, posNameCol)

		tick, ok := ticks[code]
		if !ok {
			t.logger.Warnf("%s: 无法获取%s(%s)的Tick数据", BrokerName, code, name)
			value, ok := t.rowMarketValue(pos, code)
			complete = complete && ok
			marketValue = marketValue.Add(value)
			continue
		}

		volume, errVol := models.CellFloat(pos, posVolumeCol)
		cost, errCost := models.CellFloat(pos, posCostCol)
		if errVol != nil || errCost != nil {
			t.logger.WithFields(logrus.Fields{
				"code":   code,
				"volume": pos[posVolumeCol],
				"cost":   pos[posCostCol],
			}).Warn("Unparseable position row, keeping last market value")
			value, ok := t.rowMarketValue(pos, code)
			complete = complete && ok
			marketValue = marketValue.Add(value)
			continue
		}

		price := decimal.NewFromFloat(tick.Price)
		vol := decimal.NewFromFloat(volume)
		value := price.Mul(vol)

		pos[posMarketValueCol] = value.InexactFloat64()
		pos[posPriceCol] = tick.Price
		pos[posPnLCol] = price.Sub(decimal.NewFromFloat(cost)).Mul(vol).InexactFloat64()

		marketValue = marketValue.Add(value)
	}

	if len(t.positions.Rows) == 0 || len(t.balance.Rows) == 0 {
		return
	}
	if !complete {
		// a partial total would understate the account
		t.logger.Warn("Position market value incomplete, balance left unchanged")
		return
	}

	balance := t.balance.Rows[0]
	if len(balance) <= balanceTotalAssetCol || len(balance) < -balanceMarketValueCol {
		t.logger.WithField("cells", len(balance)).Warn("Balance row too short to update")
		return
	}

	oldValue, err := models.CellFloat(balance, balanceMarketValueCol)
	if err != nil {
		t.logger.WithError(err).Warn("Unparseable balance market value")
		return
	}
	totalAsset, err := models.CellFloat(balance, balanceTotalAssetCol)
	if err != nil {
		t.logger.WithError(err).Warn("Unparseable balance total asset")
		return
	}

	delta := marketValue.Sub(decimal.NewFromFloat(oldValue))
	balance[len(balance)+balanceMarketValueCol] = marketValue.InexactFloat64()
	balance[balanceTotalAssetCol] = decimal.NewFromFloat(totalAsset).Add(delta).InexactFloat64()
}

func (t *ThsTrader) rowMarketValue(pos []any, code string) (decimal.Decimal, bool) {
	v, err := models.CellFloat(pos, posMarketValueCol)
	if err != nil {
		t.logger.WithError(err).WithField("code", code).Warn("Unparseable position market value")
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(v), true
}

func (t *ThsTrader) Buy(ctx context.Context, code, name string, price float64, volume int) bool {
	return t.submit(ctx, models.OrderSideBuy, code, name, price, volume)
}

func (t *ThsTrader) Sell(ctx context.Context, code, name string, price float64, volume int) bool {
	return t.submit(ctx, models.OrderSideSell, code, name, price, volume)
}

func (t *ThsTrader) submit(ctx context.Context, side models.OrderSide, code, name string, price float64, volume int) bool {
	verb, place, action := "买入", t.client.Buy, models.JournalActionBuy
	if side == models.OrderSideSell {
		verb, place, action = "卖出", t.client.Sell, models.JournalActionSell
	}

	var entrustNo, message string
	ok := retry(ctx, t.retry, t.logger, string(side), func() bool {
		t.uiMu.Lock()
		defer t.uiMu.Unlock()

		reply, err := place(ctx, stockcode.ToBroker(code), price, volume)
		if err != nil {
			message = err.Error()
			t.logger.WithError(err).Errorf("%s: %s, %s[%s], %d股, 价格%v: 失败: %v", BrokerName, verb, code, name, volume, price, err)
			return false
		}
		if reply == nil {
			message = "no reply from trading window"
			t.logger.Warnf("%s: %s, %s[%s], %d股, 价格%v: 无返回", BrokerName, verb, code, name, volume, price)
			return false
		}

		entrustNo, message = reply.EntrustNo, reply.Message
		return true
	})

	t.record(ctx, models.JournalEntry{
		Action:          action,
		Code:            code,
		Name:            name,
		Price:           price,
		Volume:          volume,
		BrokerEntrustID: entrustNo,
		OK:              ok,
		Message:         message,
	})

	return ok
}

func (t *ThsTrader) Cancel(ctx context.Context, entrust models.Entrust) bool {
	var message string
	ok := retry(ctx, t.retry, t.logger, "cancel", func() bool {
		t.uiMu.Lock()
		defer t.uiMu.Unlock()

		reply, err := t.client.CancelEntrust(ctx, entrust.BrokerEntrustID)
		if err != nil {
			message = err.Error()
			t.logger.WithError(err).Errorf("%s: 撤单[%s(%s), 委托号%s]异常", BrokerName, entrust.Name, entrust.Code, entrust.BrokerEntrustID)
			return false
		}
		if reply == nil {
			message = "no reply from trading window"
			t.logger.Warnf("%s: 撤单[%s(%s), 委托号%s]无返回", BrokerName, entrust.Name, entrust.Code, entrust.BrokerEntrustID)
			return false
		}

		message = reply.Message
		if isCancelError(message) {
			t.logger.Warnf("%s: 撤单[%s(%s), 委托号%s]错误:%s", BrokerName, entrust.Name, entrust.Code, entrust.BrokerEntrustID, message)
			return false
		}
		return true
	})

	t.record(ctx, models.JournalEntry{
		Action:          models.JournalActionCancel,
		Code:            entrust.Code,
		Name:            entrust.Name,
		BrokerEntrustID: entrust.BrokerEntrustID,
		OK:              ok,
		Message:         message,
	})

	return ok
}

func isCancelError(message string) bool {
	for _, marker := range cancelErrorMarkers {
		if strings.Contains(message, marker) {
			return true
		}
	}
	return false
}

func (t *ThsTrader) record(ctx context.Context, entry models.JournalEntry) {
	if t.journal == nil {
		return
	}
	entry.CreatedAt = time.Now()
	if err := t.journal.Record(ctx, entry); err != nil {
		t.logger.WithError(err).WithField("action", entry.Action).Error("Failed to record journal entry")
	}
}
