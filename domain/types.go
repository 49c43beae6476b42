package domain

import "time"

// TradeAction is the closed set of directional trade actions a caller may
// request.
type TradeAction string

const (
	ActionBuy      TradeAction = "buy"
	ActionSell     TradeAction = "sell"
	ActionBuyLimit TradeAction = "buy_limit"
	ActionSellLimit TradeAction = "sell_limit"
	ActionBuyStop  TradeAction = "buy_stop"
	ActionSellStop TradeAction = "sell_stop"
)

var validTradeActions = map[TradeAction]bool{
	ActionBuy: true, ActionSell: true,
	ActionBuyLimit: true, ActionSellLimit: true,
	ActionBuyStop: true, ActionSellStop: true,
}

// OrderType distinguishes pending order styles from immediate market fills.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
	OrderTypeStop   OrderType = "stop"
)

var validOrderTypes = map[OrderType]bool{
	OrderTypeMarket: true, OrderTypeLimit: true, OrderTypeStop: true,
}

// OrderStatus reports a pending order's lifecycle position.
type OrderStatus string

const (
	OrderStatusPending  OrderStatus = "pending"
	OrderStatusFilled   OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusRejected OrderStatus = "rejected"
)

// Timeframe is the closed set of OHLC bar periods.
type Timeframe string

const (
	TimeframeM1  Timeframe = "M1"
	TimeframeM5  Timeframe = "M5"
	TimeframeM15 Timeframe = "M15"
	TimeframeM30 Timeframe = "M30"
	TimeframeH1  Timeframe = "H1"
	TimeframeH4  Timeframe = "H4"
	TimeframeD1  Timeframe = "D1"
	TimeframeW1  Timeframe = "W1"
	TimeframeMN1 Timeframe = "MN1"
)

var validTimeframes = map[Timeframe]bool{
	TimeframeM1: true, TimeframeM5: true, TimeframeM15: true, TimeframeM30: true,
	TimeframeH1: true, TimeframeH4: true, TimeframeD1: true, TimeframeW1: true,
	TimeframeMN1: true,
}

// Tick is one best bid/ask snapshot for a symbol.
type Tick struct {
	Symbol    string
	Bid       float64
	Ask       float64
	Timestamp time.Time
}

// OHLC is one completed (or in-progress) bar for a symbol/timeframe.
type OHLC struct {
	Symbol    string
	Timeframe Timeframe
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	Timestamp time.Time
}

// Trade is a confirmed execution returned from the broker.
type Trade struct {
	ID        string
	OrderID   string
	Symbol    string
	Action    TradeAction
	Volume    float64
	Price     float64
	Timestamp time.Time
}

// Order is a pending (not yet filled) order.
type Order struct {
	ID        string
	Symbol    string
	Type      OrderType
	Action    TradeAction
	Volume    float64
	Price     float64
	Status    OrderStatus
	Timestamp time.Time
}

// Position is an open position against an account.
type Position struct {
	ID           string
	Symbol       string
	Action       TradeAction
	Volume       float64
	OpenPrice    float64
	CurrentPrice float64
	Profit       float64
	OpenedAt     time.Time
}

// Account is the account summary returned by an account-info call.
type Account struct {
	Balance    float64
	Equity     float64
	Margin     float64
	FreeMargin float64
	Currency   string
	Leverage   int
}

// SymbolInfo describes a tradable instrument's static properties.
type SymbolInfo struct {
	Symbol     string
	Digits     int
	MinVolume  float64
	MaxVolume  float64
	VolumeStep float64
}
