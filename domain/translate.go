package domain

import (
	"encoding/json"
	"time"

	"github.com/jonwraymond/mt5gateway/gwerrors"
)

// wireTick mirrors the broker's tick event/response payload shape.
type wireTick struct {
	Symbol    string  `json:"symbol"`
	Bid       float64 `json:"bid"`
	Ask       float64 `json:"ask"`
	Timestamp int64   `json:"timestamp"`
}

// FromTickPayload translates a broker tick payload into a Tick, validating
// the symbol and coercing the millisecond-epoch timestamp.
func FromTickPayload(data json.RawMessage) (Tick, error) {
	var w wireTick
	if err := json.Unmarshal(data, &w); err != nil {
		return Tick{}, gwerrors.Wrap(err, gwerrors.KindValidation, gwerrors.CodeSerialization)
	}
	if err := requireSymbol(w.Symbol); err != nil {
		return Tick{}, err
	}
	return Tick{
		Symbol:    w.Symbol,
		Bid:       w.Bid,
		Ask:       w.Ask,
		Timestamp: epochMsToTime(w.Timestamp),
	}, nil
}

type wireOHLC struct {
	Symbol    string  `json:"symbol"`
	Timeframe string  `json:"timeframe"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	Timestamp int64   `json:"timestamp"`
}

// FromOHLCPayload translates a broker OHLC bar payload into an OHLC entity.
func FromOHLCPayload(data json.RawMessage) (OHLC, error) {
	var w wireOHLC
	if err := json.Unmarshal(data, &w); err != nil {
		return OHLC{}, gwerrors.Wrap(err, gwerrors.KindValidation, gwerrors.CodeSerialization)
	}
	if err := requireSymbol(w.Symbol); err != nil {
		return OHLC{}, err
	}
	tf := Timeframe(w.Timeframe)
	if err := validateTimeframe(tf); err != nil {
		return OHLC{}, err
	}
	return OHLC{
		Symbol:    w.Symbol,
		Timeframe: tf,
		Open:      w.Open,
		High:      w.High,
		Low:       w.Low,
		Close:     w.Close,
		Volume:    w.Volume,
		Timestamp: epochMsToTime(w.Timestamp),
	}, nil
}

// FromOHLCListPayload translates a broker OHLC series response.
func FromOHLCListPayload(data json.RawMessage) ([]OHLC, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, gwerrors.Wrap(err, gwerrors.KindValidation, gwerrors.CodeSerialization)
	}
	out := make([]OHLC, 0, len(raw))
	for _, r := range raw {
		bar, err := FromOHLCPayload(r)
		if err != nil {
			return nil, err
		}
		out = append(out, bar)
	}
	return out, nil
}

type wireTrade struct {
	ID        string  `json:"id"`
	OrderID   string  `json:"orderId"`
	Symbol    string  `json:"symbol"`
	Action    string  `json:"action"`
	Volume    float64 `json:"volume"`
	Price     float64 `json:"price"`
	Timestamp int64   `json:"timestamp"`
}

// FromTradePayload translates a broker trade-execution payload into a Trade.
func FromTradePayload(data json.RawMessage) (Trade, error) {
	var w wireTrade
	if err := json.Unmarshal(data, &w); err != nil {
		return Trade{}, gwerrors.Wrap(err, gwerrors.KindValidation, gwerrors.CodeSerialization)
	}
	if err := requireSymbol(w.Symbol); err != nil {
		return Trade{}, err
	}
	action := TradeAction(w.Action)
	if err := validateTradeAction(action); err != nil {
		return Trade{}, err
	}
	if err := validateVolume(w.Volume); err != nil {
		return Trade{}, err
	}
	return Trade{
		ID:        w.ID,
		OrderID:   w.OrderID,
		Symbol:    w.Symbol,
		Action:    action,
		Volume:    w.Volume,
		Price:     w.Price,
		Timestamp: epochMsToTime(w.Timestamp),
	}, nil
}

type wireOrder struct {
	ID        string  `json:"id"`
	Symbol    string  `json:"symbol"`
	Type      string  `json:"type"`
	Action    string  `json:"action"`
	Volume    float64 `json:"volume"`
	Price     float64 `json:"price"`
	Status    string  `json:"status"`
	Timestamp int64   `json:"timestamp"`
}

// FromOrderPayload translates a broker order payload into an Order.
func FromOrderPayload(data json.RawMessage) (Order, error) {
	var w wireOrder
	if err := json.Unmarshal(data, &w); err != nil {
		return Order{}, gwerrors.Wrap(err, gwerrors.KindValidation, gwerrors.CodeSerialization)
	}
	if err := requireSymbol(w.Symbol); err != nil {
		return Order{}, err
	}
	orderType := OrderType(w.Type)
	if err := validateOrderType(orderType); err != nil {
		return Order{}, err
	}
	action := TradeAction(w.Action)
	if err := validateTradeAction(action); err != nil {
		return Order{}, err
	}
	return Order{
		ID:        w.ID,
		Symbol:    w.Symbol,
		Type:      orderType,
		Action:    action,
		Volume:    w.Volume,
		Price:     w.Price,
		Status:    OrderStatus(w.Status),
		Timestamp: epochMsToTime(w.Timestamp),
	}, nil
}

// FromOrderListPayload translates a broker order-list response.
func FromOrderListPayload(data json.RawMessage) ([]Order, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, gwerrors.Wrap(err, gwerrors.KindValidation, gwerrors.CodeSerialization)
	}
	out := make([]Order, 0, len(raw))
	for _, r := range raw {
		o, err := FromOrderPayload(r)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

type wirePosition struct {
	ID           string  `json:"id"`
	Symbol       string  `json:"symbol"`
	Action       string  `json:"action"`
	Volume       float64 `json:"volume"`
	OpenPrice    float64 `json:"openPrice"`
	CurrentPrice float64 `json:"currentPrice"`
	Profit       float64 `json:"profit"`
	OpenTime     int64   `json:"openTime"`
}

// FromPositionPayload translates a broker position payload into a Position.
func FromPositionPayload(data json.RawMessage) (Position, error) {
	var w wirePosition
	if err := json.Unmarshal(data, &w); err != nil {
		return Position{}, gwerrors.Wrap(err, gwerrors.KindValidation, gwerrors.CodeSerialization)
	}
	if err := requireSymbol(w.Symbol); err != nil {
		return Position{}, err
	}
	action := TradeAction(w.Action)
	if err := validateTradeAction(action); err != nil {
		return Position{}, err
	}
	return Position{
		ID:           w.ID,
		Symbol:       w.Symbol,
		Action:       action,
		Volume:       w.Volume,
		OpenPrice:    w.OpenPrice,
		CurrentPrice: w.CurrentPrice,
		Profit:       w.Profit,
		OpenedAt:     epochMsToTime(w.OpenTime),
	}, nil
}

// FromPositionListPayload translates a broker position-list response.
func FromPositionListPayload(data json.RawMessage) ([]Position, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, gwerrors.Wrap(err, gwerrors.KindValidation, gwerrors.CodeSerialization)
	}
	out := make([]Position, 0, len(raw))
	for _, r := range raw {
		p, err := FromPositionPayload(r)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

type wireAccount struct {
	Balance    float64 `json:"balance"`
	Equity     float64 `json:"equity"`
	Margin     float64 `json:"margin"`
	FreeMargin float64 `json:"freeMargin"`
	Currency   string  `json:"currency"`
	Leverage   int     `json:"leverage"`
}

// FromAccountPayload translates a broker account-info payload into an
// Account.
func FromAccountPayload(data json.RawMessage) (Account, error) {
	var w wireAccount
	if err := json.Unmarshal(data, &w); err != nil {
		return Account{}, gwerrors.Wrap(err, gwerrors.KindValidation, gwerrors.CodeSerialization)
	}
	if w.Currency == "" {
		return Account{}, gwerrors.New(gwerrors.KindValidation, gwerrors.CodeAccountQuery, "account payload missing currency")
	}
	return Account{
		Balance:    w.Balance,
		Equity:     w.Equity,
		Margin:     w.Margin,
		FreeMargin: w.FreeMargin,
		Currency:   w.Currency,
		Leverage:   w.Leverage,
	}, nil
}

type wireSymbolInfo struct {
	Symbol     string  `json:"symbol"`
	Digits     int     `json:"digits"`
	MinVolume  float64 `json:"minVolume"`
	MaxVolume  float64 `json:"maxVolume"`
	VolumeStep float64 `json:"volumeStep"`
}

// FromSymbolInfoPayload translates a broker symbol-info payload.
func FromSymbolInfoPayload(data json.RawMessage) (SymbolInfo, error) {
	var w wireSymbolInfo
	if err := json.Unmarshal(data, &w); err != nil {
		return SymbolInfo{}, gwerrors.Wrap(err, gwerrors.KindValidation, gwerrors.CodeSerialization)
	}
	if err := requireSymbol(w.Symbol); err != nil {
		return SymbolInfo{}, err
	}
	return SymbolInfo{
		Symbol:     w.Symbol,
		Digits:     w.Digits,
		MinVolume:  w.MinVolume,
		MaxVolume:  w.MaxVolume,
		VolumeStep: w.VolumeStep,
	}, nil
}

func epochMsToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
