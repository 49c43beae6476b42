package domain

import "github.com/jonwraymond/mt5gateway/gwerrors"

// TradeRequest is the validated payload for an executeTrade call. Price is
// ignored for market orders (Type omitted or OrderTypeMarket).
type TradeRequest struct {
	Symbol string
	Action TradeAction
	Volume float64
	Price  float64
	Type   OrderType
}

// Validate enforces the field presence and enum membership a translator
// would otherwise discover only after a round trip to the broker.
func (r TradeRequest) Validate() error {
	if err := requireSymbol(r.Symbol); err != nil {
		return err
	}
	if err := validateTradeAction(r.Action); err != nil {
		return err
	}
	if err := validateVolume(r.Volume); err != nil {
		return err
	}
	if r.Type != "" {
		if err := validateOrderType(r.Type); err != nil {
			return err
		}
	}
	return nil
}

// ToPayload renders the request as the broker wire shape.
func (r TradeRequest) ToPayload() map[string]any {
	orderType := r.Type
	if orderType == "" {
		orderType = OrderTypeMarket
	}
	return map[string]any{
		"symbol": r.Symbol,
		"action": string(r.Action),
		"volume": r.Volume,
		"price":  r.Price,
		"type":   string(orderType),
	}
}

// ModifyOrderRequest adjusts a pending order's price and/or volume.
type ModifyOrderRequest struct {
	OrderID string
	Price   float64
	Volume  float64
}

func (r ModifyOrderRequest) Validate() error {
	if r.OrderID == "" {
		return gwerrors.New(gwerrors.KindValidation, gwerrors.CodeOrderNotFound, "orderId is required")
	}
	if r.Volume != 0 {
		if err := validateVolume(r.Volume); err != nil {
			return err
		}
	}
	return nil
}

func (r ModifyOrderRequest) ToPayload() map[string]any {
	return map[string]any{
		"orderId": r.OrderID,
		"price":   r.Price,
		"volume":  r.Volume,
	}
}

// OHLCRequest asks for up to Count historical bars of Timeframe for Symbol.
type OHLCRequest struct {
	Symbol    string
	Timeframe Timeframe
	Count     int
}

func (r OHLCRequest) Validate() error {
	if err := requireSymbol(r.Symbol); err != nil {
		return err
	}
	if err := validateTimeframe(r.Timeframe); err != nil {
		return err
	}
	if r.Count <= 0 {
		return gwerrors.New(gwerrors.KindValidation, gwerrors.CodeInvalidTimeframe, "count must be positive")
	}
	return nil
}

func (r OHLCRequest) ToPayload() map[string]any {
	return map[string]any{
		"symbol":    r.Symbol,
		"timeframe": string(r.Timeframe),
		"count":     r.Count,
	}
}
