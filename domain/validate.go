package domain

import "github.com/jonwraymond/mt5gateway/gwerrors"

func requireSymbol(symbol string) error {
	if symbol == "" {
		return gwerrors.New(gwerrors.KindValidation, gwerrors.CodeInvalidSymbol, "symbol is required")
	}
	return nil
}

func validateTradeAction(action TradeAction) error {
	if !validTradeActions[action] {
		return gwerrors.New(gwerrors.KindValidation, gwerrors.CodeTradeRejected, "unknown trade action: "+string(action))
	}
	return nil
}

func validateOrderType(t OrderType) error {
	if !validOrderTypes[t] {
		return gwerrors.New(gwerrors.KindValidation, gwerrors.CodeTradeRejected, "unknown order type: "+string(t))
	}
	return nil
}

func validateTimeframe(tf Timeframe) error {
	if !validTimeframes[tf] {
		return gwerrors.New(gwerrors.KindValidation, gwerrors.CodeInvalidTimeframe, "unknown timeframe: "+string(tf))
	}
	return nil
}

func validateVolume(volume float64) error {
	if volume <= 0 {
		return gwerrors.New(gwerrors.KindValidation, gwerrors.CodeInvalidVolume, "volume must be positive")
	}
	return nil
}
