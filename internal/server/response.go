package server

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/margex/gotrade/internal/domain"
)

// ApiResponse is the envelope every endpoint returns.
type ApiResponse struct {
	Success   bool      `json:"success"`
	Data      any       `json:"data,omitempty"`
	Error     *ApiError `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"requestId"`
}

type ApiError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Page wraps a list payload with pagination totals.
type Page struct {
	Items  any `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

func ok(c *gin.Context, status int, data any) {
	c.JSON(status, ApiResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC(),
		RequestID: requestID(c),
	})
}

func fail(c *gin.Context, err error) {
	var details map[string]any
	msg := err.Error()
	var e *domain.Error
	if errors.As(err, &e) {
		details = e.Context
		msg = e.Message
	}
	code := string(domain.KindOf(err))

	c.JSON(domain.StatusOf(err), ApiResponse{
		Success: false,
		Error: &ApiError{
			Code:    code,
			Message: msg,
			Details: details,
		},
		Timestamp: time.Now().UTC(),
		RequestID: requestID(c),
	})
}

// OrderResponse is the wire shape of an order.
type OrderResponse struct {
	ID           string           `json:"id"`
	Symbol       string           `json:"symbol"`
	Quantity     decimal.Decimal  `json:"quantity"`
	PricePerUnit decimal.Decimal  `json:"pricePerUnit"`
	OrderType    domain.OrderType `json:"orderType"`
	Direction    domain.Direction `json:"direction"`
	Status       string           `json:"status"`
	CreatedAt    time.Time        `json:"createdAt"`
	FilledAt     *time.Time       `json:"filledAt,omitempty"`
	CancelledAt  *time.Time       `json:"cancelledAt,omitempty"`
}

func toOrderResponse(o domain.Order) OrderResponse {
	return OrderResponse{
		ID:           o.ID,
		Symbol:       o.Symbol,
		Quantity:     o.Quantity,
		PricePerUnit: o.PricePerUnit,
		OrderType:    o.OrderType,
		Direction:    o.Direction,
		Status:       string(o.Status),
		CreatedAt:    o.CreatedAt,
		FilledAt:     o.FilledAt,
		CancelledAt:  o.CancelledAt,
	}
}

// PositionResponse adds the derived PnL percentage to the stored
// position fields.
type PositionResponse struct {
	ID                  string           `json:"id"`
	OrderID             string           `json:"orderId"`
	Symbol              string           `json:"symbol"`
	Quantity            decimal.Decimal  `json:"quantity"`
	EntryPrice          decimal.Decimal  `json:"entryPrice"`
	CurrentPrice        decimal.Decimal  `json:"currentPrice"`
	Direction           domain.Direction `json:"direction"`
	Status              string           `json:"status"`
	UnrealizedPL        decimal.Decimal  `json:"unrealizedPL"`
	UnrealizedPLPercent decimal.Decimal  `json:"unrealizedPLPercent"`
	Margin              decimal.Decimal  `json:"margin"`
	OpenedAt            time.Time        `json:"openedAt"`
	ClosedAt            *time.Time       `json:"closedAt,omitempty"`
}

func toPositionResponse(p domain.Position) PositionResponse {
	return PositionResponse{
		ID:                  p.ID,
		OrderID:             p.OrderID,
		Symbol:              p.Symbol,
		Quantity:            p.Quantity,
		EntryPrice:          p.EntryPrice,
		CurrentPrice:        p.CurrentPrice,
		Direction:           p.Direction,
		Status:              string(p.Status),
		UnrealizedPL:        p.UnrealizedPL,
		UnrealizedPLPercent: p.UnrealizedPLPercent(),
		Margin:              p.Margin(),
		OpenedAt:            p.OpenedAt,
		ClosedAt:            p.ClosedAt,
	}
}

// TradeResponse adds the holding duration to the stored trade fields.
type TradeResponse struct {
	ID         string           `json:"id"`
	OrderID    string           `json:"orderId"`
	PositionID string           `json:"positionId"`
	Symbol     string           `json:"symbol"`
	EntryPrice decimal.Decimal  `json:"entryPrice"`
	ExitPrice  decimal.Decimal  `json:"exitPrice"`
	Quantity   decimal.Decimal  `json:"quantity"`
	Direction  domain.Direction `json:"direction"`
	RealizedPL decimal.Decimal  `json:"realizedPL"`
	Fee        decimal.Decimal  `json:"fee"`
	NetProfit  decimal.Decimal  `json:"netProfit"`
	Duration   string           `json:"duration"`
	OpenedAt   time.Time        `json:"openedAt"`
	ClosedAt   time.Time        `json:"closedAt"`
}

func toTradeResponse(t domain.Trade) TradeResponse {
	return TradeResponse{
		ID:         t.ID,
		OrderID:    t.OrderID,
		PositionID: t.PositionID,
		Symbol:     t.Symbol,
		EntryPrice: t.EntryPrice,
		ExitPrice:  t.ExitPrice,
		Quantity:   t.Quantity,
		Direction:  t.Direction,
		RealizedPL: t.RealizedPL,
		Fee:        t.Fee,
		NetProfit:  t.NetProfit,
		Duration:   t.Duration().String(),
		OpenedAt:   t.OpenedAt,
		ClosedAt:   t.ClosedAt,
	}
}
