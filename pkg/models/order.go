package models

import (
	"time"
)

type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Entrust is the platform's reference to an order already submitted to the broker.
type Entrust struct {
	Code            string
	Name            string
	BrokerEntrustID string
}

type OrderRequest struct {
	Side   OrderSide `json:"side"`
	Code   string    `json:"code"`
	Name   string    `json:"name"`
	Price  float64   `json:"price"`
	Volume int       `json:"volume"`
}

type JournalAction string

const (
	JournalActionBuy    JournalAction = "buy"
	JournalActionSell   JournalAction = "sell"
	JournalActionCancel JournalAction = "cancel"
)

// JournalEntry records one order submission or cancel attempt and how it ended.
type JournalEntry struct {
	ID              int64         `json:"id"`
	Action          JournalAction `json:"action"`
	Code            string        `json:"code"`
	Name            string        `json:"name"`
	Price           float64       `json:"price"`
	Volume          int           `json:"volume"`
	BrokerEntrustID string        `json:"broker_entrust_id"`
	OK              bool          `json:"ok"`
	Message         string        `json:"message"`
	CreatedAt       time.Time     `json:"created_at"`
}
