// Package uiclient talks to the UI automation layer that drives the THS
// desktop trading window.
package uiclient

import (
	"context"
)

// Client is the set of operations the UI automation layer exposes. The window
// it drives is single threaded, so callers must not issue calls concurrently.
type Client interface {
	Login(ctx context.Context, user, password, exePath string) error
	Exit(ctx context.Context) error
	Balance(ctx context.Context) (*Frame, error)
	Position(ctx context.Context) (*Frame, error)
	TodayEntrusts(ctx context.Context) (*Frame, error)
	TodayTrades(ctx context.Context) (*Frame, error)
	// Buy and Sell return a nil reply when the window produced no result.
	Buy(ctx context.Context, security string, price float64, amount int) (*OrderReply, error)
	Sell(ctx context.Context, security string, price float64, amount int) (*OrderReply, error)
	CancelEntrust(ctx context.Context, entrustNo string) (*CancelReply, error)
	Refresh(ctx context.Context) error
}

// Frame is a grid read from the trading window, in column/data split form.
type Frame struct {
	Columns []string `json:"columns"`
	Data    [][]any  `json:"data"`
}

type OrderReply struct {
	EntrustNo string `json:"entrust_no"`
	Message   string `json:"message"`
}

type CancelReply struct {
	Message string `json:"message"`
}
