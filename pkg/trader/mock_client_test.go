package trader

import (
	"context"

	"github.com/gregtusar/thstrader/pkg/uiclient"
	"github.com/stretchr/testify/mock"
)

type mockUIClient struct {
	mock.Mock
}

func (m *mockUIClient) Login(ctx context.Context, user, password, exePath string) error {
	return m.Called(user, password, exePath).Error(0)
}

func (m *mockUIClient) Exit(ctx context.Context) error {
	return m.Called().Error(0)
}

func (m *mockUIClient) Refresh(ctx context.Context) error {
	return m.Called().Error(0)
}

func (m *mockUIClient) Balance(ctx context.Context) (*uiclient.Frame, error) {
	args := m.Called()
	return frameOf(args), args.Error(1)
}

func (m *mockUIClient) Position(ctx context.Context) (*uiclient.Frame, error) {
	args := m.Called()
	return frameOf(args), args.Error(1)
}

func (m *mockUIClient) TodayEntrusts(ctx context.Context) (*uiclient.Frame, error) {
	args := m.Called()
	return frameOf(args), args.Error(1)
}

func (m *mockUIClient) TodayTrades(ctx context.Context) (*uiclient.Frame, error) {
	args := m.Called()
	return frameOf(args), args.Error(1)
}

func (m *mockUIClient) Buy(ctx context.Context, security string, price float64, amount int) (*uiclient.OrderReply, error) {
	args := m.Called(security, price, amount)
	reply, _ := args.Get(0).(*uiclient.OrderReply)
	return reply, args.Error(1)
}

func (m *mockUIClient) Sell(ctx context.Context, security string, price float64, amount int) (*uiclient.OrderReply, error) {
	args := m.Called(security, price, amount)
	reply, _ := args.Get(0).(*uiclient.OrderReply)
	return reply, args.Error(1)
}

func (m *mockUIClient) CancelEntrust(ctx context.Context, entrustNo string) (*uiclient.CancelReply, error) {
	args := m.Called(entrustNo)
	reply, _ := args.Get(0).(*uiclient.CancelReply)
	return reply, args.Error(1)
}

// frameOf accepts either a frame or a func building a fresh one per call.
func frameOf(args mock.Arguments) *uiclient.Frame {
	if build, ok := args.Get(0).(func() *uiclient.Frame); ok {
		return build()
	}
	frame, _ := args.Get(0).(*uiclient.Frame)
	return frame
}
