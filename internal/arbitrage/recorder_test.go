package arbitrage

import (
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"arblog/internal/database"
	"arblog/internal/model"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Append(ctx context.Context, attempt model.ArbitrageAttempt) (int64, error) {
	args := m.Called(ctx, attempt)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepository) Get(ctx context.Context, id int64) (model.ArbitrageAttempt, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(model.ArbitrageAttempt), args.Error(1)
}

func (m *MockRepository) Query(ctx context.Context, filter model.Filter) iter.Seq2[model.ArbitrageAttempt, error] {
	args := m.Called(ctx, filter)
	return args.Get(0).(iter.Seq2[model.ArbitrageAttempt, error])
}

func (m *MockRepository) Stats(ctx context.Context, filter model.Filter) (model.Stats, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(model.Stats), args.Error(1)
}

func triangle() Cycle {
	return Cycle{
		BaseToken: "USDT",
		Hops: []Hop{
			{From: "USDT", To: "WBNB", Router: "pancakeswap"},
			{From: "WBNB", To: "CAKE", Router: "biswap"},
			{From: "CAKE", To: "USDT", Router: "pancakeswap"},
		},
		StartAmount: decimal.RequireFromString("1000"),
		EndAmount:   decimal.RequireFromString("1005.25"),
	}
}

func TestAttemptFromCycle(t *testing.T) {
	a, err := AttemptFromCycle(triangle())
	require.NoError(t, err)

	assert.Equal(t, "USDT→WBNB→CAKE→USDT", a.Path)
	assert.Equal(t, "pancakeswap,biswap,pancakeswap", a.Routers)
	assert.Equal(t, "5.25", a.ProfitUSDT.Decimal.String())
	assert.Equal(t, "0.525", a.ProfitPercentage.Decimal.String())
	assert.False(t, a.Executed)

	_, err = model.Prepare(a)
	assert.NoError(t, err, "a recorded cycle must satisfy the log constraints")
}

func TestAttemptFromCycle_Broken(t *testing.T) {
	c := triangle()
	c.Hops[1].From = "ETH"
	_, err := AttemptFromCycle(c)
	assert.True(t, errors.Is(err, ErrBrokenCycle))

	_, err = AttemptFromCycle(Cycle{})
	assert.True(t, errors.Is(err, ErrBrokenCycle))
}

func TestRecorder_RecordCycle(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	t.Run("appended", func(t *testing.T) {
		mockRepo := new(MockRepository)
		mockRepo.On("Append", mock.Anything, mock.MatchedBy(func(a model.ArbitrageAttempt) bool {
			return a.Path == "USDT→WBNB→CAKE→USDT" && a.Executed
		})).Return(int64(7), nil).Once()

		c := triangle()
		c.Executed = true
		id, err := NewRecorder(logger, mockRepo).RecordCycle(context.Background(), c)
		require.NoError(t, err)
		assert.Equal(t, int64(7), id)
		mockRepo.AssertExpectations(t)
	})

	t.Run("storage unavailable", func(t *testing.T) {
		mockRepo := new(MockRepository)
		mockRepo.On("Append", mock.Anything, mock.Anything).Return(int64(0), database.ErrStorageUnavailable).Once()

		_, err := NewRecorder(logger, mockRepo).RecordCycle(context.Background(), triangle())
		assert.True(t, errors.Is(err, database.ErrStorageUnavailable))
		mockRepo.AssertExpectations(t)
	})

	t.Run("broken cycle is not appended", func(t *testing.T) {
		mockRepo := new(MockRepository)
		c := triangle()
		c.Hops = c.Hops[:2]
		c.Hops[1].To = "ETH"
		c.Hops = append(c.Hops, Hop{From: "CAKE", To: "USDT", Router: "x"})

		_, err := NewRecorder(logger, mockRepo).RecordCycle(context.Background(), c)
		assert.Error(t, err)
		mockRepo.AssertNotCalled(t, "Append")
	})
}
