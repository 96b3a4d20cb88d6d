package trade

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Aidin1998/swapdesk/internal/repository"
)

// MockRepository implements repository.ItemRepository for testing.
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) IsOwned(ctx context.Context, participantID, itemRef string) (bool, error) {
	args := m.Called(ctx, participantID, itemRef)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) CurrencyBalance(ctx context.Context, participantID string) (decimal.Decimal, error) {
	args := m.Called(ctx, participantID)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockRepository) AtomicCrossTransfer(ctx context.Context, partyA, partyB string, giveA, giveB repository.Stake) error {
	args := m.Called(ctx, partyA, partyB, giveA, giveB)
	return args.Error(0)
}

func TestSettlerCommitsWhenAllStakesValid(t *testing.T) {
	repo := new(MockRepository)
	settler := NewSettler(zap.NewNop(), repo)

	giveA := repository.Stake{Items: []string{"x1"}, Currency: decimal.Zero}
	giveB := repository.Stake{Items: nil, Currency: decimal.NewFromInt(25)}

	repo.On("IsOwned", mock.Anything, "alice", "x1").Return(true, nil)
	repo.On("CurrencyBalance", mock.Anything, "bob").Return(decimal.NewFromInt(30), nil)
	repo.On("AtomicCrossTransfer", mock.Anything, "alice", "bob", giveA, giveB).Return(nil)

	outcome := settler.Settle(context.Background(), "alice", "bob", giveA, giveB)
	assert.Equal(t, StateSettled, outcome.State)
	assert.Equal(t, "settled", outcome.Reason)
	repo.AssertExpectations(t)
}

func TestSettlerAbortsOnStaleOwnership(t *testing.T) {
	repo := new(MockRepository)
	settler := NewSettler(zap.NewNop(), repo)

	giveA := repository.Stake{Items: []string{"x1", "x2"}}
	giveB := repository.Stake{}

	repo.On("IsOwned", mock.Anything, "alice", "x1").Return(true, nil)
	repo.On("IsOwned", mock.Anything, "alice", "x2").Return(false, nil)

	outcome := settler.Settle(context.Background(), "alice", "bob", giveA, giveB)
	assert.Equal(t, StateFailed, outcome.State)
	require.Len(t, outcome.Violations, 1)
	assert.Equal(t, "x2", outcome.Violations[0].ItemRef)
	assert.Contains(t, outcome.Reason, "x2")
	// No transfer is ever requested.
	repo.AssertNotCalled(t, "AtomicCrossTransfer", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSettlerAbortsOnInsufficientBalance(t *testing.T) {
	repo := new(MockRepository)
	settler := NewSettler(zap.NewNop(), repo)

	giveA := repository.Stake{Currency: decimal.NewFromInt(100)}
	giveB := repository.Stake{}

	repo.On("CurrencyBalance", mock.Anything, "alice").Return(decimal.NewFromInt(99), nil)

	outcome := settler.Settle(context.Background(), "alice", "bob", giveA, giveB)
	assert.Equal(t, StateFailed, outcome.State)
	require.Len(t, outcome.Violations, 1)
	assert.Equal(t, "alice", outcome.Violations[0].ParticipantID)
	assert.Empty(t, outcome.Violations[0].ItemRef)
}

func TestSettlerTreatsTransferRejectionAsFailure(t *testing.T) {
	repo := new(MockRepository)
	settler := NewSettler(zap.NewNop(), repo)

	giveA := repository.Stake{Items: []string{"x1"}}
	giveB := repository.Stake{}

	repo.On("IsOwned", mock.Anything, "alice", "x1").Return(true, nil)
	repo.On("AtomicCrossTransfer", mock.Anything, "alice", "bob", giveA, giveB).
		Return(repository.ErrConflict)

	outcome := settler.Settle(context.Background(), "alice", "bob", giveA, giveB)
	assert.Equal(t, StateFailed, outcome.State)
	assert.Contains(t, outcome.Reason, ErrRepositoryConflict.Error())
}

func TestSettlerCommitsEmptyTransfer(t *testing.T) {
	repo := new(MockRepository)
	settler := NewSettler(zap.NewNop(), repo)

	repo.On("AtomicCrossTransfer", mock.Anything, "alice", "bob", repository.Stake{}, repository.Stake{}).
		Return(nil)

	outcome := settler.Settle(context.Background(), "alice", "bob", repository.Stake{}, repository.Stake{})
	assert.Equal(t, StateSettled, outcome.State)
	repo.AssertExpectations(t)
}
