package blockchain_listener

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ferreirogomes/custodia/models"
)

type mockStore struct{ mock.Mock }

func (m *mockStore) ListLiveTokens(ctx context.Context) ([]models.Token, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.Token), args.Error(1)
}

func (m *mockStore) UpdateTokenHolder(ctx context.Context, tokenID, holder string, status models.TokenStatus) error {
	return m.Called(ctx, tokenID, holder, status).Error(0)
}

type mockLookup struct{ mock.Mock }

func (m *mockLookup) HolderOf(ctx context.Context, issuanceID string) (string, error) {
	args := m.Called(ctx, issuanceID)
	return args.String(0), args.Error(1)
}

func TestReconcileOnceRecordsDivergentHolders(t *testing.T) {
	store := &mockStore{}
	lookup := &mockLookup{}
	store.On("ListLiveTokens", mock.Anything).Return([]models.Token{
		{ID: "t-same", IssuanceID: "m-1", HolderWallet: "client"},
		{ID: "t-moved", IssuanceID: "m-2", HolderWallet: "client"},
		{ID: "t-error", IssuanceID: "m-3", HolderWallet: "client"},
		{ID: "t-empty", IssuanceID: "m-4", HolderWallet: "client"},
	}, nil)
	lookup.On("HolderOf", mock.Anything, "m-1").Return("client", nil)
	lookup.On("HolderOf", mock.Anything, "m-2").Return("warehouse", nil)
	lookup.On("HolderOf", mock.Anything, "m-3").Return("", errors.New("rpc timeout"))
	lookup.On("HolderOf", mock.Anything, "m-4").Return("", nil)
	store.On("UpdateTokenHolder", mock.Anything, "t-moved", "warehouse", models.TokenStatusTransferred).Return(nil).Once()

	l := NewCustodyListener(store, lookup, time.Minute, zaptest.NewLogger(t))
	n, err := l.ReconcileOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	store.AssertExpectations(t)
	lookup.AssertNumberOfCalls(t, "HolderOf", 4)
}

func TestReconcileOnceSurfacesStoreErrors(t *testing.T) {
	store := &mockStore{}
	store.On("ListLiveTokens", mock.Anything).Return([]models.Token(nil), errors.New("db down"))

	l := NewCustodyListener(store, &mockLookup{}, time.Minute, nil)
	_, err := l.ReconcileOnce(context.Background())
	assert.ErrorContains(t, err, "db down")
}

func TestRunStopsOnCancel(t *testing.T) {
	store := &mockStore{}
	polled := make(chan struct{}, 1)
	store.On("ListLiveTokens", mock.Anything).Return([]models.Token{}, nil).Run(func(mock.Arguments) {
		select {
		case polled <- struct{}{}:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	l := NewCustodyListener(store, &mockLookup{}, 5*time.Millisecond, zaptest.NewLogger(t))
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	select {
	case <-polled:
	case <-time.After(time.Second):
		t.Fatal("listener não consultou os tokens")
	}
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("listener não encerrou após o cancelamento")
	}
}
