package services

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ferreirogomes/custodia/apperrors"
	"github.com/ferreirogomes/custodia/idempotency"
	"github.com/ferreirogomes/custodia/metrics"
)

func TestIdempotentLedgerReplaysReceipts(t *testing.T) {
	inner := &mockLedger{}
	m := metrics.New(prometheus.NewRegistry())
	l := NewIdempotentLedger(inner, idempotency.NewMemoryStore(), m, zaptest.NewLogger(t))
	ctx := context.Background()
	req := MintRequest{IdempotencyKey: "mint:a-1", Amount: 10, Recipient: clientWallet}
	inner.On("Mint", mock.Anything, req).Return(Issuance{IssuanceID: "mint-1", IssuerWallet: issuerWallet, TxSignature: "tx-1"}, nil).Once()

	first, err := l.Mint(ctx, req)
	require.NoError(t, err)
	second, err := l.Mint(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	inner.AssertNumberOfCalls(t, "Mint", 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LedgerCalls.WithLabelValues("mint", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LedgerCalls.WithLabelValues("mint", "replayed")))
}

func TestIdempotentLedgerDoesNotRecordFailures(t *testing.T) {
	inner := &mockLedger{}
	l := NewIdempotentLedger(inner, idempotency.NewMemoryStore(), nil, nil)
	ctx := context.Background()
	req := BurnRequest{IdempotencyKey: "burn:t-1", IssuanceID: "mint-1", Holder: warehouseWallet, Amount: 1}
	inner.On("Burn", mock.Anything, req).Return(Receipt{}, errors.New("blockhash expired")).Once()
	inner.On("Burn", mock.Anything, req).Return(Receipt{TxSignature: "tx-2"}, nil).Once()

	_, err := l.Burn(ctx, req)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeCollaboratorUnavailable))
	assert.ErrorContains(t, err, "blockhash expired")

	rec, err := l.Burn(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "tx-2", rec.TxSignature)
}

func TestIdempotentLedgerWithoutKeyAlwaysCalls(t *testing.T) {
	inner := &mockLedger{}
	l := NewIdempotentLedger(inner, idempotency.NewMemoryStore(), nil, nil)
	ctx := context.Background()
	req := TransferRequest{IssuanceID: "mint-1", From: clientWallet, To: warehouseWallet, Amount: 1}
	inner.On("Transfer", mock.Anything, req).Return(Receipt{TxSignature: "tx"}, nil).Twice()

	_, err := l.Transfer(ctx, req)
	require.NoError(t, err)
	_, err = l.Transfer(ctx, req)
	require.NoError(t, err)
	inner.AssertExpectations(t)
}

func TestIdempotentLedgerHolderOfMapsErrors(t *testing.T) {
	inner := &mockLedger{}
	l := NewIdempotentLedger(inner, idempotency.NewMemoryStore(), nil, nil)
	inner.On("HolderOf", mock.Anything, "mint-1").Return("", errors.New("rpc down")).Once()

	_, err := l.HolderOf(context.Background(), "mint-1")
	assert.True(t, apperrors.Retryable(err))
}
