package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ferreirogomes/custodia/events"
	"github.com/ferreirogomes/custodia/metrics"
	"github.com/ferreirogomes/custodia/models"
	"github.com/ferreirogomes/custodia/storage"
)

type mockLedger struct {
	mock.Mock
}

func (m *mockLedger) Mint(ctx context.Context, req MintRequest) (Issuance, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(Issuance), args.Error(1)
}

func (m *mockLedger) Transfer(ctx context.Context, req TransferRequest) (Receipt, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(Receipt), args.Error(1)
}

func (m *mockLedger) Burn(ctx context.Context, req BurnRequest) (Receipt, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(Receipt), args.Error(1)
}

func (m *mockLedger) HolderOf(ctx context.Context, issuanceID string) (string, error) {
	args := m.Called(ctx, issuanceID)
	return args.String(0), args.Error(1)
}

// flakyStore falha as primeiras gravações de token configuradas.
type flakyStore struct {
	*storage.DB
	failCreateToken int
	failMarkBurned  int
}

func (f *flakyStore) CreateToken(ctx context.Context, tok models.Token) error {
	if f.failCreateToken > 0 {
		f.failCreateToken--
		return errors.New("disk I/O error")
	}
	return f.DB.CreateToken(ctx, tok)
}

func (f *flakyStore) MarkTokenBurned(ctx context.Context, tokenID string, burnedAt time.Time) error {
	if f.failMarkBurned > 0 {
		f.failMarkBurned--
		return errors.New("disk I/O error")
	}
	return f.DB.MarkTokenBurned(ctx, tokenID, burnedAt)
}

const (
	warehouseWallet = "wallet-warehouse"
	clientWallet    = "wallet-client"
	bankWallet      = "wallet-bank"
	issuerWallet    = "wallet-issuer"
)

type env struct {
	t       *testing.T
	ctx     context.Context
	db      *storage.DB
	ledger  *mockLedger
	bus     *events.Bus
	bundles *BundleService
	tokens  *TokenLifecycleService
	letters *ReleaseLetterService
	ops     *OperationService
	op      models.Operation
	mintSeq int
}

func newEnv(t *testing.T) *env {
	t.Helper()
	log := zaptest.NewLogger(t)
	db, err := storage.NewDB("sqlite", ":memory:", log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	m := metrics.NewNop()
	ledger := &mockLedger{}
	bus := events.NewBus()
	tokens := NewTokenLifecycleService(db, ledger, m, log)
	e := &env{
		t:       t,
		ctx:     context.Background(),
		db:      db,
		ledger:  ledger,
		bus:     bus,
		bundles: NewBundleService(db, nil, log),
		tokens:  tokens,
		letters: NewReleaseLetterService(db, tokens, bus, m, log),
		ops:     NewOperationService(db, log),
	}
	e.op, err = e.ops.CreateOperation(e.ctx, CreateOperationRequest{
		Name:               "Safra de soja",
		Warehouse:          models.Party{ID: "wh-1", Name: "Armazém Central", Wallet: warehouseWallet},
		Client:             models.Party{ID: "cl-1", Name: "Fazenda Boa Vista", Wallet: clientWallet},
		Bank:               models.Party{ID: "bk-1", Name: "Banco Rural", Wallet: bankWallet},
		GiroValue:          decimal.NewNullDecimal(decimal.NewFromInt(100000)),
		GuaranteeRiskRatio: "1:2",
	})
	require.NoError(t, err)
	return e
}

func (e *env) asset(value int64) models.Asset {
	e.t.Helper()
	a, err := e.ops.AddAsset(e.ctx, AddAssetRequest{
		OperationID: e.op.ID,
		Description: "lote",
		Value:       decimal.NewFromInt(value),
	})
	require.NoError(e.t, err)
	return a
}

func (e *env) upload(assetID string, kind models.DocumentKind) {
	e.t.Helper()
	_, err := e.bundles.RegisterDocument(e.ctx, RegisterDocumentRequest{AssetID: assetID, Kind: kind, ContentHash: "sha256:" + assetID + string(kind)})
	require.NoError(e.t, err)
}

func (e *env) sign(assetID string, kind models.DocumentKind, roles ...models.Role) AssetState {
	e.t.Helper()
	var st AssetState
	for _, r := range roles {
		var err error
		st, err = e.bundles.RecordSignature(e.ctx, RecordSignatureRequest{AssetID: assetID, Kind: kind, Role: r, Signer: "signer-" + string(r)})
		require.NoError(e.t, err)
	}
	return st
}

// readyAsset cria um ativo com CD e BP assinados pelas duas partes.
func (e *env) readyAsset(value int64) models.Asset {
	e.t.Helper()
	a := e.asset(value)
	for _, kind := range []models.DocumentKind{models.DocumentKindCD, models.DocumentKindBP} {
		e.upload(a.ID, kind)
		e.sign(a.ID, kind, models.RoleWarehouse, models.RoleClient)
	}
	return a
}

// expectMint configura um mint bem-sucedido e devolve o IssuanceID usado.
func (e *env) expectMint() string {
	e.mintSeq++
	id := "mint-" + string(rune('a'+e.mintSeq-1))
	e.ledger.On("Mint", mock.Anything, mock.Anything).
		Return(Issuance{IssuanceID: id, IssuerWallet: issuerWallet, TxSignature: "tx-" + id}, nil).Once()
	return id
}

func (e *env) tokenized(value int64) (models.Asset, TokenizeResult) {
	e.t.Helper()
	a := e.readyAsset(value)
	e.expectMint()
	res, err := e.tokens.Tokenize(e.ctx, a.ID)
	require.NoError(e.t, err)
	return a, res
}

// approved cria e aprova uma carta para os ativos, com a transferência ao
// armazém confirmada pelo ledger.
func (e *env) approved(assetIDs ...string) ApprovalResult {
	e.t.Helper()
	letter, err := e.letters.Create(e.ctx, CreateReleaseLetterRequest{
		OperationID: e.op.ID,
		AssetIDs:    assetIDs,
		Source:      models.SourceDocument{Kind: models.SourceKindGenerated, ContentHash: "sha256:carta"},
	})
	require.NoError(e.t, err)
	e.ledger.On("Transfer", mock.Anything, mock.Anything).Return(Receipt{TxSignature: "tx-transfer"}, nil).Maybe()
	res, err := e.letters.Approve(e.ctx, letter.ID)
	require.NoError(e.t, err)
	return res
}
