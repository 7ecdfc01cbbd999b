package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ferreirogomes/custodia/apperrors"
	"github.com/ferreirogomes/custodia/bundle"
	"github.com/ferreirogomes/custodia/models"
	"github.com/ferreirogomes/custodia/semaphore"
	"github.com/ferreirogomes/custodia/services"
)

type mockBundles struct{ mock.Mock }

func (m *mockBundles) GetBundleStatus(ctx context.Context, assetID string) (services.AssetState, error) {
	args := m.Called(ctx, assetID)
	return args.Get(0).(services.AssetState), args.Error(1)
}

func (m *mockBundles) RegisterDocument(ctx context.Context, req services.RegisterDocumentRequest) (services.AssetState, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(services.AssetState), args.Error(1)
}

func (m *mockBundles) RecordSignature(ctx context.Context, req services.RecordSignatureRequest) (services.AssetState, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(services.AssetState), args.Error(1)
}

type mockTokens struct{ mock.Mock }

func (m *mockTokens) Tokenize(ctx context.Context, assetID string) (services.TokenizeResult, error) {
	args := m.Called(ctx, assetID)
	return args.Get(0).(services.TokenizeResult), args.Error(1)
}

func (m *mockTokens) TokenizeBundle(ctx context.Context, operationID string, assetIDs []string) (services.TokenizeResult, error) {
	args := m.Called(ctx, operationID, assetIDs)
	return args.Get(0).(services.TokenizeResult), args.Error(1)
}

func (m *mockTokens) TransferToWarehouse(ctx context.Context, operationID string, assetIDs []string) (services.BatchResult, error) {
	args := m.Called(ctx, operationID, assetIDs)
	return args.Get(0).(services.BatchResult), args.Error(1)
}

func (m *mockTokens) Burn(ctx context.Context, operationID string, assetIDs []string) (services.BatchResult, error) {
	args := m.Called(ctx, operationID, assetIDs)
	return args.Get(0).(services.BatchResult), args.Error(1)
}

type mockLetters struct{ mock.Mock }

func (m *mockLetters) Create(ctx context.Context, req services.CreateReleaseLetterRequest) (models.ReleaseLetter, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(models.ReleaseLetter), args.Error(1)
}

func (m *mockLetters) Get(ctx context.Context, letterID string) (models.ReleaseLetter, error) {
	args := m.Called(ctx, letterID)
	return args.Get(0).(models.ReleaseLetter), args.Error(1)
}

func (m *mockLetters) ListByOperation(ctx context.Context, operationID string) ([]models.ReleaseLetter, error) {
	args := m.Called(ctx, operationID)
	return args.Get(0).([]models.ReleaseLetter), args.Error(1)
}

func (m *mockLetters) Approve(ctx context.Context, letterID string) (services.ApprovalResult, error) {
	args := m.Called(ctx, letterID)
	return args.Get(0).(services.ApprovalResult), args.Error(1)
}

func (m *mockLetters) Reject(ctx context.Context, letterID, reason string) (models.ReleaseLetter, error) {
	args := m.Called(ctx, letterID, reason)
	return args.Get(0).(models.ReleaseLetter), args.Error(1)
}

type mockOps struct{ mock.Mock }

func (m *mockOps) CreateOperation(ctx context.Context, req services.CreateOperationRequest) (models.Operation, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(models.Operation), args.Error(1)
}

func (m *mockOps) AddAsset(ctx context.Context, req services.AddAssetRequest) (models.Asset, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(models.Asset), args.Error(1)
}

func (m *mockOps) Aggregate(ctx context.Context, operationID string) (services.OperationAggregate, error) {
	args := m.Called(ctx, operationID)
	return args.Get(0).(services.OperationAggregate), args.Error(1)
}

type fixture struct {
	bundles *mockBundles
	tokens  *mockTokens
	letters *mockLetters
	ops     *mockOps
	router  http.Handler
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{bundles: &mockBundles{}, tokens: &mockTokens{}, letters: &mockLetters{}, ops: &mockOps{}}
	f.router = NewRouter(Deps{
		Bundles:    f.bundles,
		Tokens:     f.tokens,
		Letters:    f.letters,
		Operations: f.ops,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("# metrics"))
		}),
	}, zaptest.NewLogger(t))
	return f
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.NotEmpty(t, env.RequestID)
	return env
}

func TestGetBundle(t *testing.T) {
	f := newFixture(t)
	f.bundles.On("GetBundleStatus", mock.Anything, "a-1").Return(services.AssetState{
		State:     bundle.State{AssetID: "a-1", Stage: bundle.StageDocumentsSigned, Readiness: bundle.Readiness{Ready: true, MissingComponents: []string{}}},
		Semaphore: semaphore.Green,
	}, nil)

	rec := f.do(http.MethodGet, "/assets/a-1/bundle", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "DOCUMENTS_SIGNED", body["stage"])
	assert.Equal(t, "GREEN", body["semaphore"])
	assert.Equal(t, true, body["readiness"].(map[string]any)["ready"])
}

func TestPostSignature(t *testing.T) {
	f := newFixture(t)
	f.bundles.On("RecordSignature", mock.Anything, services.RecordSignatureRequest{
		AssetID: "a-1", Kind: models.DocumentKindBP, Role: models.RoleClient, Signer: "joana",
	}).Return(services.AssetState{State: bundle.State{AssetID: "a-1"}}, nil).Once()

	rec := f.do(http.MethodPost, "/assets/a-1/documents/bp/signatures", `{"role":"client","signer":"joana"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	f.bundles.AssertExpectations(t)
}

func TestPostSignatureErrors(t *testing.T) {
	f := newFixture(t)
	f.bundles.On("RecordSignature", mock.Anything, mock.Anything).
		Return(services.AssetState{}, apperrors.New(apperrors.CodeRoleNotApplicable, "papel BANK não assina documentos CD"))

	tests := []struct {
		name   string
		path   string
		body   string
		status int
		code   apperrors.Code
	}{
		{"unknown kind", "/assets/a-1/documents/nf/signatures", `{"role":"CLIENT","signer":"x"}`, http.StatusBadRequest, apperrors.CodeUnknownDocumentKind},
		{"unknown role", "/assets/a-1/documents/CD/signatures", `{"role":"AUDITOR","signer":"x"}`, http.StatusBadRequest, apperrors.CodeUnknownRole},
		{"unknown field", "/assets/a-1/documents/CD/signatures", `{"role":"CLIENT","signer":"x","extra":1}`, http.StatusBadRequest, apperrors.CodeInvalidInput},
		{"role not applicable", "/assets/a-1/documents/CD/signatures", `{"role":"BANK","signer":"x"}`, http.StatusBadRequest, apperrors.CodeRoleNotApplicable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decodeError(t, rec).Error.Code)
		})
	}
}

func TestTokenizeNotReadyCarriesDetails(t *testing.T) {
	f := newFixture(t)
	f.tokens.On("Tokenize", mock.Anything, "a-1").
		Return(services.TokenizeResult{}, apperrors.ErrNotReady.With("missing_components", "BP document"))

	rec := f.do(http.MethodPost, "/assets/a-1/tokenize", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	env := decodeError(t, rec)
	assert.Equal(t, apperrors.CodeNotReady, env.Error.Code)
	assert.Equal(t, "BP document", env.Error.Details["missing_components"])
}

func TestTokenizeCreated(t *testing.T) {
	f := newFixture(t)
	f.tokens.On("Tokenize", mock.Anything, "a-1").
		Return(services.TokenizeResult{TokenID: "t-1", IssuanceID: "mint-1"}, nil)

	rec := f.do(http.MethodPost, "/assets/a-1/tokenize", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "t-1", body["token_id"])
	assert.Equal(t, "mint-1", body["issuance_id"])
}

func TestTransfersReturnPartialResults(t *testing.T) {
	f := newFixture(t)
	f.tokens.On("TransferToWarehouse", mock.Anything, "op-1", []string{"10", "11"}).Return(services.BatchResult{
		Success: []string{"10"},
		Failed:  []services.BatchFailure{{AssetID: "11", Reason: apperrors.CodeNotApproved}},
	}, nil)

	rec := f.do(http.MethodPost, "/operations/op-1/transfers", `{"asset_ids":["10","11"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var res services.BatchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, []string{"10"}, res.Success)
	assert.Equal(t, apperrors.CodeNotApproved, res.Failed[0].Reason)
}

func TestReleasesRequireAssetIDs(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPost, "/operations/op-1/releases", `{"asset_ids":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	f.tokens.AssertNotCalled(t, "Burn", mock.Anything, mock.Anything, mock.Anything)
}

func TestApproveLetterNotPending(t *testing.T) {
	f := newFixture(t)
	f.letters.On("Approve", mock.Anything, "rl-1").Return(services.ApprovalResult{}, apperrors.ErrLetterNotPending)

	rec := f.do(http.MethodPost, "/release-letters/rl-1/approve", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, apperrors.CodeLetterNotPending, decodeError(t, rec).Error.Code)
}

func TestCreateAndGetReleaseLetter(t *testing.T) {
	f := newFixture(t)
	src := models.SourceDocument{Kind: models.SourceKindGenerated, ContentHash: "h"}
	f.letters.On("Create", mock.Anything, services.CreateReleaseLetterRequest{
		OperationID: "op-1", AssetIDs: []string{"a-1"}, Source: src,
	}).Return(models.ReleaseLetter{ID: "rl-1", Status: models.ReleaseLetterStatusPending}, nil)
	f.letters.On("Get", mock.Anything, "rl-1").Return(models.ReleaseLetter{ID: "rl-1", Status: models.ReleaseLetterStatusPending}, nil)

	rec := f.do(http.MethodPost, "/operations/op-1/release-letters", `{"asset_ids":["a-1"],"source":{"kind":"GENERATED","content_hash":"h"}}`)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(http.MethodGet, "/release-letters/rl-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got models.ReleaseLetter
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "rl-1", got.ID)
}

func TestAggregateErrorsMapToStatus(t *testing.T) {
	f := newFixture(t)
	f.ops.On("Aggregate", mock.Anything, "missing").Return(services.OperationAggregate{}, apperrors.ErrNotFound)
	f.ops.On("Aggregate", mock.Anything, "down").Return(services.OperationAggregate{}, apperrors.ErrCollaboratorUnavailable)
	f.ops.On("Aggregate", mock.Anything, "boom").Return(services.OperationAggregate{}, errors.New("pq: connection reset"))

	rec := f.do(http.MethodGet, "/operations/missing/aggregate", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, decodeError(t, rec).Error.Retryable)

	rec = f.do(http.MethodGet, "/operations/down/aggregate", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.True(t, decodeError(t, rec).Error.Retryable)

	rec = f.do(http.MethodGet, "/operations/boom/aggregate", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	env := decodeError(t, rec)
	assert.Equal(t, apperrors.CodeInternal, env.Error.Code)
	assert.NotContains(t, env.Error.Message, "pq")
}

func TestCreateOperationDecodesDecimals(t *testing.T) {
	f := newFixture(t)
	f.ops.On("CreateOperation", mock.Anything, mock.MatchedBy(func(req services.CreateOperationRequest) bool {
		return req.GiroValue.Valid && req.GiroValue.Decimal.String() == "100000" && !req.EndorsementValue.Valid
	})).Return(models.Operation{ID: "op-1"}, nil)

	rec := f.do(http.MethodPost, "/operations", `{
		"name": "Safra",
		"warehouse": {"id": "wh", "wallet": "w1"},
		"client": {"id": "cl", "wallet": "w2"},
		"bank": {"id": "bk", "wallet": "w3"},
		"giro_value": "100000",
		"endorsement_value": null,
		"guarantee_risk_ratio": "1:2"
	}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
	f.ops.AssertExpectations(t)
}

func TestMetricsRoute(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "# metrics")
}
