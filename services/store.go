package services

import (
	"context"
	"time"

	"github.com/ferreirogomes/custodia/bundle"
	"github.com/ferreirogomes/custodia/models"
	"github.com/ferreirogomes/custodia/semaphore"
)

// Store é a persistência usada pelos serviços. storage.DB a implementa.
type Store interface {
	SaveOperation(ctx context.Context, op models.Operation) error
	GetOperation(ctx context.Context, id string) (models.Operation, error)
	UpdateOperationStatus(ctx context.Context, id string, status models.OperationStatus) error

	SaveAsset(ctx context.Context, a models.Asset) error
	GetAsset(ctx context.Context, id string) (models.Asset, error)
	ListAssetsByOperation(ctx context.Context, operationID string) ([]models.Asset, error)

	InsertDocument(ctx context.Context, doc models.Document) (bool, error)
	ReplaceUnsignedDocument(ctx context.Context, docID, contentHash string, uploadedAt time.Time) (bool, error)
	AddSignature(ctx context.Context, docID string, sig models.Signature) (bool, error)
	GetDocuments(ctx context.Context, assetID string) (map[models.DocumentKind]*models.Document, error)

	ClaimLedgerOperation(ctx context.Context, key string) (bool, error)
	ReleaseLedgerClaim(ctx context.Context, key string) error
	SaveLedgerReceipt(ctx context.Context, keys []string, receipt []byte) error
	GetLedgerReceipt(ctx context.Context, key string) ([]byte, bool, error)
	CreateToken(ctx context.Context, tok models.Token) error
	GetToken(ctx context.Context, id string) (models.Token, error)
	GetTokenByAsset(ctx context.Context, assetID string) (*models.Token, error)
	ListLiveTokens(ctx context.Context) ([]models.Token, error)
	UpdateTokenHolder(ctx context.Context, tokenID, holder string, status models.TokenStatus) error
	MarkTokenBurned(ctx context.Context, tokenID string, burnedAt time.Time) error

	CreateReleaseLetter(ctx context.Context, l models.ReleaseLetter) error
	GetReleaseLetter(ctx context.Context, id string) (models.ReleaseLetter, error)
	ListReleaseLettersByOperation(ctx context.Context, operationID string) ([]models.ReleaseLetter, error)
	ApproveReleaseLetter(ctx context.Context, id string, approvedAssetIDs []string, at time.Time) (bool, error)
	RejectReleaseLetter(ctx context.Context, id, reason string, at time.Time) (bool, error)
	IsAssetApprovedForRelease(ctx context.Context, assetID string) (bool, error)
}

// loadFacts monta o retrato canônico de um ativo: um registro por tipo de
// documento e o token vinculado, se houver.
func loadFacts(ctx context.Context, st Store, asset models.Asset) (bundle.Facts, error) {
	docs, err := st.GetDocuments(ctx, asset.ID)
	if err != nil {
		return bundle.Facts{}, err
	}
	tok, err := st.GetTokenByAsset(ctx, asset.ID)
	if err != nil {
		return bundle.Facts{}, err
	}
	return bundle.Facts{
		Asset:  asset,
		CD:     docs[models.DocumentKindCD],
		BP:     docs[models.DocumentKindBP],
		Pagare: docs[models.DocumentKindPagare],
		Token:  tok,
	}, nil
}

// AssetState é o estado derivado de um ativo junto com seu semáforo.
type AssetState struct {
	bundle.State
	Semaphore semaphore.Color `json:"semaphore"`
	Token     *models.Token   `json:"token,omitempty"`
}

func deriveAsset(ctx context.Context, st Store, asset models.Asset) (AssetState, error) {
	facts, err := loadFacts(ctx, st, asset)
	if err != nil {
		return AssetState{}, err
	}
	state := bundle.Derive(facts)
	return AssetState{
		State:     state,
		Semaphore: semaphore.Of(state.Stage, asset.DeliveryStatus),
		Token:     facts.Token,
	}, nil
}

func deriveAssetByID(ctx context.Context, st Store, assetID string) (models.Asset, AssetState, error) {
	asset, err := st.GetAsset(ctx, assetID)
	if err != nil {
		return models.Asset{}, AssetState{}, err
	}
	state, err := deriveAsset(ctx, st, asset)
	if err != nil {
		return models.Asset{}, AssetState{}, err
	}
	return asset, state, nil
}
