package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ferreirogomes/custodia/apperrors"
	"github.com/ferreirogomes/custodia/models"
	"github.com/ferreirogomes/custodia/signature"
)

// BundleService expõe o estado derivado dos bundles e registra documentos e
// assinaturas.
type BundleService struct {
	store    Store
	identity IdentityService
	log      *zap.Logger
	now      func() time.Time
}

// NewBundleService cria o serviço. identity pode ser nil.
func NewBundleService(store Store, identity IdentityService, log *zap.Logger) *BundleService {
	if log == nil {
		log = zap.NewNop()
	}
	return &BundleService{store: store, identity: identity, log: log, now: time.Now}
}

// GetBundleStatus deriva o estado atual do bundle do ativo.
func (s *BundleService) GetBundleStatus(ctx context.Context, assetID string) (AssetState, error) {
	_, st, err := deriveAssetByID(ctx, s.store, assetID)
	return st, err
}

// RegisterDocumentRequest descreve um documento carregado.
type RegisterDocumentRequest struct {
	AssetID     string
	Kind        models.DocumentKind
	ContentHash string
}

// RegisterDocument grava o documento do tipo informado. Recarregar o mesmo
// conteúdo não altera nada; trocar o conteúdo só é permitido antes da
// primeira assinatura.
func (s *BundleService) RegisterDocument(ctx context.Context, req RegisterDocumentRequest) (AssetState, error) {
	if _, ok := models.ParseDocumentKind(string(req.Kind)); !ok {
		return AssetState{}, apperrors.Newf(apperrors.CodeUnknownDocumentKind, "tipo de documento desconhecido: %q", req.Kind)
	}
	hash := strings.TrimSpace(req.ContentHash)
	if hash == "" {
		return AssetState{}, apperrors.New(apperrors.CodeInvalidInput, "content_hash é obrigatório")
	}
	asset, err := s.store.GetAsset(ctx, req.AssetID)
	if err != nil {
		return AssetState{}, err
	}
	if err := s.refuseAfterMint(ctx, asset.ID, req.Kind, hash); err != nil {
		if errors.Is(err, errUnchanged) {
			return deriveAsset(ctx, s.store, asset)
		}
		return AssetState{}, err
	}

	now := s.now().UTC()
	inserted, err := s.store.InsertDocument(ctx, models.Document{
		ID:          uuid.NewString(),
		AssetID:     asset.ID,
		Kind:        req.Kind,
		ContentHash: hash,
		UploadedAt:  now,
	})
	if err != nil {
		return AssetState{}, err
	}
	if !inserted {
		docs, err := s.store.GetDocuments(ctx, asset.ID)
		if err != nil {
			return AssetState{}, err
		}
		existing := docs[req.Kind]
		if existing == nil {
			return AssetState{}, apperrors.Newf(apperrors.CodeInternal, "documento %s do ativo %s não encontrado após conflito", req.Kind, asset.ID)
		}
		if existing.ContentHash != hash {
			replaced, err := s.store.ReplaceUnsignedDocument(ctx, existing.ID, hash, now)
			if err != nil {
				return AssetState{}, err
			}
			if !replaced {
				return AssetState{}, apperrors.Newf(apperrors.CodeDocumentAlreadySigned,
					"documento %s do ativo %s já possui assinaturas", req.Kind, asset.ID)
			}
			s.log.Info("documento substituído", zap.String("asset_id", asset.ID), zap.String("kind", string(req.Kind)))
		}
	} else {
		s.log.Info("documento registrado", zap.String("asset_id", asset.ID), zap.String("kind", string(req.Kind)))
	}
	return deriveAsset(ctx, s.store, asset)
}

var errUnchanged = errors.New("documento inalterado")

// refuseAfterMint bloqueia documentos novos ou substituídos em ativos que já
// têm token. Recarregar o mesmo conteúdo devolve errUnchanged.
func (s *BundleService) refuseAfterMint(ctx context.Context, assetID string, kind models.DocumentKind, hash string) error {
	tok, err := s.store.GetTokenByAsset(ctx, assetID)
	if err != nil || tok == nil {
		return err
	}
	docs, err := s.store.GetDocuments(ctx, assetID)
	if err != nil {
		return err
	}
	if existing := docs[kind]; existing != nil && existing.ContentHash == hash {
		return errUnchanged
	}
	if tok.Burned() {
		return apperrors.ErrAssetAlreadyReleased.With("asset_id", assetID).With("token_id", tok.ID)
	}
	return apperrors.ErrAlreadyTokenized.With("asset_id", assetID).With("token_id", tok.ID)
}

// RecordSignatureRequest descreve a assinatura de um papel sobre um documento.
type RecordSignatureRequest struct {
	AssetID string
	Kind    models.DocumentKind
	Role    models.Role
	Signer  string
}

// RecordSignature grava a assinatura e devolve o estado recalculado.
// Assinar de novo com o mesmo papel mantém a assinatura original.
func (s *BundleService) RecordSignature(ctx context.Context, req RecordSignatureRequest) (AssetState, error) {
	if _, ok := models.ParseDocumentKind(string(req.Kind)); !ok {
		return AssetState{}, apperrors.Newf(apperrors.CodeUnknownDocumentKind, "tipo de documento desconhecido: %q", req.Kind)
	}
	if _, ok := models.ParseRole(string(req.Role)); !ok {
		return AssetState{}, apperrors.Newf(apperrors.CodeUnknownRole, "papel desconhecido: %q", req.Role)
	}
	if strings.TrimSpace(req.Signer) == "" {
		return AssetState{}, apperrors.New(apperrors.CodeInvalidInput, "signer é obrigatório")
	}
	if !signature.AllowedRoles(req.Kind).Has(req.Role) {
		return AssetState{}, apperrors.Newf(apperrors.CodeRoleNotApplicable,
			"papel %s não assina documentos %s", req.Role, req.Kind)
	}
	if s.identity != nil {
		role, known, err := s.identity.RoleOf(ctx, req.Signer)
		if err != nil {
			return AssetState{}, apperrors.Wrap(apperrors.CodeCollaboratorUnavailable, "falha ao consultar identidade", err)
		}
		if known && role != req.Role {
			return AssetState{}, apperrors.Newf(apperrors.CodeRoleNotApplicable,
				"signatário %s atua como %s, não %s", req.Signer, role, req.Role).With("signer_role", string(role))
		}
	}

	asset, err := s.store.GetAsset(ctx, req.AssetID)
	if err != nil {
		return AssetState{}, err
	}
	docs, err := s.store.GetDocuments(ctx, asset.ID)
	if err != nil {
		return AssetState{}, err
	}
	doc := docs[req.Kind]
	if doc == nil {
		return AssetState{}, apperrors.Newf(apperrors.CodeDocumentNotUploaded,
			"documento %s do ativo %s ainda não foi carregado", req.Kind, asset.ID)
	}

	added, err := s.store.AddSignature(ctx, doc.ID, models.Signature{
		Role:           req.Role,
		SignerIdentity: req.Signer,
		SignedAt:       s.now().UTC(),
	})
	if err != nil {
		return AssetState{}, err
	}
	if added {
		s.log.Info("assinatura registrada",
			zap.String("asset_id", asset.ID), zap.String("kind", string(req.Kind)), zap.String("role", string(req.Role)))
	}
	return deriveAsset(ctx, s.store, asset)
}
