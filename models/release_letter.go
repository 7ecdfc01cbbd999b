package models

import "time"

// ReleaseLetterStatus é o estado de uma carta de liberação.
type ReleaseLetterStatus string

const (
	// ReleaseLetterStatusDraft existe apenas no cliente e nunca é persistido.
	ReleaseLetterStatusDraft    ReleaseLetterStatus = "DRAFT"
	ReleaseLetterStatusPending  ReleaseLetterStatus = "PENDING"
	ReleaseLetterStatusApproved ReleaseLetterStatus = "APPROVED"
	ReleaseLetterStatusRejected ReleaseLetterStatus = "REJECTED"
)

// SourceKind indica como o documento da carta foi obtido.
type SourceKind string

const (
	SourceKindUploaded  SourceKind = "UPLOADED"
	SourceKindGenerated SourceKind = "GENERATED"
)

// SourceDocument descreve o arquivo que materializa a carta.
type SourceDocument struct {
	Kind        SourceKind `json:"kind"`
	ContentHash string     `json:"content_hash"`
	FileName    string     `json:"file_name,omitempty"`
}

// ReleaseLetter nomeia o subconjunto de ativos cujos tokens podem voltar ao armazém.
type ReleaseLetter struct {
	ID               string              `json:"id"`
	OperationID      string              `json:"operation_id"`
	Status           ReleaseLetterStatus `json:"status"`
	Source           SourceDocument      `json:"source"`
	AssetIDs         []string            `json:"asset_ids"`
	ApprovedAssetIDs []string            `json:"approved_asset_ids"`
	RejectionReason  string              `json:"rejection_reason,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
	DecidedAt        *time.Time          `json:"decided_at,omitempty"`
}
