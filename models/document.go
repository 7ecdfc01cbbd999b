package models

import "time"

// DocumentKind identifica os três documentos legais de um bundle.
type DocumentKind string

const (
	DocumentKindCD     DocumentKind = "CD"     // Certificado de Depósito
	DocumentKindBP     DocumentKind = "BP"     // Bônus de Penhor
	DocumentKindPagare DocumentKind = "PAGARE" // Nota promissória, opcional
)

// DocumentKinds lista os tipos na ordem canônica de apresentação.
var DocumentKinds = []DocumentKind{DocumentKindCD, DocumentKindBP, DocumentKindPagare}

// ParseDocumentKind valida um tipo recebido de fora.
func ParseDocumentKind(s string) (DocumentKind, bool) {
	switch k := DocumentKind(s); k {
	case DocumentKindCD, DocumentKindBP, DocumentKindPagare:
		return k, true
	}
	return "", false
}

// Role é o papel de uma das partes da operação.
type Role string

const (
	RoleWarehouse Role = "WAREHOUSE"
	RoleClient    Role = "CLIENT"
	RoleBank      Role = "BANK"
)

// Roles lista os papéis na ordem canônica.
var Roles = []Role{RoleWarehouse, RoleClient, RoleBank}

// ParseRole valida um papel recebido de fora.
func ParseRole(s string) (Role, bool) {
	switch r := Role(s); r {
	case RoleWarehouse, RoleClient, RoleBank:
		return r, true
	}
	return "", false
}

// Signature registra a assinatura de um papel sobre um documento.
type Signature struct {
	Role           Role      `json:"role" db:"role"`
	SignerIdentity string    `json:"signer_identity" db:"signer_identity"`
	SignedAt       time.Time `json:"signed_at" db:"signed_at"`
}

// Document é o registro de um documento carregado para um ativo.
// A ausência do registro significa que o documento não existe.
type Document struct {
	ID          string       `json:"id" db:"id"`
	AssetID     string       `json:"asset_id" db:"asset_id"`
	Kind        DocumentKind `json:"kind" db:"kind"`
	ContentHash string       `json:"content_hash" db:"content_hash"`
	UploadedAt  time.Time    `json:"uploaded_at" db:"uploaded_at"`
	Signatures  []Signature  `json:"signatures" db:"-"`
}

// SignatureBy devolve a assinatura do papel, se houver.
func (d *Document) SignatureBy(role Role) (Signature, bool) {
	if d == nil {
		return Signature{}, false
	}
	for _, s := range d.Signatures {
		if s.Role == role {
			return s, true
		}
	}
	return Signature{}, false
}
