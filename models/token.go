package models

import "time"

// TokenStatus é o estado de uma emissão no ledger.
type TokenStatus string

const (
	TokenStatusMinted      TokenStatus = "MINTED"
	TokenStatusTransferred TokenStatus = "TRANSFERRED"
	TokenStatusBurned      TokenStatus = "BURNED"
)

// Token representa uma emissão on-chain que lastreia um ou mais ativos.
type Token struct {
	ID           string      `json:"id" db:"id"`
	OperationID  string      `json:"operation_id" db:"operation_id"`
	IssuanceID   string      `json:"issuance_id" db:"issuance_id"` // endereço do mint
	Amount       int64       `json:"amount" db:"amount"`
	HolderWallet string      `json:"holder_wallet" db:"holder_wallet"`
	IssuerWallet string      `json:"issuer_wallet" db:"issuer_wallet"`
	Status       TokenStatus `json:"status" db:"status"`
	TxSignature  string      `json:"tx_signature" db:"tx_signature"`
	MintedAt     time.Time   `json:"minted_at" db:"minted_at"`
	BurnedAt     *time.Time  `json:"burned_at,omitempty" db:"burned_at"`
	AssetIDs     []string    `json:"asset_ids" db:"-"`
}

// Burned informa se o token já foi destruído.
func (t Token) Burned() bool {
	return t.Status == TokenStatusBurned
}
