package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OperationStatus é o agregado grosso dos estágios dos bundles de uma operação.
type OperationStatus string

const (
	OperationStatusPending             OperationStatus = "PENDING"
	OperationStatusDocumentsInProgress OperationStatus = "DOCUMENTS_IN_PROGRESS"
	OperationStatusDocumentsSigned     OperationStatus = "DOCUMENTS_SIGNED"
	OperationStatusPartiallyTokenized  OperationStatus = "PARTIALLY_TOKENIZED"
	OperationStatusTokenized           OperationStatus = "TOKENIZED"
	OperationStatusPartiallyReleased   OperationStatus = "PARTIALLY_RELEASED"
	OperationStatusReleased            OperationStatus = "RELEASED"
)

var operationStatusRank = map[OperationStatus]int{
	OperationStatusPending:             0,
	OperationStatusDocumentsInProgress: 1,
	OperationStatusDocumentsSigned:     2,
	OperationStatusPartiallyTokenized:  3,
	OperationStatusTokenized:           4,
	OperationStatusPartiallyReleased:   5,
	OperationStatusReleased:            6,
}

// Rank ordena os status; valores desconhecidos ficam abaixo de PENDING.
func (s OperationStatus) Rank() int {
	if r, ok := operationStatusRank[s]; ok {
		return r
	}
	return -1
}

// Party é uma das três partes da operação.
type Party struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Wallet string `json:"wallet"`
}

// Operation agrupa N ativos e as partes envolvidas no financiamento.
type Operation struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Status    OperationStatus `json:"status"`
	Warehouse Party           `json:"warehouse"`
	Client    Party           `json:"client"`
	Bank      Party           `json:"bank"`
	// GiroValue é o valor desembolsado; ausente enquanto não houver desembolso.
	GiroValue          decimal.NullDecimal `json:"giro_value"`
	EndorsementValue   decimal.NullDecimal `json:"endorsement_value"`
	GuaranteeRiskRatio string              `json:"guarantee_risk_ratio"` // formato "A:B"
	CreatedAt          time.Time           `json:"created_at"`
}
