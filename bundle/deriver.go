// Package bundle deriva o estágio e a prontidão de um bundle a partir dos
// fatos observados. Nada aqui é armazenado: o estado é sempre recalculado.
package bundle

import (
	"fmt"

	"github.com/ferreirogomes/custodia/models"
	"github.com/ferreirogomes/custodia/signature"
)

// Facts é o retrato canônico de um ativo no momento da leitura.
type Facts struct {
	Asset  models.Asset
	CD     *models.Document
	BP     *models.Document
	Pagare *models.Document
	Token  *models.Token
}

// Documents é a visão normalizada dos três documentos.
type Documents struct {
	CD     signature.Status `json:"cd"`
	BP     signature.Status `json:"bp"`
	Pagare signature.Status `json:"pagare"`
}

// Readiness diz se o bundle pode ser tokenizado agora e o que falta.
type Readiness struct {
	Ready             bool     `json:"ready"`
	MissingComponents []string `json:"missing_components"`
}

// State é o resultado da derivação.
type State struct {
	AssetID   string    `json:"asset_id"`
	Stage     Stage     `json:"stage"`
	Documents Documents `json:"documents"`
	Readiness Readiness `json:"readiness"`
	Warnings  []string  `json:"warnings,omitempty"`
}

// Warnings emitidos para combinações contraditórias de fatos.
const (
	WarnReleasedWithoutToken   = "asset released but no token was ever recorded"
	WarnTokenWithoutSignatures = "token exists but bundle documents are not fully signed"
	WarnTokenBurnedAssetActive = "token burned but asset status is not BURNED or DELIVERED"
)

// Derive calcula o estado do bundle. É total: qualquer combinação de fatos
// produz um estado, com avisos quando os fatos se contradizem.
func Derive(f Facts) State {
	docs := Documents{
		CD:     signature.Evaluate(models.DocumentKindCD, f.CD),
		BP:     signature.Evaluate(models.DocumentKindBP, f.BP),
		Pagare: signature.Evaluate(models.DocumentKindPagare, f.Pagare),
	}

	st := State{
		AssetID:   f.Asset.ID,
		Stage:     documentStage(docs),
		Documents: docs,
	}
	docStage := st.Stage

	if f.Token != nil {
		st.Stage = StageTokenized
		if docStage < StageDocumentsSigned {
			st.Warnings = append(st.Warnings, WarnTokenWithoutSignatures)
		}
	}

	assetReleased := f.Asset.Status == models.AssetStatusBurned || f.Asset.Status == models.AssetStatusDelivered
	tokenBurned := f.Token != nil && f.Token.Burned()
	if assetReleased || tokenBurned {
		st.Stage = StageReleased
		if f.Token == nil {
			st.Warnings = append(st.Warnings, WarnReleasedWithoutToken)
		}
		if tokenBurned && !assetReleased {
			st.Warnings = append(st.Warnings, WarnTokenBurnedAssetActive)
		}
	}

	st.Readiness = Readiness{
		Ready:             st.Stage == StageDocumentsSigned,
		MissingComponents: missingComponents(docs),
	}
	return st
}

func documentStage(d Documents) Stage {
	if !d.CD.Exists || !d.BP.Exists {
		return StagePending
	}
	if d.CD.FullySigned && d.BP.FullySigned && (!d.Pagare.Exists || d.Pagare.FullySigned) {
		return StageDocumentsSigned
	}
	return StageDocumentsUploaded
}

// missingComponents lista pendências na ordem fixa: existência do CD,
// assinaturas do CD, existência do BP, assinaturas do BP e assinaturas do
// PAGARE (apenas se ele existir). Documento ausente gera só a entrada de
// existência, pois suas assinaturas dependem do upload.
func missingComponents(d Documents) []string {
	out := []string{}
	for _, st := range []signature.Status{d.CD, d.BP} {
		if !st.Exists {
			out = append(out, fmt.Sprintf("%s document", st.Kind))
			continue
		}
		out = appendMissingSignatures(out, st)
	}
	if d.Pagare.Exists {
		out = appendMissingSignatures(out, d.Pagare)
	}
	return out
}

func appendMissingSignatures(out []string, st signature.Status) []string {
	for _, r := range st.MissingRoles() {
		out = append(out, fmt.Sprintf("%s signature: %s", st.Kind, r))
	}
	return out
}
