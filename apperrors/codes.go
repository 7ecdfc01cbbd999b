// Package apperrors define a taxonomia de erros do motor de custódia.
package apperrors

import "net/http"

// Code é um código de erro legível por máquina. Os valores também são usados
// como motivo nos resultados parciais de lote.
type Code string

const (
	CodeUnknown Code = "Unknown"

	// Validação: nunca repetir, devolver ao chamador como está.
	CodeInvalidInput        Code = "InvalidInput"
	CodeUnknownDocumentKind Code = "UnknownDocumentKind"
	CodeUnknownRole         Code = "UnknownRole"
	CodeRoleNotApplicable   Code = "RoleNotApplicable"

	CodeNotFound Code = "NotFound"

	// Pré-condições: só mudam com fatos novos.
	CodeNotReady                   Code = "NotReady"
	CodeAlreadyTokenized           Code = "AlreadyTokenized"
	CodeNotApproved                Code = "NotApproved"
	CodeTokenNotInWarehouseCustody Code = "TokenNotInWarehouseCustody"
	CodeAssetAlreadyReleased       Code = "AssetAlreadyReleased"
	CodeNotTokenized               Code = "NotTokenized"
	CodeAlreadyBurned              Code = "AlreadyBurned"
	CodeLetterNotPending           Code = "LetterNotPending"
	CodeDocumentNotUploaded        Code = "DocumentNotUploaded"
	CodeDocumentAlreadySigned      Code = "DocumentAlreadySigned"
	CodeTokenGroupIncomplete       Code = "TokenGroupIncomplete"

	// Colaborador externo falhou; seguro repetir com a mesma chave de idempotência.
	CodeCollaboratorUnavailable Code = "CollaboratorUnavailable"

	CodeInternal Code = "Internal"
)

// Kind agrupa códigos pela política de retentativa.
type Kind string

const (
	KindValidation   Kind = "ValidationError"
	KindNotFound     Kind = "NotFound"
	KindPrecondition Kind = "PreconditionFailed"
	KindUnavailable  Kind = "CollaboratorUnavailable"
	KindInternal     Kind = "Internal"
)

// Kind devolve a categoria do código.
func (c Code) Kind() Kind {
	switch c {
	case CodeInvalidInput,
		CodeUnknownDocumentKind,
		CodeUnknownRole,
		CodeRoleNotApplicable:
		return KindValidation

	case CodeNotFound:
		return KindNotFound

	case CodeNotReady,
		CodeAlreadyTokenized,
		CodeNotApproved,
		CodeTokenNotInWarehouseCustody,
		CodeAssetAlreadyReleased,
		CodeNotTokenized,
		CodeAlreadyBurned,
		CodeLetterNotPending,
		CodeDocumentNotUploaded,
		CodeDocumentAlreadySigned,
		CodeTokenGroupIncomplete:
		return KindPrecondition

	case CodeCollaboratorUnavailable:
		return KindUnavailable

	default:
		return KindInternal
	}
}

// Retryable informa se uma nova tentativa com os mesmos fatos pode ter
// sucesso: falhas de colaborador e falhas internas após uma confirmação.
func (c Code) Retryable() bool {
	return c == CodeCollaboratorUnavailable || c == CodeInternal
}

// HTTPStatus mapeia o código para o status HTTP de resposta.
func (c Code) HTTPStatus() int {
	switch c.Kind() {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindPrecondition:
		return http.StatusConflict
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
