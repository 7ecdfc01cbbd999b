package apperrors

import (
	"errors"
	"fmt"
)

// Error é um erro de domínio com código e metadados.
type Error struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is compara pelo código, de modo que sentinelas como ErrNotReady casem com
// qualquer instância do mesmo código.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// New cria um erro de domínio.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf cria um erro de domínio com mensagem formatada.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap anexa uma causa ao erro de domínio.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// With devolve uma cópia com o metadado adicionado.
func (e *Error) With(key, value string) *Error {
	md := make(map[string]string, len(e.Metadata)+1)
	for k, v := range e.Metadata {
		md[k] = v
	}
	md[key] = value
	cp := *e
	cp.Metadata = md
	return &cp
}

// GetCode extrai o código de qualquer erro. Erros fora do domínio são CodeUnknown.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// IsCode verifica se o erro tem o código informado.
func IsCode(err error, code Code) bool {
	return err != nil && GetCode(err) == code
}

// GetMetadata extrai os metadados, se houver.
func GetMetadata(err error) map[string]string {
	var e *Error
	if errors.As(err, &e) {
		return e.Metadata
	}
	return nil
}

// Retryable informa se a operação pode ser repetida sem fatos novos.
func Retryable(err error) bool {
	return GetCode(err).Retryable()
}

var (
	ErrNotFound                   = New(CodeNotFound, "recurso não encontrado")
	ErrNotReady                   = New(CodeNotReady, "bundle não está pronto para tokenização")
	ErrAlreadyTokenized           = New(CodeAlreadyTokenized, "bundle já tokenizado")
	ErrNotApproved                = New(CodeNotApproved, "ativo sem carta de liberação aprovada")
	ErrTokenNotInWarehouseCustody = New(CodeTokenNotInWarehouseCustody, "token não está sob custódia do armazém")
	ErrAssetAlreadyReleased       = New(CodeAssetAlreadyReleased, "ativo já liberado")
	ErrNotTokenized               = New(CodeNotTokenized, "ativo não tokenizado")
	ErrAlreadyBurned              = New(CodeAlreadyBurned, "token já queimado")
	ErrLetterNotPending           = New(CodeLetterNotPending, "carta de liberação não está pendente")
	ErrCollaboratorUnavailable    = New(CodeCollaboratorUnavailable, "colaborador externo indisponível")
)
