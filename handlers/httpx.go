package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ferreirogomes/custodia/apperrors"
)

func requestID(r *http.Request) string {
	if id := middleware.GetReqID(r.Context()); id != "" {
		return id
	}
	return "req_" + uuid.NewString()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func readJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperrors.Wrap(apperrors.CodeInvalidInput, "corpo JSON inválido", err)
	}
	return nil
}

type errorBody struct {
	Code      apperrors.Code    `json:"code"`
	Message   string            `json:"message"`
	Retryable bool              `json:"retryable"`
	Details   map[string]string `json:"details,omitempty"`
}

type errorEnvelope struct {
	RequestID string    `json:"request_id"`
	Error     errorBody `json:"error"`
}

// writeError converte o erro no envelope {request_id, error{code, message, details}}.
// Erros fora do domínio viram Internal sem expor a causa.
func writeError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	var appErr *apperrors.Error
	body := errorBody{Code: apperrors.CodeInternal, Message: "erro interno"}
	if errors.As(err, &appErr) && appErr.Code != apperrors.CodeUnknown && appErr.Code != apperrors.CodeInternal {
		body = errorBody{Code: appErr.Code, Message: appErr.Message, Details: appErr.Metadata}
	}
	body.Retryable = apperrors.Retryable(err)
	status := body.Code.HTTPStatus()
	if status >= http.StatusInternalServerError {
		log.Error("falha na requisição", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeJSON(w, status, errorEnvelope{RequestID: requestID(r), Error: body})
}

// requestLogger registra cada requisição com zap.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.Info("http",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("elapsed", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

func badRequest(format string, args ...any) error {
	return apperrors.New(apperrors.CodeInvalidInput, fmt.Sprintf(format, args...))
}
