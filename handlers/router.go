package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Deps reúne os serviços expostos pela API.
type Deps struct {
	Bundles    BundleService
	Tokens     TokenService
	Letters    ReleaseLetterService
	Operations OperationService
	// Metrics serve /metrics quando não é nil.
	Metrics http.Handler
}

// NewRouter monta as rotas da API.
func NewRouter(d Deps, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	assets := NewAssetHandler(d.Bundles, log)
	tokens := NewTokenHandler(d.Tokens, log)
	letters := NewReleaseLetterHandler(d.Letters, log)
	ops := NewOperationHandler(d.Operations, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)

	r.Route("/assets/{id}", func(r chi.Router) {
		r.Get("/bundle", assets.GetBundle)
		r.Put("/documents/{kind}", assets.PutDocument)
		r.Post("/documents/{kind}/signatures", assets.PostSignature)
		r.Post("/tokenize", tokens.TokenizeAsset)
	})

	r.Post("/operations", ops.Create)
	r.Route("/operations/{id}", func(r chi.Router) {
		r.Post("/assets", ops.AddAsset)
		r.Get("/aggregate", ops.Aggregate)
		r.Post("/tokenize", tokens.TokenizeBundle)
		r.Post("/transfers", tokens.Transfer)
		r.Post("/releases", tokens.Release)
		r.Post("/release-letters", letters.Create)
		r.Get("/release-letters", letters.List)
	})

	r.Route("/release-letters/{id}", func(r chi.Router) {
		r.Get("/", letters.Get)
		r.Post("/approve", letters.Approve)
		r.Post("/reject", letters.Reject)
	})

	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}
	return r
}
