// Package signature normaliza o estado de assinaturas de um documento.
//
// Evaluate é total e sem efeitos colaterais: o chamador escolhe um único
// registro canônico do documento e todo consumidor a jusante depende apenas
// do Status devolvido.
package signature

import "github.com/ferreirogomes/custodia/models"

// RoleSet é um conjunto de papéis mantido na ordem canônica WAREHOUSE, CLIENT, BANK.
type RoleSet []models.Role

// Has informa se o papel pertence ao conjunto.
func (s RoleSet) Has(role models.Role) bool {
	for _, r := range s {
		if r == role {
			return true
		}
	}
	return false
}

func canonical(has func(models.Role) bool) RoleSet {
	out := RoleSet{}
	for _, r := range models.Roles {
		if has(r) {
			out = append(out, r)
		}
	}
	return out
}

var (
	requiredBoth   = RoleSet{models.RoleWarehouse, models.RoleClient}
	requiredClient = RoleSet{models.RoleClient}
	allowedPagare  = RoleSet{models.RoleClient, models.RoleBank}
)

// RequiredRoles devolve os papéis cuja assinatura completa o documento.
// BANK no PAGARE é rastreado, mas nunca exigido.
func RequiredRoles(kind models.DocumentKind) RoleSet {
	switch kind {
	case models.DocumentKindCD, models.DocumentKindBP:
		return append(RoleSet(nil), requiredBoth...)
	case models.DocumentKindPagare:
		return append(RoleSet(nil), requiredClient...)
	}
	return RoleSet{}
}

// AllowedRoles devolve os papéis que podem assinar o documento.
func AllowedRoles(kind models.DocumentKind) RoleSet {
	if kind == models.DocumentKindPagare {
		return append(RoleSet(nil), allowedPagare...)
	}
	return RequiredRoles(kind)
}

// Status é a forma normalizada de um documento: ou não existe (e então não
// tem assinaturas), ou existe com o conjunto de papéis que já assinaram.
type Status struct {
	Kind        models.DocumentKind `json:"kind"`
	Exists      bool                `json:"exists"`
	ContentHash string              `json:"content_hash,omitempty"`
	SignedBy    RoleSet             `json:"signed_by"`
	Required    RoleSet             `json:"required"`
	FullySigned bool                `json:"fully_signed"`
}

// Evaluate calcula o Status de um documento. doc nil significa ausente.
// Assinaturas de papéis fora de AllowedRoles são ignoradas.
func Evaluate(kind models.DocumentKind, doc *models.Document) Status {
	st := Status{
		Kind:     kind,
		SignedBy: RoleSet{},
		Required: RequiredRoles(kind),
	}
	if doc == nil {
		return st
	}
	st.Exists = true
	st.ContentHash = doc.ContentHash

	allowed := AllowedRoles(kind)
	st.SignedBy = canonical(func(r models.Role) bool {
		if !allowed.Has(r) {
			return false
		}
		_, ok := doc.SignatureBy(r)
		return ok
	})

	st.FullySigned = len(st.Required) > 0
	for _, r := range st.Required {
		if !st.SignedBy.Has(r) {
			st.FullySigned = false
			break
		}
	}
	return st
}

// MissingRoles lista, em ordem canônica, os papéis exigidos que ainda não assinaram.
func (s Status) MissingRoles() RoleSet {
	return canonical(func(r models.Role) bool {
		return s.Required.Has(r) && !s.SignedBy.Has(r)
	})
}
