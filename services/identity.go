package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/ferreirogomes/custodia/models"
)

// IdentityService resolve o papel de um signatário autenticado. Quando
// conhecido, o papel informado pelo chamador precisa coincidir com ele.
type IdentityService interface {
	RoleOf(ctx context.Context, signer string) (models.Role, bool, error)
}

// StaticIdentity é um IdentityService em memória.
type StaticIdentity map[string]models.Role

func (s StaticIdentity) RoleOf(_ context.Context, signer string) (models.Role, bool, error) {
	r, ok := s[signer]
	return r, ok, nil
}

// NewStaticIdentity valida um mapa signatário -> papel vindo da configuração.
func NewStaticIdentity(roles map[string]string) (StaticIdentity, error) {
	out := make(StaticIdentity, len(roles))
	for signer, raw := range roles {
		role, ok := models.ParseRole(strings.ToUpper(strings.TrimSpace(raw)))
		if !ok {
			return nil, fmt.Errorf("papel inválido para %s: %q", signer, raw)
		}
		out[signer] = role
	}
	return out, nil
}
