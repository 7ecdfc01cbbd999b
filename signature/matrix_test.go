package signature

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ferreirogomes/custodia/models"
)

func signed(kind models.DocumentKind, roles ...models.Role) *models.Document {
	doc := &models.Document{ID: "doc-" + string(kind), Kind: kind, ContentHash: "sha256:abc"}
	for _, r := range roles {
		doc.Signatures = append(doc.Signatures, models.Signature{Role: r, SignerIdentity: "id-" + string(r), SignedAt: time.Unix(0, 0)})
	}
	return doc
}

func TestEvaluateAbsentDocument(t *testing.T) {
	st := Evaluate(models.DocumentKindCD, nil)

	assert.False(t, st.Exists)
	assert.Empty(t, st.SignedBy)
	assert.False(t, st.FullySigned)
	assert.Equal(t, RoleSet{models.RoleWarehouse, models.RoleClient}, st.MissingRoles())
}

func TestEvaluateRequiredRoles(t *testing.T) {
	tests := []struct {
		name        string
		kind        models.DocumentKind
		roles       []models.Role
		fullySigned bool
		missing     RoleSet
	}{
		{"cd unsigned", models.DocumentKindCD, nil, false, RoleSet{models.RoleWarehouse, models.RoleClient}},
		{"cd warehouse only", models.DocumentKindCD, []models.Role{models.RoleWarehouse}, false, RoleSet{models.RoleClient}},
		{"cd both", models.DocumentKindCD, []models.Role{models.RoleClient, models.RoleWarehouse}, true, RoleSet{}},
		{"bp client only", models.DocumentKindBP, []models.Role{models.RoleClient}, false, RoleSet{models.RoleWarehouse}},
		{"pagare client", models.DocumentKindPagare, []models.Role{models.RoleClient}, true, RoleSet{}},
		{"pagare bank only", models.DocumentKindPagare, []models.Role{models.RoleBank}, false, RoleSet{models.RoleClient}},
		{"pagare client and bank", models.DocumentKindPagare, []models.Role{models.RoleBank, models.RoleClient}, true, RoleSet{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := Evaluate(tt.kind, signed(tt.kind, tt.roles...))
			assert.True(t, st.Exists)
			assert.Equal(t, tt.fullySigned, st.FullySigned)
			assert.Equal(t, tt.missing, st.MissingRoles())
		})
	}
}

func TestEvaluateIgnoresRolesOutsideAllowedSet(t *testing.T) {
	st := Evaluate(models.DocumentKindCD, signed(models.DocumentKindCD, models.RoleBank, models.RoleClient))

	assert.Equal(t, RoleSet{models.RoleClient}, st.SignedBy)
	assert.False(t, st.FullySigned)
}

func TestSignedByIsCanonicallyOrdered(t *testing.T) {
	st := Evaluate(models.DocumentKindPagare, signed(models.DocumentKindPagare, models.RoleBank, models.RoleClient))
	assert.Equal(t, RoleSet{models.RoleClient, models.RoleBank}, st.SignedBy)
}

func TestAllowedRoles(t *testing.T) {
	assert.Equal(t, RoleSet{models.RoleClient, models.RoleBank}, AllowedRoles(models.DocumentKindPagare))
	assert.Equal(t, RoleSet{models.RoleWarehouse, models.RoleClient}, AllowedRoles(models.DocumentKindBP))
	assert.Empty(t, AllowedRoles(models.DocumentKind("XX")))
}

func TestEvaluateIsDeterministic(t *testing.T) {
	doc := signed(models.DocumentKindBP, models.RoleWarehouse)
	assert.Equal(t, Evaluate(models.DocumentKindBP, doc), Evaluate(models.DocumentKindBP, doc))
}
