// Package aggregate consolida os bundles de uma operação em indicadores.
package aggregate

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ferreirogomes/custodia/bundle"
	"github.com/ferreirogomes/custodia/models"
	"github.com/ferreirogomes/custodia/semaphore"
)

// AssetView é o estado derivado de um ativo já pronto para agregação.
type AssetView struct {
	Asset     models.Asset
	State     bundle.State
	Semaphore semaphore.Color
}

// Stats são as contagens de uma operação.
type Stats struct {
	Total     int `json:"total"`
	Tokenized int `json:"tokenized"`
	Released  int `json:"released"`
	Blocked   int `json:"blocked"`
	Available int `json:"available"`
	Ready     int `json:"ready"`
	Progress  int `json:"progress"`
}

// Summarize calcula as contagens. Ativos liberados não entram em Blocked nem Available.
func Summarize(views []AssetView) Stats {
	s := Stats{Total: len(views)}
	for _, v := range views {
		stage := v.State.Stage
		if stage >= bundle.StageTokenized {
			s.Tokenized++
		}
		if stage == bundle.StageReleased {
			s.Released++
		} else {
			switch v.Semaphore {
			case semaphore.Red:
				s.Blocked++
			case semaphore.Green:
				s.Available++
			}
		}
		if v.State.Readiness.Ready {
			s.Ready++
		}
	}
	if s.Total > 0 {
		s.Progress = int(math.Round(float64(s.Tokenized) / float64(s.Total) * 100))
	}
	return s
}

// OperationStatus deriva o status grosso da operação pelos estágios.
func OperationStatus(views []AssetView) models.OperationStatus {
	if len(views) == 0 {
		return models.OperationStatusPending
	}
	var uploaded, signed, tokenized, released int
	for _, v := range views {
		st := v.State.Stage
		if st >= bundle.StageDocumentsUploaded {
			uploaded++
		}
		if st >= bundle.StageDocumentsSigned {
			signed++
		}
		if st >= bundle.StageTokenized {
			tokenized++
		}
		if st == bundle.StageReleased {
			released++
		}
	}
	n := len(views)
	switch {
	case released == n:
		return models.OperationStatusReleased
	case released > 0:
		return models.OperationStatusPartiallyReleased
	case tokenized == n:
		return models.OperationStatusTokenized
	case tokenized > 0:
		return models.OperationStatusPartiallyTokenized
	case signed == n:
		return models.OperationStatusDocumentsSigned
	case uploaded > 0:
		return models.OperationStatusDocumentsInProgress
	}
	return models.OperationStatusPending
}

// Compliance é um valor tri-state: indeterminado é distinto de não conforme.
type Compliance string

const (
	Compliant     Compliance = "COMPLIANT"
	NonCompliant  Compliance = "NON_COMPLIANT"
	Indeterminate Compliance = "INDETERMINATE"
)

// Guarantee é o resultado da avaliação de garantia/risco.
type Guarantee struct {
	Compliance      Compliance      `json:"compliance"`
	CollateralValue decimal.Decimal `json:"collateral_value"`
	Coverage        *string         `json:"coverage,omitempty"` // colateral/giro
	RequiredRatio   *string         `json:"required_ratio,omitempty"`
	Reason          string          `json:"reason,omitempty"`
}

// ParseRatio converte "A:B" em A/B.
func ParseRatio(s string) (decimal.Decimal, error) {
	a, b, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("razão %q não está no formato A:B", s)
	}
	num, err := decimal.NewFromString(strings.TrimSpace(a))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("numerador inválido em %q: %w", s, err)
	}
	den, err := decimal.NewFromString(strings.TrimSpace(b))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("denominador inválido em %q: %w", s, err)
	}
	if den.IsZero() {
		return decimal.Decimal{}, fmt.Errorf("denominador zero em %q", s)
	}
	return num.Div(den), nil
}

// EvaluateGuarantee compara a soma dos valores dos ativos com o giro.
func EvaluateGuarantee(assets []models.Asset, giro decimal.NullDecimal, ratio string) Guarantee {
	total := decimal.Zero
	for _, a := range assets {
		total = total.Add(a.Value)
	}
	g := Guarantee{Compliance: Indeterminate, CollateralValue: total}

	required, err := ParseRatio(ratio)
	if err != nil {
		g.Reason = err.Error()
		return g
	}
	req := required.String()
	g.RequiredRatio = &req

	if !giro.Valid || giro.Decimal.IsZero() {
		g.Reason = "valor de giro ausente ou zero"
		return g
	}

	coverage := total.Div(giro.Decimal)
	cov := coverage.String()
	g.Coverage = &cov
	if coverage.GreaterThanOrEqual(required) {
		g.Compliance = Compliant
	} else {
		g.Compliance = NonCompliant
	}
	return g
}
