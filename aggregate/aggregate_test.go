package aggregate

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ferreirogomes/custodia/bundle"
	"github.com/ferreirogomes/custodia/models"
	"github.com/ferreirogomes/custodia/semaphore"
)

func view(id string, stage bundle.Stage, ready bool) AssetView {
	return AssetView{
		Asset:     models.Asset{ID: id},
		State:     bundle.State{AssetID: id, Stage: stage, Readiness: bundle.Readiness{Ready: ready}},
		Semaphore: semaphore.Of(stage, nil),
	}
}

func TestSummarize(t *testing.T) {
	stats := Summarize([]AssetView{
		view("a", bundle.StagePending, false),
		view("b", bundle.StageDocumentsSigned, true),
		view("c", bundle.StageTokenized, false),
		view("d", bundle.StageReleased, false),
	})

	assert.Equal(t, Stats{Total: 4, Tokenized: 2, Released: 1, Blocked: 1, Available: 2, Ready: 1, Progress: 50}, stats)
}

func TestSummarizeRoundsProgress(t *testing.T) {
	stats := Summarize([]AssetView{
		view("a", bundle.StageTokenized, false),
		view("b", bundle.StagePending, false),
		view("c", bundle.StagePending, false),
	})
	assert.Equal(t, 33, stats.Progress)

	assert.Equal(t, Stats{}, Summarize(nil))
}

func TestOperationStatus(t *testing.T) {
	tests := []struct {
		name   string
		stages []bundle.Stage
		want   models.OperationStatus
	}{
		{"empty", nil, models.OperationStatusPending},
		{"nothing uploaded", []bundle.Stage{bundle.StagePending}, models.OperationStatusPending},
		{"some uploaded", []bundle.Stage{bundle.StageDocumentsUploaded, bundle.StagePending}, models.OperationStatusDocumentsInProgress},
		{"all signed", []bundle.Stage{bundle.StageDocumentsSigned, bundle.StageDocumentsSigned}, models.OperationStatusDocumentsSigned},
		{"one tokenized", []bundle.Stage{bundle.StageTokenized, bundle.StagePending}, models.OperationStatusPartiallyTokenized},
		{"all tokenized", []bundle.Stage{bundle.StageTokenized, bundle.StageTokenized}, models.OperationStatusTokenized},
		{"one released", []bundle.Stage{bundle.StageReleased, bundle.StageTokenized}, models.OperationStatusPartiallyReleased},
		{"all released", []bundle.Stage{bundle.StageReleased}, models.OperationStatusReleased},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var views []AssetView
			for i, st := range tt.stages {
				views = append(views, view(string(rune('a'+i)), st, false))
			}
			assert.Equal(t, tt.want, OperationStatus(views))
		})
	}
}

func assets(values ...int64) []models.Asset {
	var out []models.Asset
	for _, v := range values {
		out = append(out, models.Asset{Value: decimal.NewFromInt(v)})
	}
	return out
}

func TestEvaluateGuaranteeCompliant(t *testing.T) {
	g := EvaluateGuarantee(assets(100000, 50000), decimal.NewNullDecimal(decimal.NewFromInt(100000)), "1:2")

	assert.Equal(t, Compliant, g.Compliance)
	assert.True(t, g.CollateralValue.Equal(decimal.NewFromInt(150000)))
	require.NotNil(t, g.Coverage)
	assert.Equal(t, "1.5", *g.Coverage)
	assert.Equal(t, "0.5", *g.RequiredRatio)
}

func TestEvaluateGuaranteeNonCompliant(t *testing.T) {
	g := EvaluateGuarantee(assets(100000), decimal.NewNullDecimal(decimal.NewFromInt(100000)), "3:2")
	assert.Equal(t, NonCompliant, g.Compliance)
}

func TestEvaluateGuaranteeIndeterminate(t *testing.T) {
	zero := decimal.NewNullDecimal(decimal.Zero)
	tests := []struct {
		name  string
		giro  decimal.NullDecimal
		ratio string
	}{
		{"missing giro", decimal.NullDecimal{}, "1:2"},
		{"zero giro", zero, "1:2"},
		{"malformed ratio", decimal.NewNullDecimal(decimal.NewFromInt(10)), "half"},
		{"zero denominator", decimal.NewNullDecimal(decimal.NewFromInt(10)), "1:0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := EvaluateGuarantee(assets(10), tt.giro, tt.ratio)
			assert.Equal(t, Indeterminate, g.Compliance)
			assert.NotEmpty(t, g.Reason)
			assert.Nil(t, g.Coverage)
		})
	}
}

func TestParseRatio(t *testing.T) {
	r, err := ParseRatio(" 13 : 10 ")
	require.NoError(t, err)
	assert.Equal(t, "1.3", r.String())
}
