package engine_test

import (
	"math/rand/v2"
	"testing"

	"github.com/dukex/journeys/pkg/engine"
	"github.com/dukex/journeys/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestEvaluateClause(t *testing.T) {
	execCtx := map[string]any{
		"customer": map[string]any{
			"balance":      150000,
			"account_type": "savings",
			"tags":         []any{"vip", "early"},
			"score":        "42",
			"city":         "Porto",
		},
		"event": map[string]any{"amount": 12.5},
	}

	tests := []struct {
		name   string
		clause models.Condition
		want   bool
	}{
		{"greater than", models.Condition{Field: "customer.balance", Operator: models.OperatorGreaterThan, Value: 100000}, true},
		{"not greater than", models.Condition{Field: "customer.balance", Operator: models.OperatorGreaterThan, Value: 200000.0}, false},
		{"less than", models.Condition{Field: "customer.balance", Operator: models.OperatorLessThan, Value: "200000"}, true},
		{"numeric string", models.Condition{Field: "customer.score", Operator: models.OperatorGreaterThan, Value: 40}, true},
		{"equals number across types", models.Condition{Field: "customer.balance", Operator: models.OperatorEquals, Value: 150000.0}, true},
		{"equals string", models.Condition{Field: "customer.account_type", Operator: models.OperatorEquals, Value: "savings"}, true},
		{"not equals", models.Condition{Field: "customer.account_type", Operator: models.OperatorNotEquals, Value: "checking"}, true},
		{"contains substring", models.Condition{Field: "customer.city", Operator: models.OperatorContains, Value: "ort"}, true},
		{"contains list item", models.Condition{Field: "customer.tags", Operator: models.OperatorContains, Value: "vip"}, true},
		{"list without item", models.Condition{Field: "customer.tags", Operator: models.OperatorContains, Value: "churned"}, false},
		{"bare field reads customer", models.Condition{Field: "balance", Operator: models.OperatorGreaterThan, Value: 0}, true},
		{"event payload", models.Condition{Field: "event.amount", Operator: models.OperatorLessThan, Value: 20}, true},
		{"missing field", models.Condition{Field: "customer.zip", Operator: models.OperatorNotEquals, Value: "1000"}, false},
		{"non numeric comparison", models.Condition{Field: "customer.city", Operator: models.OperatorGreaterThan, Value: 1}, false},
		{"unknown operator", models.Condition{Field: "customer.city", Operator: "matches", Value: "Porto"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, engine.EvaluateClause(tt.clause, execCtx))
		})
	}
}

func TestEvaluateCondition_Logic(t *testing.T) {
	execCtx := map[string]any{"customer": map[string]any{"balance": 50000, "account_type": "savings"}}

	rich := models.Condition{Field: "customer.balance", Operator: models.OperatorGreaterThan, Value: 100000}
	savings := models.Condition{Field: "customer.account_type", Operator: models.OperatorEquals, Value: "savings"}

	assert.False(t, engine.EvaluateCondition(&models.ConditionConfig{
		Logic:      models.LogicAnd,
		Conditions: []models.Condition{rich, savings},
	}, execCtx))

	assert.True(t, engine.EvaluateCondition(&models.ConditionConfig{
		Logic:      models.LogicOr,
		Conditions: []models.Condition{rich, savings},
	}, execCtx))

	assert.False(t, engine.EvaluateCondition(&models.ConditionConfig{Logic: models.LogicAnd}, execCtx))
}

func TestChooseBranch(t *testing.T) {
	config := &models.SplitConfig{
		SplitType: models.SplitTypeABTest,
		Branches: []models.SplitBranch{
			{ID: "a", Weight: 70, NextNodeID: "email"},
			{ID: "b", Weight: 30, NextNodeID: "sms"},
		},
	}

	assert.Equal(t, 0, engine.ChooseBranch(config, nil, 0))
	assert.Equal(t, 0, engine.ChooseBranch(config, nil, 0.69))
	assert.Equal(t, 1, engine.ChooseBranch(config, nil, 0.7))
	assert.Equal(t, 1, engine.ChooseBranch(config, nil, 0.999))

	assert.Equal(t, -1, engine.ChooseBranch(&models.SplitConfig{}, nil, 0.5))
}

func TestChooseBranch_WeightsAreRelative(t *testing.T) {
	config := &models.SplitConfig{
		SplitType: models.SplitTypeABTest,
		Branches: []models.SplitBranch{
			{Weight: 1, NextNodeID: "a"},
			{Weight: 3, NextNodeID: "b"},
		},
	}

	assert.Equal(t, 0, engine.ChooseBranch(config, nil, 0.24))
	assert.Equal(t, 1, engine.ChooseBranch(config, nil, 0.25))
}

func TestChooseBranch_Distribution(t *testing.T) {
	config := &models.SplitConfig{
		SplitType: models.SplitTypeABTest,
		Branches: []models.SplitBranch{
			{ID: "a", Weight: 70, NextNodeID: "email"},
			{ID: "b", Weight: 30, NextNodeID: "sms"},
		},
	}

	random := rand.New(rand.NewPCG(7, 11))
	counts := make([]int, 2)

	const draws = 10000

	for range draws {
		counts[engine.ChooseBranch(config, nil, random.Float64())]++
	}

	assert.InDelta(t, 0.70, float64(counts[0])/draws, 0.05)
	assert.InDelta(t, 0.30, float64(counts[1])/draws, 0.05)
}

func TestChooseBranch_EvenSplit(t *testing.T) {
	config := &models.SplitConfig{
		SplitType: models.SplitTypeABTest,
		Branches: []models.SplitBranch{
			{ID: "a", Weight: 50, NextNodeID: "email"},
			{ID: "b", Weight: 50, NextNodeID: "sms"},
		},
	}

	random := rand.New(rand.NewPCG(2026, 4))
	counts := make([]int, 2)

	for range 10000 {
		counts[engine.ChooseBranch(config, nil, random.Float64())]++
	}

	for branch, count := range counts {
		assert.InDelta(t, 5000, count, 250, "branch %d", branch)
	}
}

func TestChooseBranch_MultiBranch(t *testing.T) {
	vip := models.Condition{Field: "customer.tier", Operator: models.OperatorEquals, Value: "vip"}
	config := &models.SplitConfig{
		SplitType: models.SplitTypeMultiBranch,
		Branches: []models.SplitBranch{
			{ID: "vip", Condition: &vip, Weight: 90, NextNodeID: "concierge"},
			{ID: "rest", Weight: 10, NextNodeID: "newsletter"},
		},
	}

	regular := map[string]any{"customer": map[string]any{"tier": "standard"}}
	assert.Equal(t, 1, engine.ChooseBranch(config, regular, 0.01), "ineligible branch is skipped")

	premium := map[string]any{"customer": map[string]any{"tier": "vip"}}
	assert.Equal(t, 0, engine.ChooseBranch(config, premium, 0.5))

	onlyConditional := &models.SplitConfig{
		SplitType: models.SplitTypeMultiBranch,
		Branches:  []models.SplitBranch{{ID: "vip", Condition: &vip, Weight: 1, NextNodeID: "concierge"}},
	}
	assert.Equal(t, 0, engine.ChooseBranch(onlyConditional, regular, 0.5), "falls back to every branch")
}

func TestChooseBranch_ZeroWeightsAreUniform(t *testing.T) {
	config := &models.SplitConfig{
		SplitType: models.SplitTypeABTest,
		Branches: []models.SplitBranch{
			{NextNodeID: "a"},
			{NextNodeID: "b"},
			{NextNodeID: "c"},
		},
	}

	assert.Equal(t, 0, engine.ChooseBranch(config, nil, 0.1))
	assert.Equal(t, 1, engine.ChooseBranch(config, nil, 0.5))
	assert.Equal(t, 2, engine.ChooseBranch(config, nil, 0.9))
}
