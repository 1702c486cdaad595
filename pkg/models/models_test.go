package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJourneyNode_UnmarshalJSON_DecodesConfigByType(t *testing.T) {
	payload := `{
		"id": "cond-1",
		"type": "condition",
		"name": "Has balance",
		"config": {
			"conditions": [{"field": "customer.balance", "operator": "greater_than", "value": 0}],
			"logic": "and",
			"true_path": "push-1",
			"false_path": "sms-1"
		},
		"next": ["push-1", "sms-1"],
		"position": {"x": 10, "y": 20}
	}`

	var node JourneyNode

	err := json.Unmarshal([]byte(payload), &node)
	require.NoError(t, err)

	config, ok := node.Config.(*ConditionConfig)
	require.True(t, ok, "expected *ConditionConfig, got %T", node.Config)

	assert.Equal(t, NodeTypeCondition, config.NodeType())
	assert.Equal(t, LogicAnd, config.Logic)
	assert.Equal(t, "push-1", config.TruePath)
	assert.Equal(t, "sms-1", config.FalsePath)
	assert.Equal(t, OperatorGreaterThan, config.Conditions[0].Operator)
	assert.Equal(t, Position{X: 10, Y: 20}, node.Position)
	assert.Equal(t, []string{"push-1", "sms-1"}, node.Successors())
}

func TestJourneyNode_UnmarshalJSON_EmptyConfig(t *testing.T) {
	var node JourneyNode

	err := json.Unmarshal([]byte(`{"id":"end","type":"end"}`), &node)
	require.NoError(t, err)

	assert.IsType(t, &EndConfig{}, node.Config)
}

func TestJourneyNode_UnmarshalJSON_UnknownType(t *testing.T) {
	var node JourneyNode

	err := json.Unmarshal([]byte(`{"id":"x","type":"goal"}`), &node)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownNodeType)
}

func TestJourneyNode_Successors(t *testing.T) {
	split := &JourneyNode{
		ID:   "split",
		Type: NodeTypeSplit,
		Config: &SplitConfig{
			SplitType: SplitTypeABTest,
			Branches: []SplitBranch{
				{ID: "a", Weight: 50, NextNodeID: "email-a"},
				{ID: "b", Weight: 50, NextNodeID: "email-b"},
			},
		},
	}
	wait := &JourneyNode{ID: "wait", Type: NodeTypeWait, Config: &WaitConfig{Duration: "24h"}, Next: []string{"end"}}

	assert.Equal(t, []string{"email-a", "email-b"}, split.Successors())
	assert.Equal(t, []string{"end"}, wait.Successors())
}

type countingVisitor struct {
	visited []NodeType
}

func (v *countingVisitor) VisitTrigger(*TriggerNodeConfig) error {
	v.visited = append(v.visited, NodeTypeTrigger)

	return nil
}

func (v *countingVisitor) VisitWait(*WaitConfig) error {
	v.visited = append(v.visited, NodeTypeWait)

	return nil
}

func (v *countingVisitor) VisitCondition(*ConditionConfig) error {
	v.visited = append(v.visited, NodeTypeCondition)

	return nil
}

func (v *countingVisitor) VisitAction(*ActionConfig) error {
	v.visited = append(v.visited, NodeTypeAction)

	return nil
}

func (v *countingVisitor) VisitSplit(*SplitConfig) error {
	v.visited = append(v.visited, NodeTypeSplit)

	return nil
}

func (v *countingVisitor) VisitEnd(*EndConfig) error {
	v.visited = append(v.visited, NodeTypeEnd)

	return nil
}

func TestNodeConfig_AcceptDispatchesEveryType(t *testing.T) {
	visitor := &countingVisitor{}

	for _, nodeType := range NodeTypes {
		config, err := NewNodeConfig(nodeType)
		require.NoError(t, err)
		require.NoError(t, config.Accept(visitor))
		assert.Equal(t, nodeType, config.NodeType())
	}

	assert.Equal(t, NodeTypes, visitor.visited)
}

func TestJourney_CloneIsIndependent(t *testing.T) {
	journey := &Journey{
		ID:     "j-1",
		Name:   "Welcome",
		Status: JourneyStatusActive,
		Nodes: []*JourneyNode{
			{ID: "t", Type: NodeTypeTrigger, Config: &TriggerNodeConfig{}, Next: []string{"e"}},
			{ID: "e", Type: NodeTypeEnd, Config: &EndConfig{}},
		},
	}

	clone, err := journey.Clone()
	require.NoError(t, err)

	clone.Nodes[0].Next = []string{"other"}

	assert.Equal(t, []string{"e"}, journey.Nodes[0].Next)
	assert.IsType(t, &TriggerNodeConfig{}, clone.Nodes[0].Config)
}

func TestJourney_Validation(t *testing.T) {
	validate := validator.New(validator.WithRequiredStructEnabled())

	journey := &Journey{
		Name:    "",
		Status:  "unknown",
		Trigger: JourneyTrigger{Type: TriggerTypeManual},
	}

	err := validate.Struct(journey)
	require.Error(t, err)

	var validationErrors validator.ValidationErrors
	require.ErrorAs(t, err, &validationErrors)

	fields := make([]string, 0, len(validationErrors))
	for _, fieldErr := range validationErrors {
		fields = append(fields, fieldErr.Field())
	}

	assert.Contains(t, fields, "Name")
	assert.Contains(t, fields, "Status")
}

func TestParseWaitDuration(t *testing.T) {
	tests := []struct {
		token    string
		expected time.Duration
		wantErr  bool
	}{
		{token: "24h", expected: 24 * time.Hour},
		{token: "90m", expected: 90 * time.Minute},
		{token: "24", expected: 24 * time.Hour},
		{token: "1.5", expected: 90 * time.Minute},
		{token: "2d", expected: 48 * time.Hour},
		{token: " 72h ", expected: 72 * time.Hour},
		{token: "", wantErr: true},
		{token: "0", wantErr: true},
		{token: "-1h", wantErr: true},
		{token: "soon", wantErr: true},
		{token: "xd", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			duration, err := ParseWaitDuration(tt.token)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidWaitDuration)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expected, duration)
		})
	}
}

func TestExecutionStatus_IsTerminal(t *testing.T) {
	assert.False(t, ExecutionStatusActive.IsTerminal())
	assert.True(t, ExecutionStatusCompleted.IsTerminal())
	assert.True(t, ExecutionStatusFailed.IsTerminal())
	assert.True(t, ExecutionStatusExited.IsTerminal())
}
