package definition_test

import (
	"path/filepath"
	"testing"

	"github.com/dukex/journeys/pkg/definition"
	"github.com/dukex/journeys/pkg/models"
	"github.com/dukex/journeys/pkg/testutil"
	"github.com/dukex/journeys/pkg/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const onboardingYAML = `
id: onboarding
name: Onboarding
trigger:
  type: event
  config:
    event_name: account_opened
    event_filter:
      plan: gold
custom_variables:
  promo_code: WELCOME10
nodes:
  - id: trigger
    type: trigger
    next: [wait]
  - id: wait
    type: wait
    config:
      duration: 24h
    next: [condition]
  - id: condition
    type: condition
    config:
      logic: and
      conditions:
        - field: customer.balance
          operator: greater_than
          value: 0
      true_path: push
      false_path: sms
  - id: push
    type: action
    config:
      channel: push
      content:
        body: "Explore investments, {{first_name}}"
    next: [end]
  - id: sms
    type: action
    config:
      channel: sms
      content:
        body: "Fund your account with {{promo_code}}"
    next: [end]
  - id: end
    type: end
`

func TestDecode_YAML(t *testing.T) {
	journey, err := definition.Decode([]byte(onboardingYAML), definition.FormatYAML)
	require.NoError(t, err)

	assert.Equal(t, "onboarding", journey.ID)
	assert.Equal(t, models.JourneyStatusDraft, journey.Status, "status defaults to draft")
	assert.Equal(t, "gold", journey.Trigger.Config.EventFilter["plan"])
	assert.Equal(t, "WELCOME10", journey.CustomVariables["promo_code"])
	require.Len(t, journey.Nodes, 6)

	wait, ok := journey.NodeByID("wait")
	require.True(t, ok)
	require.IsType(t, &models.WaitConfig{}, wait.Config)
	assert.Equal(t, "24h", wait.Config.(*models.WaitConfig).Duration)

	condition, _ := journey.NodeByID("condition")
	config := condition.Config.(*models.ConditionConfig)
	assert.Equal(t, "push", config.TruePath)
	assert.InDelta(t, 0.0, config.Conditions[0].Value, 0)

	push, _ := journey.NodeByID("push")
	assert.Equal(t, models.ChannelPush, push.Config.(*models.ActionConfig).Channel)

	assert.True(t, validation.Validate(journey).OK())
}

func TestDecode_UnknownNodeType(t *testing.T) {
	_, err := definition.Decode([]byte(`{"name":"x","nodes":[{"id":"a","type":"teleport"}]}`), definition.FormatJSON)
	require.ErrorIs(t, err, models.ErrUnknownNodeType)
}

func TestDecode_InvalidYAML(t *testing.T) {
	_, err := definition.Decode([]byte("nodes: [unterminated"), definition.FormatYAML)
	require.Error(t, err)
}

func TestFormatOf(t *testing.T) {
	tests := []struct {
		path string
		want definition.Format
	}{
		{"journey.yaml", definition.FormatYAML},
		{"journey.YML", definition.FormatYAML},
		{"dir/journey.json", definition.FormatJSON},
	}

	for _, tt := range tests {
		format, err := definition.FormatOf(tt.path)
		require.NoError(t, err)
		assert.Equal(t, tt.want, format, tt.path)
	}

	_, err := definition.FormatOf("journey.toml")
	require.ErrorIs(t, err, definition.ErrUnsupportedFormat)
}

func TestWriteFileRoundTrip(t *testing.T) {
	journey := testutil.OnboardingJourney()
	journey.CustomVariables = map[string]string{"flag": "true", "count": "12", "empty": ""}

	for _, name := range []string{"journey.yaml", "journey.json"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, definition.WriteFile(path, journey))

			loaded, err := definition.LoadFile(path)
			require.NoError(t, err)

			assert.Equal(t, journey.ID, loaded.ID)
			assert.Equal(t, journey.Trigger, loaded.Trigger)
			assert.Equal(t, journey.CustomVariables, loaded.CustomVariables, "string values survive unquoting")
			require.Len(t, loaded.Nodes, len(journey.Nodes))

			for i, node := range journey.Nodes {
				assert.Equal(t, node.ID, loaded.Nodes[i].ID)
				assert.Equal(t, node.Successors(), loaded.Nodes[i].Successors())
				assert.Equal(t, node.Position, loaded.Nodes[i].Position)
			}
		})
	}
}
