package nodeconfig

import (
	"encoding/json"
	"testing"

	"github.com/dukex/journeys/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	vars := map[string]any{
		"first_name": "Ana",
		"balance":    1500.5,
		"count":      3,
		"customer":   map[string]any{"city": "Lisbon"},
	}

	tests := []struct {
		name     string
		template string
		expected string
	}{
		{name: "simple", template: "Hi {{first_name}}!", expected: "Hi Ana!"},
		{name: "spaces inside braces", template: "Hi {{ first_name }}", expected: "Hi Ana"},
		{name: "float", template: "Balance: {{balance}}", expected: "Balance: 1500.5"},
		{name: "int", template: "{{count}} offers", expected: "3 offers"},
		{name: "dotted path", template: "From {{customer.city}}", expected: "From Lisbon"},
		{name: "unresolved stays verbatim", template: "Hi {{nickname}}", expected: "Hi {{nickname}}"},
		{name: "partial path unresolved", template: "{{customer.zip}}", expected: "{{customer.zip}}"},
		{name: "no tokens", template: "Plain text", expected: "Plain text"},
		{name: "malformed token untouched", template: "{{ first name }}", expected: "{{ first name }}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Resolve(tt.template, vars))
		})
	}
}

func TestResolve_NilVars(t *testing.T) {
	assert.Equal(t, "Hi {{first_name}}", Resolve("Hi {{first_name}}", nil))
}

func TestBindings_Precedence(t *testing.T) {
	ctx := map[string]any{
		"customer": map[string]any{
			"first_name": "Ana",
			"nickname":   "Aninha",
			"email":      "ana@example.com",
		},
	}

	custom := map[string]string{
		"promo_code": "WELCOME10",
		"first_name": "Friend",
	}
	personalization := map[string]string{
		"first_name": "$customer.nickname",
		"promo_code": "VIP20",
		"missing":    "$customer.zip",
	}

	bindings := Bindings(personalization, custom, ctx)

	assert.Equal(t, "Aninha", bindings["first_name"], "node personalization wins")
	assert.Equal(t, "VIP20", bindings["promo_code"])
	assert.Equal(t, "ana@example.com", bindings["email"], "catalog reads its source field")
	assert.NotContains(t, bindings, "missing")
	assert.NotContains(t, bindings, "last_name")
}

func TestRenderAction(t *testing.T) {
	config := &models.ActionConfig{
		Channel: models.ChannelEmail,
		Content: models.MessageContent{
			Subject: "{{first_name}}, your {{account_type}} account",
			Body:    "Balance {{account_balance}} in {{customer.city}}. Code {{promo}} {{unknown}}",
			CTAURL:  "https://example.com/{{referral_code}}",
		},
		Personalization: map[string]string{"promo": "SAVE5"},
	}
	ctx := map[string]any{
		"customer": map[string]any{
			"first_name":   "Ana",
			"account_type": "savings",
			"balance":      150000,
			"city":         "Porto",
		},
	}

	content := RenderAction(config, nil, ctx)

	assert.Equal(t, "Ana, your savings account", content.Subject)
	assert.Equal(t, "Balance 150000 in Porto. Code SAVE5 {{unknown}}", content.Body)
	assert.Equal(t, "https://example.com/{{referral_code}}", content.CTAURL)
}

func TestAvailableVariables(t *testing.T) {
	variables := AvailableVariables(map[string]string{"promo_code": "X", "first_name": "Y", "aa": "Z"})

	names := make([]string, 0, len(variables))
	for _, variable := range variables {
		names = append(names, variable.Name)
	}

	assert.Len(t, variables, len(catalog)+2)
	assert.Equal(t, "first_name", names[0])
	assert.Equal(t, []string{"aa", "promo_code"}, names[len(names)-2:])

	// The catalog keeps its declaration order; it is not merged into the sorted custom keys.
	for i, entry := range catalog {
		assert.Equal(t, entry.Name, names[i])
	}

	assert.Equal(t, "unsubscribe_url", names[len(catalog)-1])
}

func TestLookup(t *testing.T) {
	ctx := map[string]any{
		"customer.balance": 10,
		"customer":         map[string]any{"balance": 20, "tier": map[string]any{"name": "gold"}},
	}

	value, ok := Lookup(ctx, "customer.balance")
	require.True(t, ok)
	assert.Equal(t, 10, value, "literal dotted key wins")

	value, ok = Lookup(ctx, "customer.tier.name")
	require.True(t, ok)
	assert.Equal(t, "gold", value)

	_, ok = Lookup(ctx, "customer.tier.name.first")
	assert.False(t, ok)

	_, ok = Lookup(nil, "customer")
	assert.False(t, ok)
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name     string
		nodeType models.NodeType
		config   string
		valid    bool
	}{
		{name: "wait duration", nodeType: models.NodeTypeWait, config: `{"duration":"24"}`, valid: true},
		{name: "wait days", nodeType: models.NodeTypeWait, config: `{"duration":"2d"}`, valid: true},
		{name: "wait event", nodeType: models.NodeTypeWait, config: `{"wait_for_event":"funded","max_wait_time":"72h"}`, valid: true},
		{name: "wait both", nodeType: models.NodeTypeWait, config: `{"duration":"1h","wait_for_event":"funded"}`},
		{name: "wait neither", nodeType: models.NodeTypeWait, config: `{}`},
		{name: "wait garbage", nodeType: models.NodeTypeWait, config: `{"duration":"soon"}`},
		{
			name:     "condition",
			nodeType: models.NodeTypeCondition,
			config:   `{"conditions":[{"field":"customer.balance","operator":"greater_than","value":0}],"logic":"and"}`,
			valid:    true,
		},
		{
			name:     "condition bad operator",
			nodeType: models.NodeTypeCondition,
			config:   `{"conditions":[{"field":"x","operator":"matches"}]}`,
		},
		{name: "condition empty", nodeType: models.NodeTypeCondition, config: `{"conditions":[]}`},
		{name: "action", nodeType: models.NodeTypeAction, config: `{"channel":"sms","content":{"body":"hi"}}`, valid: true},
		{name: "action fax", nodeType: models.NodeTypeAction, config: `{"channel":"fax","content":{"body":"hi"}}`},
		{name: "action no body", nodeType: models.NodeTypeAction, config: `{"channel":"sms","content":{}}`},
		{name: "split", nodeType: models.NodeTypeSplit, config: `{"branches":[{"weight":50},{"weight":50}]}`, valid: true},
		{name: "split weight over 100", nodeType: models.NodeTypeSplit, config: `{"branches":[{"weight":150}]}`},
		{name: "end null", nodeType: models.NodeTypeEnd, config: `null`, valid: true},
		{name: "trigger empty", nodeType: models.NodeTypeTrigger, config: ``, valid: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateConfig(tt.nodeType, json.RawMessage(tt.config))
			if tt.valid {
				assert.NoError(t, err)

				return
			}

			assert.ErrorIs(t, err, ErrSchemaValidation)
		})
	}
}

func TestSchema_UnknownType(t *testing.T) {
	_, err := Schema("goal")

	assert.ErrorIs(t, err, models.ErrUnknownNodeType)
}

func TestSchemas_CoverEveryNodeType(t *testing.T) {
	all := Schemas()

	for _, nodeType := range models.NodeTypes {
		assert.Contains(t, all, nodeType)
	}
}

func TestDecode(t *testing.T) {
	config, err := Decode(models.NodeTypeAction, json.RawMessage(`{"channel":"push","content":{"body":"Explore investments"}}`))
	require.NoError(t, err)

	action, ok := config.(*models.ActionConfig)
	require.True(t, ok)
	assert.Equal(t, models.ChannelPush, action.Channel)

	_, err = Decode(models.NodeTypeAction, json.RawMessage(`{"channel":"push"}`))
	assert.ErrorIs(t, err, ErrSchemaValidation)
}
