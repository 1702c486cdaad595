package nodeconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dukex/journeys/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

var ErrSchemaValidation = errors.New("node config does not match schema")

var (
	durationPattern = `^\s*([0-9]+(\.[0-9]+)?d?|([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+)\s*$`

	conditionSchema = map[string]any{
		"type": "object",
		"properties": map[string]any{
			"field": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "Context field path, e.g. customer.balance",
			},
			"operator": map[string]any{
				"type": "string",
				"enum": []string{"equals", "not_equals", "greater_than", "less_than", "contains"},
			},
			"value": map[string]any{"description": "Operand compared with the field value"},
		},
		"required": []string{"field", "operator"},
	}

	schemas = map[models.NodeType]map[string]any{
		models.NodeTypeTrigger: {
			"type":        "object",
			"description": "Entry point of the journey; configured by the journey trigger",
		},
		models.NodeTypeEnd: {
			"type":        "object",
			"description": "Completes the execution",
		},
		models.NodeTypeWait: {
			"type": "object",
			"properties": map[string]any{
				"duration": map[string]any{
					"type":        "string",
					"pattern":     durationPattern,
					"description": "Time to wait: hours (\"24\"), days (\"2d\") or a duration (\"90m\")",
					"examples":    []string{"24", "24h", "2d", "90m"},
				},
				"wait_for_event": map[string]any{
					"type":        "string",
					"minLength":   1,
					"description": "Customer event that resumes the execution",
					"examples":    []string{"account_funded", "email_clicked"},
				},
				"max_wait_time": map[string]any{
					"type":        "string",
					"pattern":     durationPattern,
					"description": "Ceiling for an event wait",
				},
			},
			"oneOf": []map[string]any{
				{"required": []string{"duration"}, "not": map[string]any{"required": []string{"wait_for_event"}}},
				{"required": []string{"wait_for_event"}, "not": map[string]any{"required": []string{"duration"}}},
			},
		},
		models.NodeTypeCondition: {
			"type": "object",
			"properties": map[string]any{
				"conditions": map[string]any{
					"type":     "array",
					"minItems": 1,
					"items":    conditionSchema,
				},
				"logic": map[string]any{
					"type":    "string",
					"enum":    []string{"and", "or"},
					"default": "and",
				},
				"true_path":  map[string]any{"type": "string", "description": "Node taken when the condition holds"},
				"false_path": map[string]any{"type": "string", "description": "Node taken otherwise"},
			},
			"required": []string{"conditions"},
		},
		models.NodeTypeAction: {
			"type": "object",
			"properties": map[string]any{
				"channel": map[string]any{
					"type": "string",
					"enum": []string{"email", "sms", "push", "whatsapp", "in_app"},
				},
				"content": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"subject":  map[string]any{"type": "string"},
						"body":     map[string]any{"type": "string", "minLength": 1},
						"cta_text": map[string]any{"type": "string"},
						"cta_url":  map[string]any{"type": "string"},
					},
					"required": []string{"body"},
				},
				"personalization": map[string]any{
					"type":                 "object",
					"additionalProperties": map[string]any{"type": "string"},
					"description":          "Variable overrides; values prefixed with $ read a context field",
				},
				"requires_approval": map[string]any{"type": "boolean", "default": false},
			},
			"required": []string{"channel", "content"},
		},
		models.NodeTypeSplit: {
			"type": "object",
			"properties": map[string]any{
				"split_type": map[string]any{
					"type":    "string",
					"enum":    []string{"ab_test", "multi_branch"},
					"default": "ab_test",
				},
				"branches": map[string]any{
					"type":     "array",
					"minItems": 1,
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"id":           map[string]any{"type": "string"},
							"name":         map[string]any{"type": "string"},
							"condition":    conditionSchema,
							"weight":       map[string]any{"type": "integer", "minimum": 0, "maximum": 100},
							"next_node_id": map[string]any{"type": "string"},
						},
						"required": []string{"weight"},
					},
				},
			},
			"required": []string{"branches"},
		},
	}
)

// Schema returns the JSON schema of a node type's configuration.
func Schema(nodeType models.NodeType) (map[string]any, error) {
	schema, ok := schemas[nodeType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownNodeType, nodeType)
	}

	return schema, nil
}

// Schemas returns the configuration schema of every node type.
func Schemas() map[models.NodeType]map[string]any {
	result := make(map[models.NodeType]map[string]any, len(schemas))
	for nodeType, schema := range schemas {
		result[nodeType] = schema
	}

	return result
}

// ValidateConfig checks raw JSON config against the node type's schema.
func ValidateConfig(nodeType models.NodeType, data json.RawMessage) error {
	schema, err := Schema(nodeType)
	if err != nil {
		return err
	}

	if len(data) == 0 || string(data) == "null" {
		data = json.RawMessage("{}")
	}

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSchemaValidation, err)
	}

	if !result.Valid() {
		messages := make([]string, 0, len(result.Errors()))
		for _, resultErr := range result.Errors() {
			messages = append(messages, resultErr.String())
		}

		return fmt.Errorf("%w: %s", ErrSchemaValidation, strings.Join(messages, "; "))
	}

	return nil
}

// Decode validates raw config against its schema and decodes it into the typed config.
func Decode(nodeType models.NodeType, data json.RawMessage) (models.NodeConfig, error) {
	err := ValidateConfig(nodeType, data)
	if err != nil {
		return nil, err
	}

	return models.DecodeNodeConfig(nodeType, data)
}
