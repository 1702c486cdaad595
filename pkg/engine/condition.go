package engine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dukex/journeys/pkg/models"
	"github.com/dukex/journeys/pkg/nodeconfig"
)

// EvaluateCondition combines every clause of config with its logic.
// A clause whose field is missing from execCtx is false, whatever its operator.
func EvaluateCondition(config *models.ConditionConfig, execCtx map[string]any) bool {
	if len(config.Conditions) == 0 {
		return false
	}

	if config.Logic == models.LogicOr {
		for _, clause := range config.Conditions {
			if EvaluateClause(clause, execCtx) {
				return true
			}
		}

		return false
	}

	for _, clause := range config.Conditions {
		if !EvaluateClause(clause, execCtx) {
			return false
		}
	}

	return true
}

// EvaluateClause evaluates one clause against the execution context.
func EvaluateClause(clause models.Condition, execCtx map[string]any) bool {
	actual, found := lookupField(execCtx, clause.Field)
	if !found {
		return false
	}

	switch clause.Operator {
	case models.OperatorEquals:
		return equal(actual, clause.Value)
	case models.OperatorNotEquals:
		return !equal(actual, clause.Value)
	case models.OperatorGreaterThan:
		left, lok := toNumber(actual)
		right, rok := toNumber(clause.Value)

		return lok && rok && left > right
	case models.OperatorLessThan:
		left, lok := toNumber(actual)
		right, rok := toNumber(clause.Value)

		return lok && rok && left < right
	case models.OperatorContains:
		return contains(actual, clause.Value)
	default:
		return false
	}
}

// lookupField resolves a dotted path, falling back to the customer attributes for bare names.
func lookupField(execCtx map[string]any, field string) (any, bool) {
	value, found := nodeconfig.Lookup(execCtx, field)
	if found && value != nil {
		return value, true
	}

	value, found = nodeconfig.Lookup(execCtx, ContextCustomerKey+"."+field)

	return value, found && value != nil
}

func equal(actual, expected any) bool {
	left, lok := toNumber(actual)
	right, rok := toNumber(expected)

	if lok && rok {
		return left == right
	}

	return fmt.Sprint(actual) == fmt.Sprint(expected)
}

func contains(actual, expected any) bool {
	switch value := actual.(type) {
	case string:
		return strings.Contains(value, fmt.Sprint(expected))
	case []any:
		for _, item := range value {
			if equal(item, expected) {
				return true
			}
		}

		return false
	case []string:
		for _, item := range value {
			if item == fmt.Sprint(expected) {
				return true
			}
		}

		return false
	default:
		return false
	}
}

func toNumber(value any) (float64, bool) {
	switch number := value.(type) {
	case float64:
		return number, true
	case float32:
		return float64(number), true
	case int:
		return float64(number), true
	case int32:
		return float64(number), true
	case int64:
		return float64(number), true
	case uint:
		return float64(number), true
	case uint64:
		return float64(number), true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(number), 64)

		return parsed, err == nil
	default:
		return 0, false
	}
}
