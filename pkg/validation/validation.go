// Package validation checks journey definitions before they can be saved or published.
package validation

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/dukex/journeys/pkg/models"
	"github.com/go-playground/validator/v10"
)

// Error codes returned in FieldError.Code.
const (
	CodeRequired          = "required"
	CodeInvalidValue      = "invalid_value"
	CodeDuplicateID       = "duplicate_id"
	CodeMissingTrigger    = "missing_trigger"
	CodeMultipleTriggers  = "multiple_triggers"
	CodeDanglingReference = "dangling_reference"
	CodeUnreachable       = "unreachable"
	CodeNoEndReachable    = "no_end_reachable"
	CodeIdenticalPaths    = "identical_paths"
	CodeInvalidConfig     = "invalid_config"
	CodeInvalidWeight     = "invalid_weight"
	CodeDeadEnd           = "dead_end"
	CodeNextMismatch      = "next_mismatch"
)

// FieldError is one structured validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Errors is the list of validation failures for a journey. An empty list means valid.
type Errors []FieldError

func (e Errors) Error() string {
	messages := make([]string, 0, len(e))
	for _, fieldErr := range e {
		messages = append(messages, fieldErr.Error())
	}

	return "journey validation failed: " + strings.Join(messages, "; ")
}

// OK reports whether there are no validation failures.
func (e Errors) OK() bool {
	return len(e) == 0
}

// HasCode reports whether any failure carries the given code.
func (e Errors) HasCode(code string) bool {
	for _, fieldErr := range e {
		if fieldErr.Code == code {
			return true
		}
	}

	return false
}

func (e *Errors) add(field, code, format string, args ...any) {
	*e = append(*e, FieldError{Field: field, Code: code, Message: fmt.Sprintf(format, args...)})
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})

	return validate
}

// Validate checks a journey definition. It never panics on malformed data; every problem is
// reported as a FieldError.
func Validate(journey *models.Journey) Errors {
	var errs Errors

	if journey == nil {
		errs.add("journey", CodeRequired, "journey is required")

		return errs
	}

	errs = append(errs, structErrors("", journey)...)
	errs = append(errs, triggerErrors(journey.Trigger)...)

	index, nodeErrs := indexNodes(journey.Nodes)
	errs = append(errs, nodeErrs...)

	for position, node := range journey.Nodes {
		if node == nil {
			continue
		}

		errs = append(errs, configErrors(fmt.Sprintf("nodes[%d]", position), node, index)...)
	}

	errs = append(errs, graphErrors(journey.Nodes, index)...)

	return errs
}

func structErrors(prefix string, value any) Errors {
	var errs Errors

	err := structValidator().Struct(value)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		errs.add(strings.TrimSuffix(prefix, "."), CodeInvalidValue, "%v", err)

		return errs
	}

	for _, fieldErr := range validationErrors {
		field := prefix + fieldPath(fieldErr.Namespace())
		if fieldErr.Tag() == "required" || fieldErr.Tag() == "min" {
			errs.add(field, CodeRequired, "%s is required", field)

			continue
		}

		errs.add(field, CodeInvalidValue, "%s has invalid value %v (%s)", field, fieldErr.Value(), fieldErr.Tag())
	}

	return errs
}

// fieldPath turns "Journey.Trigger.Type" into "trigger.type".
func fieldPath(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}

	for i, part := range parts {
		parts[i] = toSnake(part)
	}

	return strings.Join(parts, ".")
}

func toSnake(name string) string {
	var builder strings.Builder

	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 && name[i-1] != '[' {
				builder.WriteByte('_')
			}

			builder.WriteRune(r + ('a' - 'A'))

			continue
		}

		builder.WriteRune(r)
	}

	return builder.String()
}

func triggerErrors(trigger models.JourneyTrigger) Errors {
	var errs Errors

	switch trigger.Type {
	case models.TriggerTypeEvent:
		if trigger.Config.EventName == "" {
			errs.add("trigger.config.event_name", CodeRequired, "event trigger requires an event name")
		}
	case models.TriggerTypeSegmentEntry:
		if trigger.Config.SegmentID == "" {
			errs.add("trigger.config.segment_id", CodeRequired, "segment entry trigger requires a segment id")
		}
	case models.TriggerTypeSchedule:
		_, err := trigger.Config.Schedule.CronExpression()
		if err != nil {
			errs.add("trigger.config.schedule", CodeInvalidConfig, "%v", err)
		}
	case models.TriggerTypeManual:
	}

	return errs
}

func indexNodes(nodes []*models.JourneyNode) (map[string]*models.JourneyNode, Errors) {
	var errs Errors

	index := make(map[string]*models.JourneyNode, len(nodes))
	triggers := 0

	for position, node := range nodes {
		field := fmt.Sprintf("nodes[%d]", position)

		if node == nil {
			errs.add(field, CodeRequired, "node is required")

			continue
		}

		errs = append(errs, structErrors(field+".", node)...)

		if node.ID == "" {
			continue
		}

		if _, exists := index[node.ID]; exists {
			errs.add(field+".id", CodeDuplicateID, "node id %q is used more than once", node.ID)

			continue
		}

		index[node.ID] = node

		if node.Type == models.NodeTypeTrigger {
			triggers++
		}
	}

	switch {
	case triggers == 0:
		errs.add("nodes", CodeMissingTrigger, "journey must have exactly one trigger node")
	case triggers > 1:
		errs.add("nodes", CodeMultipleTriggers, "journey must have exactly one trigger node, found %d", triggers)
	}

	return index, errs
}

func configErrors(field string, node *models.JourneyNode, index map[string]*models.JourneyNode) Errors {
	var errs Errors

	if node.Config == nil {
		errs.add(field+".config", CodeRequired, "node %s has no config", node.ID)

		return errs
	}

	if node.Config.NodeType() != node.Type {
		errs.add(field+".config", CodeInvalidConfig, "node %s has a %s config but type %s",
			node.ID, node.Config.NodeType(), node.Type)

		return errs
	}

	for i, next := range node.Next {
		if _, ok := index[next]; !ok {
			errs.add(fmt.Sprintf("%s.next[%d]", field, i), CodeDanglingReference,
				"node %s references unknown node %q", node.ID, next)
		}
	}

	switch node.Type {
	case models.NodeTypeTrigger, models.NodeTypeWait, models.NodeTypeAction:
		if len(node.Next) == 0 {
			errs.add(field+".next", CodeDeadEnd, "%s node %s has no successor; only end nodes may finish a journey",
				node.Type, node.ID)
		}
	case models.NodeTypeCondition, models.NodeTypeSplit:
		if !slices.Equal(node.Next, node.ConfiguredNext()) {
			errs.add(field+".next", CodeNextMismatch, "node %s next %v does not match its configured paths %v",
				node.ID, node.Next, node.ConfiguredNext())
		}
	case models.NodeTypeEnd:
	}

	checker := &configChecker{field: field, node: node, index: index}

	err := node.Config.Accept(checker)
	if err != nil {
		errs.add(field+".config", CodeInvalidConfig, "%v", err)
	}

	return append(errs, checker.errs...)
}

// configChecker validates the type-specific config of one node.
type configChecker struct {
	field string
	node  *models.JourneyNode
	index map[string]*models.JourneyNode
	errs  Errors
}

func (c *configChecker) VisitTrigger(*models.TriggerNodeConfig) error {
	return nil
}

func (c *configChecker) VisitEnd(*models.EndConfig) error {
	if len(c.node.Next) > 0 {
		c.errs.add(c.field+".next", CodeInvalidConfig, "end node %s cannot have successors", c.node.ID)
	}

	return nil
}

func (c *configChecker) VisitWait(config *models.WaitConfig) error {
	switch {
	case config.Duration == "" && config.WaitForEvent == "":
		c.errs.add(c.field+".config", CodeRequired, "wait node %s needs a duration or an event", c.node.ID)
	case config.Duration != "" && config.WaitForEvent != "":
		c.errs.add(c.field+".config", CodeInvalidConfig,
			"wait node %s cannot combine a duration with an event wait; use max_wait_time", c.node.ID)
	}

	if config.Duration != "" {
		c.checkDuration("duration", config.Duration)
	}

	if config.MaxWaitTime != "" {
		if config.WaitForEvent == "" {
			c.errs.add(c.field+".config.max_wait_time", CodeInvalidConfig,
				"max_wait_time only applies to event waits")
		}

		c.checkDuration("max_wait_time", config.MaxWaitTime)
	}

	return nil
}

func (c *configChecker) checkDuration(name, token string) {
	_, err := models.ParseWaitDuration(token)
	if err != nil {
		c.errs.add(c.field+".config."+name, CodeInvalidConfig, "%v", err)
	}
}

func (c *configChecker) VisitCondition(config *models.ConditionConfig) error {
	c.errs = append(c.errs, structErrors(c.field+".config.", config)...)

	c.checkReference("config.true_path", config.TruePath)
	c.checkReference("config.false_path", config.FalsePath)

	if config.TruePath != "" && config.TruePath == config.FalsePath {
		c.errs.add(c.field+".config", CodeIdenticalPaths,
			"condition node %s must route yes and no to distinct nodes", c.node.ID)
	}

	return nil
}

func (c *configChecker) VisitAction(config *models.ActionConfig) error {
	c.errs = append(c.errs, structErrors(c.field+".config.", config)...)

	if strings.TrimSpace(config.Content.Body) == "" {
		c.errs.add(c.field+".config.content.body", CodeRequired, "action node %s needs a message body", c.node.ID)
	}

	return nil
}

func (c *configChecker) VisitSplit(config *models.SplitConfig) error {
	c.errs = append(c.errs, structErrors(c.field+".config.", config)...)

	if len(config.Branches) == 0 {
		c.errs.add(c.field+".config.branches", CodeRequired, "split node %s needs at least one branch", c.node.ID)

		return nil
	}

	total := 0

	for i, branch := range config.Branches {
		field := fmt.Sprintf("config.branches[%d]", i)

		if branch.Weight < 0 || branch.Weight > 100 {
			c.errs.add(c.field+"."+field+".weight", CodeInvalidWeight,
				"branch weight must be between 0 and 100, got %d", branch.Weight)
		} else {
			total += branch.Weight
		}

		c.checkReference(field+".next_node_id", branch.NextNodeID)

		if branch.Condition != nil {
			c.errs = append(c.errs, structErrors(c.field+"."+field+".condition.", branch.Condition)...)
		}
	}

	if total == 0 {
		c.errs.add(c.field+".config.branches", CodeInvalidWeight, "split node %s has no branch with a positive weight", c.node.ID)
	}

	return nil
}

func (c *configChecker) checkReference(field, id string) {
	if id == "" {
		c.errs.add(c.field+"."+field, CodeRequired, "node %s is missing %s", c.node.ID, field)

		return
	}

	if _, ok := c.index[id]; !ok {
		c.errs.add(c.field+"."+field, CodeDanglingReference, "node %s references unknown node %q", c.node.ID, id)
	}
}

// graphErrors checks that every node is reachable from the trigger and that an end node is reachable.
func graphErrors(nodes []*models.JourneyNode, index map[string]*models.JourneyNode) Errors {
	var errs Errors

	var trigger *models.JourneyNode

	for _, node := range nodes {
		if node != nil && node.Type == models.NodeTypeTrigger {
			trigger = node

			break
		}
	}

	if trigger == nil {
		return nil
	}

	reached := Reachable(trigger.ID, index)

	endReached := false

	for position, node := range nodes {
		if node == nil || node.ID == "" {
			continue
		}

		if !reached[node.ID] {
			errs.add(fmt.Sprintf("nodes[%d]", position), CodeUnreachable,
				"node %s is not reachable from the trigger", node.ID)

			continue
		}

		if node.Type == models.NodeTypeEnd {
			endReached = true
		}
	}

	if !endReached {
		errs.add("nodes", CodeNoEndReachable, "no end node is reachable from the trigger")
	}

	return errs
}

// Reachable returns the set of node ids reachable from start by breadth-first traversal.
// Unknown successor ids are ignored.
func Reachable(start string, index map[string]*models.JourneyNode) map[string]bool {
	reached := map[string]bool{start: true}
	queue := []string{start}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		node, ok := index[current]
		if !ok {
			continue
		}

		for _, next := range successors(node) {
			if next == "" || reached[next] {
				continue
			}

			if _, exists := index[next]; !exists {
				continue
			}

			reached[next] = true
			queue = append(queue, next)
		}
	}

	return reached
}

func successors(node *models.JourneyNode) []string {
	if node.Config == nil {
		return node.Next
	}

	ids := append([]string{}, node.Next...)

	return append(ids, node.Successors()...)
}
