package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// NodeType is the discriminator of the journey node union.
type NodeType string

const (
	NodeTypeTrigger   NodeType = "trigger"
	NodeTypeWait      NodeType = "wait"
	NodeTypeCondition NodeType = "condition"
	NodeTypeAction    NodeType = "action"
	NodeTypeSplit     NodeType = "split"
	NodeTypeEnd       NodeType = "end"
)

// NodeTypes lists every node type in canonical order.
var NodeTypes = []NodeType{
	NodeTypeTrigger,
	NodeTypeWait,
	NodeTypeCondition,
	NodeTypeAction,
	NodeTypeSplit,
	NodeTypeEnd,
}

// ErrUnknownNodeType is returned when decoding a node with an unsupported type.
var ErrUnknownNodeType = errors.New("unknown node type")

// Position is editor metadata; it never influences execution.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NodeConfig is the closed union of per-type node configurations.
//
// Consumers that must handle every node type implement NodeVisitor: adding a node type adds a
// method to the visitor and every implementation stops compiling until it handles the new type.
type NodeConfig interface {
	NodeType() NodeType
	Accept(visitor NodeVisitor) error

	isNodeConfig()
}

// NodeVisitor dispatches over the node config union.
type NodeVisitor interface {
	VisitTrigger(config *TriggerNodeConfig) error
	VisitWait(config *WaitConfig) error
	VisitCondition(config *ConditionConfig) error
	VisitAction(config *ActionConfig) error
	VisitSplit(config *SplitConfig) error
	VisitEnd(config *EndConfig) error
}

// JourneyNode is one step of a journey graph.
type JourneyNode struct {
	ID       string     `json:"id"       validate:"required"`
	Type     NodeType   `json:"type"     validate:"required,oneof=trigger wait condition action split end"`
	Name     string     `json:"name"`
	Config   NodeConfig `json:"config"`
	Next     []string   `json:"next"`
	Position Position   `json:"position"`
}

type rawJourneyNode struct {
	ID       string          `json:"id"`
	Type     NodeType        `json:"type"`
	Name     string          `json:"name"`
	Config   json.RawMessage `json:"config,omitempty"`
	Next     []string        `json:"next"`
	Position Position        `json:"position"`
}

// NewNodeConfig returns the zero config for the given node type.
func NewNodeConfig(nodeType NodeType) (NodeConfig, error) {
	switch nodeType {
	case NodeTypeTrigger:
		return &TriggerNodeConfig{}, nil
	case NodeTypeWait:
		return &WaitConfig{}, nil
	case NodeTypeCondition:
		return &ConditionConfig{Logic: LogicAnd}, nil
	case NodeTypeAction:
		return &ActionConfig{}, nil
	case NodeTypeSplit:
		return &SplitConfig{SplitType: SplitTypeABTest}, nil
	case NodeTypeEnd:
		return &EndConfig{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownNodeType, nodeType)
	}
}

// UnmarshalJSON decodes the config according to the node type.
func (n *JourneyNode) UnmarshalJSON(data []byte) error {
	var raw rawJourneyNode

	err := json.Unmarshal(data, &raw)
	if err != nil {
		return err
	}

	config, err := DecodeNodeConfig(raw.Type, raw.Config)
	if err != nil {
		return fmt.Errorf("node %s: %w", raw.ID, err)
	}

	*n = JourneyNode{
		ID:       raw.ID,
		Type:     raw.Type,
		Name:     raw.Name,
		Config:   config,
		Next:     raw.Next,
		Position: raw.Position,
	}

	if len(n.Next) == 0 && n.RoutesByConfig() {
		n.Next = n.ConfiguredNext()
	}

	return nil
}

// DecodeNodeConfig decodes a raw JSON config for the given node type.
func DecodeNodeConfig(nodeType NodeType, data json.RawMessage) (NodeConfig, error) {
	config, err := NewNodeConfig(nodeType)
	if err != nil {
		return nil, err
	}

	if len(data) == 0 || string(data) == "null" {
		return config, nil
	}

	err = json.Unmarshal(data, config)
	if err != nil {
		return nil, fmt.Errorf("invalid %s config: %w", nodeType, err)
	}

	return config, nil
}

// RoutesByConfig reports whether the node's successors come from its config (condition paths or
// split branches) rather than from Next.
func (n *JourneyNode) RoutesByConfig() bool {
	switch n.Config.(type) {
	case *ConditionConfig, *SplitConfig:
		return true
	default:
		return false
	}
}

// ConfiguredNext returns the Next list implied by a condition or split config, skipping unset paths.
// For other nodes it returns Next unchanged.
func (n *JourneyNode) ConfiguredNext() []string {
	if !n.RoutesByConfig() {
		return n.Next
	}

	var ids []string

	for _, id := range n.Successors() {
		if id != "" {
			ids = append(ids, id)
		}
	}

	return ids
}

// Successors returns the ids the node can move to, in routing order.
func (n *JourneyNode) Successors() []string {
	switch config := n.Config.(type) {
	case *ConditionConfig:
		return []string{config.TruePath, config.FalsePath}
	case *SplitConfig:
		ids := make([]string, 0, len(config.Branches))
		for _, branch := range config.Branches {
			ids = append(ids, branch.NextNodeID)
		}

		return ids
	default:
		return n.Next
	}
}

// TriggerNodeConfig is the empty config of a trigger node.
type TriggerNodeConfig struct{}

func (c *TriggerNodeConfig) NodeType() NodeType               { return NodeTypeTrigger }
func (c *TriggerNodeConfig) Accept(visitor NodeVisitor) error { return visitor.VisitTrigger(c) }
func (c *TriggerNodeConfig) isNodeConfig()                    {}

// EndConfig is the empty config of an end node.
type EndConfig struct{}

func (c *EndConfig) NodeType() NodeType               { return NodeTypeEnd }
func (c *EndConfig) Accept(visitor NodeVisitor) error { return visitor.VisitEnd(c) }
func (c *EndConfig) isNodeConfig()                    {}

// WaitConfig suspends an execution for a duration or until an event arrives.
type WaitConfig struct {
	// Duration is a wait token: "24h", "90m", "24" (hours) or "2d".
	Duration string `json:"duration,omitempty"`
	// WaitForEvent names the customer event that resumes the execution.
	WaitForEvent string `json:"wait_for_event,omitempty"`
	// MaxWaitTime bounds an event wait; the execution resumes on whichever fires first.
	MaxWaitTime string `json:"max_wait_time,omitempty"`
}

func (c *WaitConfig) NodeType() NodeType               { return NodeTypeWait }
func (c *WaitConfig) Accept(visitor NodeVisitor) error { return visitor.VisitWait(c) }
func (c *WaitConfig) isNodeConfig()                    {}

// IsEventWait reports whether the wait resumes on a customer event.
func (c *WaitConfig) IsEventWait() bool {
	return c.WaitForEvent != ""
}

// Operator is a condition clause comparison.
type Operator string

const (
	OperatorEquals      Operator = "equals"
	OperatorNotEquals   Operator = "not_equals"
	OperatorGreaterThan Operator = "greater_than"
	OperatorLessThan    Operator = "less_than"
	OperatorContains    Operator = "contains"
)

// Logic combines condition clauses.
type Logic string

const (
	LogicAnd Logic = "and"
	LogicOr  Logic = "or"
)

// Condition is one clause evaluated against the execution context.
type Condition struct {
	Field    string   `json:"field"    validate:"required"`
	Operator Operator `json:"operator" validate:"required,oneof=equals not_equals greater_than less_than contains"`
	Value    any      `json:"value"`
}

// ConditionConfig routes an execution to the "yes" or "no" path.
type ConditionConfig struct {
	Conditions []Condition `json:"conditions" validate:"required,min=1,dive"`
	Logic      Logic       `json:"logic"      validate:"required,oneof=and or"`
	TruePath   string      `json:"true_path"`
	FalsePath  string      `json:"false_path"`
}

func (c *ConditionConfig) NodeType() NodeType               { return NodeTypeCondition }
func (c *ConditionConfig) Accept(visitor NodeVisitor) error { return visitor.VisitCondition(c) }
func (c *ConditionConfig) isNodeConfig()                    {}

// Channel is a customer-facing messaging channel.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelSMS      Channel = "sms"
	ChannelPush     Channel = "push"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelInApp    Channel = "in_app"
)

// Channels lists every supported channel.
var Channels = []Channel{ChannelEmail, ChannelSMS, ChannelPush, ChannelWhatsApp, ChannelInApp}

// MessageContent is the message template of an action node.
type MessageContent struct {
	Subject string `json:"subject,omitempty"`
	Body    string `json:"body"`
	CTAText string `json:"cta_text,omitempty"`
	CTAURL  string `json:"cta_url,omitempty"`
}

// ActionConfig dispatches a message to the customer.
type ActionConfig struct {
	Channel Channel        `json:"channel" validate:"required,oneof=email sms push whatsapp in_app"`
	Content MessageContent `json:"content"`
	// Personalization maps a variable name to a literal, or to a context field when prefixed with "$".
	Personalization  map[string]string `json:"personalization,omitempty"`
	RequiresApproval bool              `json:"requires_approval"`
}

func (c *ActionConfig) NodeType() NodeType               { return NodeTypeAction }
func (c *ActionConfig) Accept(visitor NodeVisitor) error { return visitor.VisitAction(c) }
func (c *ActionConfig) isNodeConfig()                    {}

// SplitType selects the fan-out flavour of a split node.
type SplitType string

const (
	SplitTypeABTest      SplitType = "ab_test"
	SplitTypeMultiBranch SplitType = "multi_branch"
)

// SplitBranch is one weighted successor path of a split node.
type SplitBranch struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Condition  *Condition `json:"condition,omitempty"`
	Weight     int        `json:"weight"`
	NextNodeID string     `json:"next_node_id"`
}

// SplitConfig fans an execution out to one branch by weighted draw.
type SplitConfig struct {
	SplitType SplitType     `json:"split_type" validate:"required,oneof=ab_test multi_branch"`
	Branches  []SplitBranch `json:"branches"`
}

func (c *SplitConfig) NodeType() NodeType               { return NodeTypeSplit }
func (c *SplitConfig) Accept(visitor NodeVisitor) error { return visitor.VisitSplit(c) }
func (c *SplitConfig) isNodeConfig()                    {}
