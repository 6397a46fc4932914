package types

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// StepKind discriminates the Step variant.
type StepKind string

const (
	StepLog            StepKind = "log"
	StepSetVariable    StepKind = "set_variable"
	StepOutput         StepKind = "output"
	StepConditional    StepKind = "conditional"
	StepForEachEmail   StepKind = "for_each_email"
	StepCallCapability StepKind = "call_capability"
)

// CapabilityKind names an external operation a call_capability step invokes.
type CapabilityKind string

const (
	CapabilityFetchEmails  CapabilityKind = "fetch_emails"
	CapabilitySendReply    CapabilityKind = "send_reply"
	CapabilityMarkRead     CapabilityKind = "mark_read"
	CapabilityGenerateText CapabilityKind = "generate_text"
)

// RequiresAuthorization reports whether the capability is gated behind the
// email account connection.
func (k CapabilityKind) RequiresAuthorization() bool {
	switch k {
	case CapabilityFetchEmails, CapabilitySendReply, CapabilityMarkRead:
		return true
	default:
		return false
	}
}

// Step is one node of a compiled workflow. Kind selects which of the
// remaining fields are meaningful; core.ValidateSteps rejects the rest.
type Step struct {
	Kind StepKind `yaml:"kind"`
	ID   string   `yaml:"id,omitempty"`

	// log
	Message *Expr `yaml:"message,omitempty"`

	// set_variable (Name, Value) and output (Value)
	Name  string `yaml:"name,omitempty"`
	Value *Expr  `yaml:"value,omitempty"`

	// conditional
	Text    *Expr  `yaml:"text,omitempty"`
	Keyword string `yaml:"keyword,omitempty"`

	// for_each_email
	List string `yaml:"list,omitempty"`

	// conditional and for_each_email
	Body []Step `yaml:"body,omitempty"`

	// call_capability
	Call *CapabilityCall `yaml:"call,omitempty"`
}

// Label returns the step ID when set, otherwise its kind.
func (s Step) Label() string {
	if s.ID != "" {
		return s.ID
	}
	if s.Kind == StepCallCapability && s.Call != nil {
		return string(s.Call.Capability)
	}
	return string(s.Kind)
}

// CapabilityCall holds the arguments of a call_capability step.
type CapabilityCall struct {
	Capability CapabilityKind `yaml:"capability"`

	// Result is the variable the capability output is bound to.
	Result string `yaml:"result,omitempty"`

	// fetch_emails: keep only the first Max emails, 0 keeps all.
	Max int `yaml:"max,omitempty"`

	// generate_text
	Input *Expr `yaml:"input,omitempty"`
	Task  *Expr `yaml:"task,omitempty"`

	// send_reply and mark_read. Unset email fields fall back to the
	// current loop item.
	Body     *Expr `yaml:"body,omitempty"`
	EmailID  *Expr `yaml:"email_id,omitempty"`
	Subject  *Expr `yaml:"subject,omitempty"`
	To       *Expr `yaml:"to,omitempty"`
	ThreadID *Expr `yaml:"thread_id,omitempty"`
}

// ExprKind discriminates the Expr variant.
type ExprKind string

const (
	ExprLiteral ExprKind = "literal"
	ExprVar     ExprKind = "var"
	ExprInput   ExprKind = "input"
	ExprConcat  ExprKind = "concat"
	ExprField   ExprKind = "field"
)

// Expr is a value-producing node. Literal uses Text, var/input/field use
// Name, concat uses Parts.
type Expr struct {
	Kind  ExprKind
	Text  string
	Name  string
	Parts []*Expr
}

func Lit(text string) *Expr { return &Expr{Kind: ExprLiteral, Text: text} }
func Var(name string) *Expr { return &Expr{Kind: ExprVar, Name: name} }
func Input(name string) *Expr { return &Expr{Kind: ExprInput, Name: name} }
func Field(name string) *Expr { return &Expr{Kind: ExprField, Name: name} }
func Concat(parts ...*Expr) *Expr { return &Expr{Kind: ExprConcat, Parts: parts} }

// UnmarshalYAML accepts a bare scalar as a literal, or a single-key mapping
// such as {var: reply}, {input: emailBody}, {field: subject} or
// {concat: [a, b]}.
func (e *Expr) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*e = Expr{Kind: ExprLiteral, Text: node.Value}
		return nil
	case yaml.MappingNode:
	default:
		return fmt.Errorf("line %d: expression must be a scalar or a mapping", node.Line)
	}

	if len(node.Content) != 2 {
		return fmt.Errorf("line %d: expression mapping must have exactly one key", node.Line)
	}
	key, val := node.Content[0].Value, node.Content[1]

	kind := ExprKind(key)
	switch kind {
	case ExprLiteral, ExprVar, ExprInput, ExprField:
		if val.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: %q expects a scalar", val.Line, key)
		}
		if kind == ExprLiteral {
			*e = Expr{Kind: kind, Text: val.Value}
		} else {
			*e = Expr{Kind: kind, Name: val.Value}
		}
		return nil
	case ExprConcat:
		var parts []*Expr
		if err := val.Decode(&parts); err != nil {
			return fmt.Errorf("line %d: decoding concat operands: %w", val.Line, err)
		}
		*e = Expr{Kind: ExprConcat, Parts: parts}
		return nil
	default:
		return fmt.Errorf("line %d: unknown expression kind %q", node.Line, key)
	}
}

func (e *Expr) String() string {
	if e == nil {
		return `""`
	}
	switch e.Kind {
	case ExprLiteral:
		return fmt.Sprintf("%q", e.Text)
	case ExprConcat:
		s := "concat("
		for i, p := range e.Parts {
			if i > 0 {
				s += ", "
			}
			s += p.String()
		}
		return s + ")"
	default:
		return fmt.Sprintf("%s(%s)", e.Kind, e.Name)
	}
}
