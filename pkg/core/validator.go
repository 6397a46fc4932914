package core

import (
	"fmt"

	"github.com/arnavsurve/agentblocks/pkg/types"
)

// ValidateWorkflowStructure checks fields at the workflow level: workflow name, input types/uniqueness,
// providers and gate settings.
func ValidateWorkflowStructure(wf *Workflow) error {
	if wf.Name == "" {
		return fmt.Errorf("workflow is missing 'name'")
	}

	validInputTypes := map[string]bool{
		"string":  true,
		"number":  true,
		"boolean": true,
		"list":    true,
	}

	inputNames := make(map[string]bool)
	for i, input := range wf.Inputs {
		if input.Name == "" {
			return fmt.Errorf("input %d is missing 'name'", i)
		}
		if inputNames[input.Name] {
			return fmt.Errorf("duplicate input name: %q", input.Name)
		}
		inputNames[input.Name] = true

		if !validInputTypes[input.Type] {
			return fmt.Errorf("input %q has invalid type %q", input.Name, input.Type)
		}
	}

	providerNames := make(map[string]bool)
	for i, provider := range wf.Providers {
		if provider.Name == "" {
			return fmt.Errorf("provider %d is missing 'name'", i)
		}
		if providerNames[provider.Name] {
			return fmt.Errorf("duplicate provider name: %q", provider.Name)
		}
		providerNames[provider.Name] = true

		if provider.Type == "" {
			return fmt.Errorf("provider %q is missing 'type'", provider.Name)
		}
	}

	if wf.Provider != "" && !providerNames[wf.Provider] {
		return fmt.Errorf("workflow references provider %q, which is not defined in providers", wf.Provider)
	}
	if wf.Provider == "" && len(wf.Providers) > 1 {
		return fmt.Errorf("workflow defines %d providers but does not select one with 'provider'", len(wf.Providers))
	}

	if _, _, err := wf.Gate.Durations(0, 0); err != nil {
		return fmt.Errorf("invalid gate duration: %w", err)
	}

	return nil
}

// SelectedProvider returns the provider the workflow runs against.
func (wf *Workflow) SelectedProvider() (ProviderConfig, bool) {
	for _, p := range wf.Providers {
		if wf.Provider == "" || p.Name == wf.Provider {
			return p, true
		}
	}
	return ProviderConfig{}, false
}

func ValidateRequiredInputs(wf *Workflow, varCtx VarContext) error {
	for _, input := range wf.Inputs {
		if input.Required {
			if _, exists := varCtx[input.Name]; !exists && input.Default == "" {
				return fmt.Errorf("required input %q is missing from the varfile and no default value is provided", input.Name)
			}
		}
	}
	return nil
}

// ValidateSteps checks the shape of a step tree: every step has a known kind,
// defines the fields its kind needs and none that belong to other kinds.
func ValidateSteps(steps []Step) error {
	return validateSteps(steps, "steps")
}

func validateSteps(steps []Step, path string) error {
	for i, step := range steps {
		at := fmt.Sprintf("%s[%d]", path, i)
		if err := validateStep(step, at); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(step Step, at string) error {
	forbid := func(set bool, field string) error {
		if set {
			return fmt.Errorf("%s step %s must not define '%s'", step.Kind, at, field)
		}
		return nil
	}
	checks := func(fields map[string]bool) error {
		for field, set := range fields {
			if err := forbid(set, field); err != nil {
				return err
			}
		}
		return nil
	}

	switch step.Kind {
	case types.StepLog:
		if step.Message == nil {
			return fmt.Errorf("log step %s must define 'message'", at)
		}
		if err := checks(map[string]bool{
			"name": step.Name != "", "value": step.Value != nil, "text": step.Text != nil,
			"keyword": step.Keyword != "", "list": step.List != "", "body": step.Body != nil, "call": step.Call != nil,
		}); err != nil {
			return err
		}
		return validateExpr(step.Message, at+".message")

	case types.StepSetVariable:
		if step.Name == "" {
			return fmt.Errorf("set_variable step %s must define 'name'", at)
		}
		if step.Value == nil {
			return fmt.Errorf("set_variable step %s must define 'value'", at)
		}
		if err := checks(map[string]bool{
			"message": step.Message != nil, "text": step.Text != nil, "keyword": step.Keyword != "",
			"list": step.List != "", "body": step.Body != nil, "call": step.Call != nil,
		}); err != nil {
			return err
		}
		return validateExpr(step.Value, at+".value")

	case types.StepOutput:
		if step.Value == nil {
			return fmt.Errorf("output step %s must define 'value'", at)
		}
		if err := checks(map[string]bool{
			"message": step.Message != nil, "name": step.Name != "", "text": step.Text != nil,
			"keyword": step.Keyword != "", "list": step.List != "", "body": step.Body != nil, "call": step.Call != nil,
		}); err != nil {
			return err
		}
		return validateExpr(step.Value, at+".value")

	case types.StepConditional:
		if step.Text == nil {
			return fmt.Errorf("conditional step %s must define 'text'", at)
		}
		if step.Keyword == "" {
			return fmt.Errorf("conditional step %s must define 'keyword'", at)
		}
		if err := checks(map[string]bool{
			"message": step.Message != nil, "name": step.Name != "", "value": step.Value != nil,
			"list": step.List != "", "call": step.Call != nil,
		}); err != nil {
			return err
		}
		if err := validateExpr(step.Text, at+".text"); err != nil {
			return err
		}
		return validateSteps(step.Body, at+".body")

	case types.StepForEachEmail:
		if step.List == "" {
			return fmt.Errorf("for_each_email step %s must define 'list'", at)
		}
		if err := checks(map[string]bool{
			"message": step.Message != nil, "name": step.Name != "", "value": step.Value != nil,
			"text": step.Text != nil, "keyword": step.Keyword != "", "call": step.Call != nil,
		}); err != nil {
			return err
		}
		return validateSteps(step.Body, at+".body")

	case types.StepCallCapability:
		if step.Call == nil {
			return fmt.Errorf("call_capability step %s must define 'call'", at)
		}
		if err := checks(map[string]bool{
			"message": step.Message != nil, "name": step.Name != "", "value": step.Value != nil,
			"text": step.Text != nil, "keyword": step.Keyword != "", "list": step.List != "", "body": step.Body != nil,
		}); err != nil {
			return err
		}
		return validateCall(step.Call, at+".call")

	case "":
		return fmt.Errorf("step %s is missing 'kind'", at)
	default:
		return fmt.Errorf("step %s has unknown kind %q", at, step.Kind)
	}
}

func validateCall(call *types.CapabilityCall, at string) error {
	forbid := func(set bool, field string) error {
		if set {
			return fmt.Errorf("%s call %s must not define '%s'", call.Capability, at, field)
		}
		return nil
	}
	emailFields := call.Body != nil || call.EmailID != nil || call.Subject != nil || call.To != nil || call.ThreadID != nil

	switch call.Capability {
	case types.CapabilityFetchEmails:
		if call.Max < 0 {
			return fmt.Errorf("fetch_emails call %s: 'max' must not be negative", at)
		}
		if err := forbid(call.Input != nil || call.Task != nil, "input/task"); err != nil {
			return err
		}
		return forbid(emailFields, "body/email_id/subject/to/thread_id")

	case types.CapabilityGenerateText:
		if call.Task == nil {
			return fmt.Errorf("generate_text call %s must define 'task'", at)
		}
		if err := forbid(call.Max != 0, "max"); err != nil {
			return err
		}
		if err := forbid(emailFields, "body/email_id/subject/to/thread_id"); err != nil {
			return err
		}
		for field, e := range map[string]*types.Expr{"input": call.Input, "task": call.Task} {
			if err := validateExpr(e, at+"."+field); err != nil {
				return err
			}
		}
		return nil

	case types.CapabilitySendReply:
		if call.Body == nil {
			return fmt.Errorf("send_reply call %s must define 'body'", at)
		}
		if err := forbid(call.Max != 0, "max"); err != nil {
			return err
		}
		if err := forbid(call.Input != nil || call.Task != nil, "input/task"); err != nil {
			return err
		}
		for field, e := range map[string]*types.Expr{
			"body": call.Body, "email_id": call.EmailID, "subject": call.Subject, "to": call.To, "thread_id": call.ThreadID,
		} {
			if err := validateExpr(e, at+"."+field); err != nil {
				return err
			}
		}
		return nil

	case types.CapabilityMarkRead:
		if err := forbid(call.Max != 0, "max"); err != nil {
			return err
		}
		if err := forbid(call.Input != nil || call.Task != nil, "input/task"); err != nil {
			return err
		}
		if err := forbid(call.Body != nil || call.Subject != nil || call.To != nil || call.ThreadID != nil, "body/subject/to/thread_id"); err != nil {
			return err
		}
		if err := forbid(call.Result != "", "result"); err != nil {
			return err
		}
		return validateExpr(call.EmailID, at+".email_id")

	case "":
		return fmt.Errorf("call %s is missing 'capability'", at)
	default:
		return fmt.Errorf("call %s has unknown capability %q", at, call.Capability)
	}
}

// validateExpr accepts nil; callers check presence themselves.
func validateExpr(e *types.Expr, at string) error {
	if e == nil {
		return nil
	}
	switch e.Kind {
	case types.ExprLiteral:
		return nil
	case types.ExprVar, types.ExprInput, types.ExprField:
		if e.Name == "" {
			return fmt.Errorf("%s expression at %s must name a %s", e.Kind, at, e.Kind)
		}
		return nil
	case types.ExprConcat:
		if len(e.Parts) < 2 {
			return fmt.Errorf("concat expression at %s needs at least two operands", at)
		}
		for i, p := range e.Parts {
			if p == nil {
				return fmt.Errorf("concat expression at %s has an empty operand %d", at, i)
			}
			if err := validateExpr(p, fmt.Sprintf("%s.concat[%d]", at, i)); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("expression at %s has unknown kind %q", at, e.Kind)
	}
}
