package engine

import "maps"

// Environment is the mutable state of one run. Variables start as a copy of
// the input and are never rolled back.
type Environment struct {
	input     map[string]any
	variables map[string]any
	output    *EventLog

	currentItem any
	hasItem     bool
}

func NewEnvironment(input map[string]any, output *EventLog) *Environment {
	in := maps.Clone(input)
	if in == nil {
		in = map[string]any{}
	}
	return &Environment{
		input:     in,
		variables: maps.Clone(in),
		output:    output,
	}
}

// Get returns the bound value, or nil and false for an unbound name.
func (e *Environment) Get(name string) (any, bool) {
	v, ok := e.variables[name]
	return v, ok
}

func (e *Environment) Set(name string, value any) {
	e.variables[name] = value
}

// Input reads the caller-supplied input, unaffected by later bindings.
func (e *Environment) Input(name string) (any, bool) {
	v, ok := e.input[name]
	return v, ok
}

// Variables returns a copy of every binding made so far.
func (e *Environment) Variables() map[string]any {
	return maps.Clone(e.variables)
}

func (e *Environment) CurrentItem() (any, bool) {
	return e.currentItem, e.hasItem
}

// withItem runs fn with item as the current loop element and restores the
// enclosing element afterwards, including when fn fails.
func (e *Environment) withItem(item any, fn func() error) error {
	prev, hadPrev := e.currentItem, e.hasItem
	e.currentItem, e.hasItem = item, true
	defer func() {
		e.currentItem, e.hasItem = prev, hadPrev
	}()
	return fn()
}

func (e *Environment) Output() *EventLog {
	return e.output
}
