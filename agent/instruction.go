package agent

import "github.com/citysense-ai/citysense/core"

// InstructionProvider supplies dynamic instruction text at runtime.
// Implementations can derive instructions from session state, resolved
// location data, or the environment.
type InstructionProvider interface {
	Instruction(*core.RunContext) (string, error)
}

// InstructionFunc adapts an ordinary function to the InstructionProvider interface.
type InstructionFunc func(*core.RunContext) (string, error)

// Instruction implements InstructionProvider.
func (f InstructionFunc) Instruction(rc *core.RunContext) (string, error) { return f(rc) }

// Instruction represents either a static instruction string or a dynamic
// provider, mirroring a union of string | provider in a Go-idiomatic way.
// Static text may contain {{state "key"}} template placeholders that are
// substituted from session state before each model call.
type Instruction struct {
	text     string
	provider InstructionProvider
}

// NewInstructionFromText creates an Instruction from a static string.
func NewInstructionFromText(text string) Instruction { return Instruction{text: text} }

// NewInstructionFromProvider creates an Instruction from a dynamic provider.
func NewInstructionFromProvider(p InstructionProvider) Instruction { return Instruction{provider: p} }

// NewInstructionFromFunc creates an Instruction from a function.
func NewInstructionFromFunc(f func(*core.RunContext) (string, error)) Instruction {
	return Instruction{provider: InstructionFunc(f)}
}

// IsStatic reports whether the instruction is backed by a static string.
func (i Instruction) IsStatic() bool { return i.provider == nil }

// Resolve returns the instruction text, invoking the provider if needed.
func (i Instruction) Resolve(rc *core.RunContext) (string, error) {
	if i.provider != nil {
		return i.provider.Instruction(rc)
	}
	return i.text, nil
}
