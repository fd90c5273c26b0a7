package ir

import (
	"fmt"
	"strings"
)

type BlockKind uint8

const (
	BlockNormal BlockKind = iota
	BlockEntry
	BlockExit
	BlockExceptionHandler
)

func (k BlockKind) String() string {
	switch k {
	case BlockNormal:
		return "normal"
	case BlockEntry:
		return "entry"
	case BlockExit:
		return "exit"
	case BlockExceptionHandler:
		return "handler"
	}
	return fmt.Sprintf("block(%d)", uint8(k))
}

// BasicBlock is a straight-line run of operators ending in a control
// operator.
type BasicBlock struct {
	Name      string
	Kind      BlockKind
	Cold      bool
	Weight    int
	Operators []Operator
}

// Terminator returns the final control operator, or nil.
func (b *BasicBlock) Terminator() Control {
	if len(b.Operators) == 0 {
		return nil
	}
	c, _ := b.Operators[len(b.Operators)-1].(Control)
	return c
}

func (b *BasicBlock) Successors() []*BasicBlock {
	if t := b.Terminator(); t != nil {
		return t.Successors()
	}
	return nil
}

// HardwareException tags methods that are entered by the processor rather
// than by a call.
type HardwareException uint8

const (
	ExceptionNone HardwareException = iota
	ExceptionReset
	ExceptionUndefinedInstruction
	ExceptionSoftwareInterrupt
	ExceptionPrefetchAbort
	ExceptionDataAbort
	ExceptionInterrupt
	ExceptionFastInterrupt
	// ExceptionVectorTable marks the method whose body is the vector table.
	ExceptionVectorTable
	// ExceptionBootstrap marks the code placed at the reset address.
	ExceptionBootstrap
)

var exceptionNames = [...]string{
	"none", "reset", "undefined", "swi", "prefetch_abort", "data_abort",
	"irq", "fiq", "vector_table", "bootstrap",
}

func (e HardwareException) String() string {
	if int(e) < len(exceptionNames) {
		return exceptionNames[e]
	}
	return fmt.Sprintf("exception(%d)", uint8(e))
}

func ParseHardwareException(name string) (HardwareException, bool) {
	for i, n := range exceptionNames {
		if n == name {
			return HardwareException(i), true
		}
	}
	return ExceptionNone, false
}

// IsHandler reports whether e is one of the processor exception entries.
func (e HardwareException) IsHandler() bool {
	return e >= ExceptionReset && e <= ExceptionFastInterrupt
}

// Method is one compiled unit: a signature and its control-flow graph.
// Blocks[0] is the entry block.
type Method struct {
	Name   string
	Params []Type
	Result Type
	// HasThis prepends an implicit reference argument.
	HasThis     bool
	Blocks      []*BasicBlock
	Exception   HardwareException
	FullContext bool
	// Placement overrides the memory region chosen for the method.
	Placement string
}

func (m *Method) Entry() *BasicBlock {
	if len(m.Blocks) == 0 {
		return nil
	}
	return m.Blocks[0]
}

func (m *Method) Block(name string) *BasicBlock {
	for _, b := range m.Blocks {
		if b.Name == name {
			return b
		}
	}
	return nil
}

// Signature returns the argument types including the implicit this.
func (m *Method) Signature() []Type {
	if !m.HasThis {
		return m.Params
	}
	return append([]Type{Reference}, m.Params...)
}

// Validate checks the structural invariants the backends rely on.
func (m *Method) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("ir: method without a name")
	}
	if len(m.Blocks) == 0 {
		return fmt.Errorf("ir: method %s has no blocks", m.Name)
	}
	seen := make(map[*BasicBlock]bool, len(m.Blocks))
	names := make(map[string]bool, len(m.Blocks))
	for _, b := range m.Blocks {
		if names[b.Name] {
			return fmt.Errorf("ir: method %s: duplicate block %q", m.Name, b.Name)
		}
		names[b.Name] = true
		seen[b] = true
	}
	for _, b := range m.Blocks {
		t := b.Terminator()
		if t == nil {
			return fmt.Errorf("ir: method %s: block %s does not end in a control operator", m.Name, b.Name)
		}
		for i, op := range b.Operators[:len(b.Operators)-1] {
			if _, ok := op.(Control); ok {
				return fmt.Errorf("ir: method %s: block %s: control operator at %d before the end", m.Name, b.Name, i)
			}
		}
		for _, s := range t.Successors() {
			if s == nil || !seen[s] {
				return fmt.Errorf("ir: method %s: block %s branches outside the method", m.Name, b.Name)
			}
		}
	}
	return nil
}

func (m *Method) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "method %s", m.Name)
	if m.Exception != ExceptionNone {
		fmt.Fprintf(&sb, " [%s]", m.Exception)
	}
	sb.WriteString("\n")
	for _, b := range m.Blocks {
		fmt.Fprintf(&sb, "%s:\n", b.Name)
		for _, op := range b.Operators {
			fmt.Fprintf(&sb, "\t%s\n", op)
		}
	}
	return sb.String()
}

// DataDescriptor is a blob placed in a data region.
type DataDescriptor struct {
	Name      string
	Mutable   bool
	Placement string
	Bytes     []byte
}

// Program is the unit handed to a backend.
type Program struct {
	Entrypoint string
	Methods    []*Method
	Data       []*DataDescriptor
}

func (p *Program) Method(name string) *Method {
	for _, m := range p.Methods {
		if m.Name == name {
			return m
		}
	}
	return nil
}

// Handler returns the method registered for a hardware exception.
func (p *Program) Handler(e HardwareException) *Method {
	for _, m := range p.Methods {
		if m.Exception == e {
			return m
		}
	}
	return nil
}

func (p *Program) Validate() error {
	names := make(map[string]bool)
	for _, m := range p.Methods {
		if names[m.Name] {
			return fmt.Errorf("ir: duplicate method %q", m.Name)
		}
		names[m.Name] = true
		if err := m.Validate(); err != nil {
			return err
		}
	}
	for _, d := range p.Data {
		if names[d.Name] {
			return fmt.Errorf("ir: data %q collides with another symbol", d.Name)
		}
		names[d.Name] = true
	}
	for _, m := range p.Methods {
		for _, b := range m.Blocks {
			for _, op := range b.Operators {
				if call, ok := op.(*DirectCall); ok && !names[call.Target] {
					return fmt.Errorf("ir: method %s calls unknown method %q", m.Name, call.Target)
				}
			}
		}
	}
	return nil
}
