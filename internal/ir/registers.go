package ir

import "strings"

type RegisterFile uint8

const (
	FileInteger RegisterFile = iota
	FileFloatingPoint
	FileSystem
	FileStatus
	FileConditionCodes
)

func (f RegisterFile) String() string {
	switch f {
	case FileInteger:
		return "integer"
	case FileFloatingPoint:
		return "fp"
	case FileSystem:
		return "system"
	case FileStatus:
		return "status"
	case FileConditionCodes:
		return "cc"
	}
	return "unknown"
}

type RegisterClass uint32

const (
	AvailableForAllocation RegisterClass = 1 << iota
	Special
	LinkAddress
	StackPointer
	ProgramCounter
	StatusRegister
	Scratch
	ConditionCodes
)

var classNames = []struct {
	class RegisterClass
	name  string
}{
	{AvailableForAllocation, "alloc"},
	{Special, "special"},
	{LinkAddress, "link"},
	{StackPointer, "sp"},
	{ProgramCounter, "pc"},
	{StatusRegister, "status"},
	{Scratch, "scratch"},
	{ConditionCodes, "cc"},
}

func (c RegisterClass) String() string {
	var parts []string
	for _, cn := range classNames {
		if c&cn.class != 0 {
			parts = append(parts, cn.name)
		}
	}
	return strings.Join(parts, "|")
}

// RegisterDescriptor is one physical register of the target. Descriptors are
// built once per platform and never mutated afterwards.
type RegisterDescriptor struct {
	// Index is the position in the platform's register table.
	Index    int
	Name     string
	Encoding uint32
	File     RegisterFile
	Double   bool
	Class    RegisterClass
	// StorageOffset and StorageSize locate the register in the physical
	// storage of its file, in bytes. Registers whose storage overlaps alias.
	StorageOffset int
	StorageSize   int
}

func (r *RegisterDescriptor) Is(c RegisterClass) bool {
	return r.Class&c != 0
}

// IsFloatingPoint reports whether the register holds VFP data.
func (r *RegisterDescriptor) IsFloatingPoint() bool {
	return r.File == FileFloatingPoint
}

// Overlaps reports whether two registers of the same file share storage.
func (r *RegisterDescriptor) Overlaps(o *RegisterDescriptor) bool {
	if r.File != o.File {
		return false
	}
	return r.StorageOffset < o.StorageOffset+o.StorageSize &&
		o.StorageOffset < r.StorageOffset+r.StorageSize
}

func (r *RegisterDescriptor) String() string {
	return r.Name
}
