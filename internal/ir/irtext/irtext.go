// Package irtext reads register-allocated programs written as YAML.
//
// A program lists methods and data blobs. Each block holds a sequence of
// single-key mappings, the key naming the operator and the value carrying
// its operands:
//
//	methods:
//	  - name: add
//	    params: [i32, i32]
//	    result: i32
//	    blocks:
//	      - name: entry
//	        ops:
//	          - add: [r0, r0, r1]
//	          - ret: [r0]
//
// Operands are strings. Registers are named as the target names them, stack
// slots are written local:name, in:0 or out:1, constants #5 or #1.5 and
// symbol addresses @name. A /type suffix overrides the default type, as in
// r0/ref or #-1/i8.
package irtext

import (
	"encoding/hex"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tinyrange/armcc/internal/ir"
)

// Registers resolves register names for a target.
type Registers interface {
	ByName(name string) (*ir.RegisterDescriptor, bool)
}

type programFile struct {
	Entrypoint string       `yaml:"entrypoint"`
	Methods    []methodFile `yaml:"methods"`
	Data       []dataFile   `yaml:"data"`
}

type methodFile struct {
	Name        string      `yaml:"name"`
	Params      []string    `yaml:"params"`
	Result      string      `yaml:"result"`
	This        bool        `yaml:"this"`
	Exception   string      `yaml:"exception"`
	FullContext bool        `yaml:"fullContext"`
	Placement   string      `yaml:"placement"`
	Blocks      []blockFile `yaml:"blocks"`
}

type blockFile struct {
	Name   string      `yaml:"name"`
	Kind   string      `yaml:"kind"`
	Cold   bool        `yaml:"cold"`
	Weight int         `yaml:"weight"`
	Ops    []yaml.Node `yaml:"ops"`
}

type dataFile struct {
	Name      string   `yaml:"name"`
	Mutable   bool     `yaml:"mutable"`
	Placement string   `yaml:"placement"`
	Words     []uint32 `yaml:"words"`
	Hex       string   `yaml:"hex"`
	String    string   `yaml:"string"`
}

// callFile is the mapping form shared by call, callr and intrinsic.
type callFile struct {
	Target  string   `yaml:"target"`
	Name    string   `yaml:"name"`
	Results []string `yaml:"results"`
	Args    []string `yaml:"args"`
}

type registerListFile struct {
	Registers []string `yaml:"registers"`
	Computed  bool     `yaml:"computed"`
	Low       int      `yaml:"low"`
	High      int      `yaml:"high"`
}

type coprocFile struct {
	Cp  uint32 `yaml:"cp"`
	Op1 uint32 `yaml:"op1"`
	CRn uint32 `yaml:"crn"`
	CRm uint32 `yaml:"crm"`
	Op2 uint32 `yaml:"op2"`
	Reg string `yaml:"reg"`
}

// Load parses the program at path.
func Load(path string, regs Registers) (*ir.Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("irtext: %w", err)
	}
	prog, err := Parse(data, regs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return prog, nil
}

// Parse decodes a YAML program. The result is validated.
func Parse(data []byte, regs Registers) (*ir.Program, error) {
	var f programFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("irtext: %w", err)
	}
	prog := &ir.Program{Entrypoint: f.Entrypoint}
	for _, mf := range f.Methods {
		m, err := parseMethod(mf, regs)
		if err != nil {
			return nil, err
		}
		prog.Methods = append(prog.Methods, m)
	}
	for _, df := range f.Data {
		d, err := parseData(df)
		if err != nil {
			return nil, err
		}
		prog.Data = append(prog.Data, d)
	}
	if err := prog.Validate(); err != nil {
		return nil, err
	}
	return prog, nil
}

func parseData(df dataFile) (*ir.DataDescriptor, error) {
	d := &ir.DataDescriptor{Name: df.Name, Mutable: df.Mutable, Placement: df.Placement}
	switch {
	case df.Words != nil:
		for _, w := range df.Words {
			d.Bytes = append(d.Bytes, byte(w), byte(w>>8), byte(w>>16), byte(w>>24))
		}
	case df.Hex != "":
		b, err := hex.DecodeString(strings.ReplaceAll(df.Hex, " ", ""))
		if err != nil {
			return nil, fmt.Errorf("irtext: data %s: %w", df.Name, err)
		}
		d.Bytes = b
	default:
		d.Bytes = []byte(df.String)
	}
	return d, nil
}

func parseType(name string) (ir.Type, error) {
	if name == "" {
		return ir.Void, nil
	}
	k, ok := ir.ParseKind(name)
	if !ok {
		return ir.Type{}, fmt.Errorf("irtext: unknown type %q", name)
	}
	return ir.Type{Kind: k}, nil
}

// methodParser holds the state of one method while its blocks are read.
type methodParser struct {
	regs   Registers
	method *ir.Method
	slots  map[string]*ir.StackLocation
}

func parseMethod(mf methodFile, regs Registers) (*ir.Method, error) {
	m := &ir.Method{
		Name:        mf.Name,
		HasThis:     mf.This,
		FullContext: mf.FullContext,
		Placement:   mf.Placement,
	}
	for _, p := range mf.Params {
		t, err := parseType(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", mf.Name, err)
		}
		m.Params = append(m.Params, t)
	}
	res, err := parseType(mf.Result)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", mf.Name, err)
	}
	m.Result = res
	if mf.Exception != "" {
		e, ok := ir.ParseHardwareException(mf.Exception)
		if !ok {
			return nil, fmt.Errorf("irtext: %s: unknown exception %q", mf.Name, mf.Exception)
		}
		m.Exception = e
	}

	// Blocks are created up front so branches can refer forward.
	for _, bf := range mf.Blocks {
		b := &ir.BasicBlock{Name: bf.Name, Cold: bf.Cold, Weight: bf.Weight}
		switch bf.Kind {
		case "", "normal":
		case "entry":
			b.Kind = ir.BlockEntry
		case "exit":
			b.Kind = ir.BlockExit
		case "handler":
			b.Kind = ir.BlockExceptionHandler
		default:
			return nil, fmt.Errorf("irtext: %s: block %s: unknown kind %q", mf.Name, bf.Name, bf.Kind)
		}
		m.Blocks = append(m.Blocks, b)
	}

	mp := &methodParser{regs: regs, method: m, slots: make(map[string]*ir.StackLocation)}
	for i, bf := range mf.Blocks {
		for _, node := range bf.Ops {
			op, err := mp.operator(&node)
			if err != nil {
				return nil, fmt.Errorf("irtext: %s: block %s line %d: %w", mf.Name, bf.Name, node.Line, err)
			}
			m.Blocks[i].Operators = append(m.Blocks[i].Operators, op)
		}
	}
	return m, nil
}

func (mp *methodParser) block(name string) (*ir.BasicBlock, error) {
	b := mp.method.Block(name)
	if b == nil {
		return nil, fmt.Errorf("unknown block %q", name)
	}
	return b, nil
}

// operand parses one operand string.
func (mp *methodParser) operand(text string) (ir.Expression, error) {
	body, typeName, typed := strings.Cut(strings.TrimSpace(text), "/")
	var typ ir.Type
	if typed {
		t, err := parseType(typeName)
		if err != nil {
			return nil, err
		}
		typ = t
	}

	switch {
	case body == "":
		return nil, fmt.Errorf("empty operand")
	case strings.HasPrefix(body, "@"):
		c := ir.AddressOf(body[1:])
		if typed {
			c.Typ = typ
		}
		return c, nil
	case strings.HasPrefix(body, "#"):
		return constant(body[1:], typ, typed)
	case strings.Contains(body, ":"):
		return mp.stack(body, typ, typed)
	}

	reg, ok := mp.regs.ByName(body)
	if !ok {
		return nil, fmt.Errorf("unknown register %q", body)
	}
	if !typed {
		switch {
		case reg.File == ir.FileFloatingPoint && reg.Double:
			typ = ir.Float64
		case reg.File == ir.FileFloatingPoint:
			typ = ir.Float32
		case reg.File == ir.FileInteger:
			typ = ir.Int32
		default:
			typ = ir.Uint32
		}
	}
	return ir.Reg(reg, typ), nil
}

func constant(text string, typ ir.Type, typed bool) (*ir.Constant, error) {
	if !typed {
		typ = ir.Int32
		if strings.ContainsAny(text, ".") || strings.ContainsAny(text, "eE") && !strings.HasPrefix(text, "0x") {
			typ = ir.Float64
		}
	}
	if typ.IsFloat() {
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("bad constant %q: %w", text, err)
		}
		return ir.Float(typ, v), nil
	}
	if v, err := strconv.ParseInt(text, 0, 64); err == nil {
		return ir.Int(typ, v), nil
	}
	v, err := strconv.ParseUint(text, 0, 64)
	if err != nil {
		return nil, fmt.Errorf("bad constant %q: %w", text, err)
	}
	return &ir.Constant{Typ: typ, Value: v}, nil
}

// stack returns the slot named by text. Repeated references share one
// location so the frame layout sees a single variable.
func (mp *methodParser) stack(text string, typ ir.Type, typed bool) (*ir.StackLocation, error) {
	place, name, _ := strings.Cut(text, ":")
	var pl ir.StackPlacement
	switch place {
	case "in":
		pl = ir.PlacementIn
	case "local":
		pl = ir.PlacementLocal
	case "out":
		pl = ir.PlacementOut
	default:
		return nil, fmt.Errorf("unknown stack placement %q", place)
	}
	if !typed {
		typ = ir.Int32
	}
	key := place + ":" + name
	if loc, ok := mp.slots[key]; ok {
		if typed && !loc.Typ.Equal(typ) {
			return nil, fmt.Errorf("%s used as %s and %s", key, loc.Typ, typ)
		}
		return loc, nil
	}
	var loc *ir.StackLocation
	if idx, err := strconv.Atoi(name); err == nil {
		loc = ir.Stack(pl, "", idx, typ)
	} else {
		loc = ir.Stack(pl, name, 0, typ)
	}
	mp.slots[key] = loc
	return loc, nil
}

func (mp *methodParser) operands(texts []string) ([]ir.Expression, error) {
	out := make([]ir.Expression, 0, len(texts))
	for _, t := range texts {
		e, err := mp.operand(t)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (mp *methodParser) register(text string) (*ir.PhysicalRegister, error) {
	e, err := mp.operand(text)
	if err != nil {
		return nil, err
	}
	r, ok := e.(*ir.PhysicalRegister)
	if !ok {
		return nil, fmt.Errorf("%q is not a register", text)
	}
	return r, nil
}

func (mp *methodParser) registerMask(names []string) (uint16, error) {
	var mask uint16
	for _, n := range names {
		reg, ok := mp.regs.ByName(n)
		if !ok || reg.File != ir.FileInteger {
			return 0, fmt.Errorf("%q is not an integer register", n)
		}
		mask |= 1 << reg.Encoding
	}
	return mask, nil
}

func wantArgs(name string, args []string, n ...int) error {
	for _, want := range n {
		if len(args) == want {
			return nil
		}
	}
	return fmt.Errorf("%s takes %v operands, got %d", name, n, len(args))
}

func number(text string) (int64, error) {
	return strconv.ParseInt(strings.TrimPrefix(text, "#"), 0, 64)
}

// operator decodes one single-key mapping.
func (mp *methodParser) operator(node *yaml.Node) (ir.Operator, error) {
	if node.Kind != yaml.MappingNode || len(node.Content) != 2 {
		return nil, fmt.Errorf("operator must be a single-key mapping")
	}
	name := node.Content[0].Value
	value := node.Content[1]

	switch name {
	case "call", "callr", "intrinsic":
		var cf callFile
		if err := value.Decode(&cf); err != nil {
			return nil, err
		}
		return mp.call(name, cf)
	case "push", "pop", "pushfp", "popfp":
		var rf registerListFile
		if err := value.Decode(&rf); err != nil {
			return nil, err
		}
		return mp.registerTransfer(name, rf)
	case "mcr", "mrc":
		var cf coprocFile
		if err := value.Decode(&cf); err != nil {
			return nil, err
		}
		e, err := mp.operand(cf.Reg)
		if err != nil {
			return nil, err
		}
		c := ir.CoprocessorOperand{CpNum: cf.Cp, Op1: cf.Op1, CRn: cf.CRn, CRm: cf.CRm, Op2: cf.Op2}
		if name == "mcr" {
			return &ir.MoveToCoprocessor{CoprocessorOperand: c, Src: e}, nil
		}
		return &ir.MoveFromCoprocessor{CoprocessorOperand: c, Dst: e}, nil
	}

	var args []string
	if value.Kind == yaml.ScalarNode && value.Value != "" {
		args = []string{value.Value}
	} else if err := value.Decode(&args); err != nil {
		return nil, err
	}
	return mp.simple(name, args)
}

func (mp *methodParser) call(name string, cf callFile) (ir.Operator, error) {
	results, err := mp.operands(cf.Results)
	if err != nil {
		return nil, err
	}
	args, err := mp.operands(cf.Args)
	if err != nil {
		return nil, err
	}
	switch name {
	case "call":
		return &ir.DirectCall{Target: cf.Target, Results: results, Args: args}, nil
	case "callr":
		target, err := mp.operand(cf.Target)
		if err != nil {
			return nil, err
		}
		return &ir.IndirectCall{Target: target, Results: results, Args: args}, nil
	}
	return &ir.IntrinsicCall{Name: cf.Name, Results: results, Args: args}, nil
}

func (mp *methodParser) registerTransfer(name string, rf registerListFile) (ir.Operator, error) {
	load := strings.HasPrefix(name, "pop")
	if strings.HasSuffix(name, "fp") {
		return &ir.MoveFloatingPointRegisters{Load: load, Low: rf.Low, High: rf.High, AddComputed: rf.Computed}, nil
	}
	mask, err := mp.registerMask(rf.Registers)
	if err != nil {
		return nil, err
	}
	return &ir.MoveIntegerRegisters{Load: load, Registers: mask, AddComputed: rf.Computed}, nil
}

// arithmetic splits names such as add.c.s or mul.long.signed. ok is false
// for any other suffix.
func arithmetic(name string) (base string, carryIn, setCarry, long, signed, ok bool) {
	parts := strings.Split(name, ".")
	for _, p := range parts[1:] {
		switch p {
		case "c":
			carryIn = true
		case "s":
			setCarry = true
		case "long":
			long = true
		case "signed":
			signed = true
		default:
			return "", false, false, false, false, false
		}
	}
	return parts[0], carryIn, setCarry, long, signed, true
}

func (mp *methodParser) simple(name string, args []string) (ir.Operator, error) {
	if cond, ok := strings.CutPrefix(name, "b."); ok {
		c, ok := ir.ParseCondition(cond)
		if !ok {
			return nil, fmt.Errorf("unknown condition %q", cond)
		}
		if err := wantArgs(name, args, 2); err != nil {
			return nil, err
		}
		taken, err := mp.block(args[0])
		if err != nil {
			return nil, err
		}
		notTaken, err := mp.block(args[1])
		if err != nil {
			return nil, err
		}
		return &ir.ConditionalControl{Cond: c, Taken: taken, NotTaken: notTaken}, nil
	}
	if cond, ok := strings.CutPrefix(name, "set."); ok {
		c, ok := ir.ParseCondition(cond)
		if !ok {
			return nil, fmt.Errorf("unknown condition %q", cond)
		}
		if err := wantArgs(name, args, 1); err != nil {
			return nil, err
		}
		dst, err := mp.operand(args[0])
		if err != nil {
			return nil, err
		}
		return &ir.SetIfCondition{Cond: c, Dst: dst}, nil
	}

	base, carryIn, setCarry, long, signed, ok := arithmetic(name)
	if !ok {
		base = ""
	}
	if op, ok := ir.ParseBinaryOp(base); ok {
		n := 3
		if long {
			n = 4
		}
		if err := wantArgs(name, args, n); err != nil {
			return nil, err
		}
		ops, err := mp.operands(args)
		if err != nil {
			return nil, err
		}
		b := &ir.Binary{Op: op, Signed: signed, CarryIn: carryIn, SetCarry: setCarry}
		if long {
			b.Dst, b.DstHi, b.Lhs, b.Rhs = ops[0], ops[1], ops[2], ops[3]
		} else {
			b.Dst, b.Lhs, b.Rhs = ops[0], ops[1], ops[2]
		}
		return b, nil
	}
	if op, ok := ir.ParseUnaryOp(base); ok {
		if err := wantArgs(name, args, 2); err != nil {
			return nil, err
		}
		ops, err := mp.operands(args)
		if err != nil {
			return nil, err
		}
		return &ir.Unary{Op: op, Dst: ops[0], Src: ops[1]}, nil
	}

	switch name {
	case "nop":
		return &ir.Nop{}, nil
	case "event":
		if err := wantArgs(name, args, 1); err != nil {
			return nil, err
		}
		for _, e := range []ir.ActivationEvent{ir.EventEnteringException, ir.EventNonReachable, ir.EventAddressTaken} {
			if e.String() == args[0] {
				return &ir.ActivationRecordEvent{Event: e}, nil
			}
		}
		return nil, fmt.Errorf("unknown event %q", args[0])
	case "mov":
		if err := wantArgs(name, args, 2, 3); err != nil {
			return nil, err
		}
		ops, err := mp.operands(args[:2])
		if err != nil {
			return nil, err
		}
		o := &ir.SingleAssignment{Dst: ops[0], Src: ops[1]}
		if len(args) == 3 {
			w, err := number(args[2])
			if err != nil {
				return nil, err
			}
			o.Word = int(w)
		}
		return o, nil
	case "addr":
		if err := wantArgs(name, args, 2); err != nil {
			return nil, err
		}
		dst, err := mp.register(args[0])
		if err != nil {
			return nil, err
		}
		src, err := mp.operand(args[1])
		if err != nil {
			return nil, err
		}
		return &ir.AddressAssignment{Dst: dst, Src: src}, nil
	case "zext", "sext", "trunc":
		if err := wantArgs(name, args, 3); err != nil {
			return nil, err
		}
		ops, err := mp.operands(args[:2])
		if err != nil {
			return nil, err
		}
		n, err := number(args[2])
		if err != nil {
			return nil, err
		}
		switch name {
		case "zext":
			return &ir.ZeroExtend{Dst: ops[0], Src: ops[1], Bytes: int(n)}, nil
		case "sext":
			return &ir.SignExtend{Dst: ops[0], Src: ops[1], Bytes: int(n)}, nil
		}
		return &ir.Truncate{Dst: ops[0], Src: ops[1], Bytes: int(n)}, nil
	case "cvt", "cmp", "tst":
		if err := wantArgs(name, args, 2); err != nil {
			return nil, err
		}
		ops, err := mp.operands(args)
		if err != nil {
			return nil, err
		}
		switch name {
		case "cvt":
			return &ir.Convert{Dst: ops[0], Src: ops[1]}, nil
		case "cmp":
			return &ir.Compare{Lhs: ops[0], Rhs: ops[1]}, nil
		}
		return &ir.BitTest{Lhs: ops[0], Rhs: ops[1]}, nil
	case "br":
		if err := wantArgs(name, args, 1); err != nil {
			return nil, err
		}
		t, err := mp.block(args[0])
		if err != nil {
			return nil, err
		}
		return &ir.UnconditionalControl{Target: t}, nil
	case "switch":
		if len(args) < 2 {
			return nil, fmt.Errorf("switch needs an index and a default")
		}
		idx, err := mp.operand(args[0])
		if err != nil {
			return nil, err
		}
		def, err := mp.block(args[1])
		if err != nil {
			return nil, err
		}
		o := &ir.MultiWayControl{Index: idx, Default: def}
		for _, t := range args[2:] {
			b, err := mp.block(t)
			if err != nil {
				return nil, err
			}
			o.Targets = append(o.Targets, b)
		}
		return o, nil
	case "dead":
		return &ir.DeadControl{}, nil
	case "ret":
		if err := wantArgs(name, args, 0, 1); err != nil {
			return nil, err
		}
		o := &ir.ReturnControl{}
		if len(args) == 1 {
			v, err := mp.operand(args[0])
			if err != nil {
				return nil, err
			}
			o.Value = v
		}
		return o, nil
	case "load", "store":
		if err := wantArgs(name, args, 3); err != nil {
			return nil, err
		}
		off, err := number(args[1])
		if err != nil {
			return nil, err
		}
		if off < math.MinInt32 || off > math.MaxInt32 {
			return nil, fmt.Errorf("offset %d out of range", off)
		}
		base, err := mp.operand(args[0])
		if err != nil {
			return nil, err
		}
		val, err := mp.operand(args[2])
		if err != nil {
			return nil, err
		}
		if name == "load" {
			return &ir.LoadIndirect{Dst: val, Base: base, Offset: int32(off)}, nil
		}
		return &ir.StoreIndirect{Base: base, Offset: int32(off), Src: val}, nil
	case "enter", "leave":
		return &ir.MoveStackPointer{Enter: name == "enter"}, nil
	case "bkpt":
		if err := wantArgs(name, args, 1); err != nil {
			return nil, err
		}
		v, err := number(args[0])
		if err != nil {
			return nil, err
		}
		return &ir.Breakpoint{Value: uint32(v)}, nil
	case "mrs", "mrs.saved":
		if err := wantArgs(name, args, 1); err != nil {
			return nil, err
		}
		dst, err := mp.operand(args[0])
		if err != nil {
			return nil, err
		}
		return &ir.MoveFromStatusRegister{Dst: dst, Saved: name == "mrs.saved"}, nil
	case "msr", "msr.saved":
		if err := wantArgs(name, args, 1, 2); err != nil {
			return nil, err
		}
		src, err := mp.operand(args[0])
		if err != nil {
			return nil, err
		}
		o := &ir.MoveToStatusRegister{Src: src, Saved: name == "msr.saved"}
		if len(args) == 2 {
			f, err := number(args[1])
			if err != nil {
				return nil, err
			}
			o.Fields = uint8(f)
		}
		return o, nil
	}
	return nil, fmt.Errorf("unknown operator %q", name)
}
