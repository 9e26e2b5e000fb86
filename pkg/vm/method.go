package vm

// Dialect tags which interpreter an instruction stream belongs to.
type Dialect uint8

const (
	// DialectStack is the simpler, pure stack-machine instruction set.
	DialectStack Dialect = 1
	// DialectTrait is the class-based successor with typed local registers.
	DialectTrait Dialect = 2
)

func (d Dialect) String() string {
	switch d {
	case DialectStack:
		return "stack"
	case DialectTrait:
		return "trait"
	default:
		return "unknown"
	}
}

// ConstPool is the per-script constant pool the decoder hands over together
// with the instruction streams. All indices inside Code were validated by the
// decoder; the core does not re-validate binary layout.
type ConstPool struct {
	Ints       []int32
	UInts      []uint32
	Doubles    []float64
	Strings    []string
	Namespaces []string // namespace URIs, trait dialect only
	Methods    []*Method
	Classes    []*ClassDef
}

// Param describes one declared parameter of a method.
type Param struct {
	Name       string
	Type       CoerceType // CoerceAny when untyped
	HasDefault bool
	Default    Value
}

// Method is a single compiled instruction stream plus the metadata the call
// engine needs to bind a frame for it.
type Method struct {
	Name    string
	Dialect Dialect
	Params  []Param
	HasRest bool // trailing rest-arguments list declared
	NumRegs int  // local register file size (register 0 is the receiver in the trait dialect)
	// LocalTypes declares per-register coercions for the trait dialect:
	// writes to a typed local coerce on the way in. nil or CoerceAny entries
	// are untyped. Indexed by register number.
	LocalTypes []CoerceType
	MaxStack   int
	Code       []byte
	Pool       *ConstPool
	Handlers   []ExceptionHandler
	// ScriptVersion gates legacy behavior in the stack dialect; versions
	// below 7 resolve names case-insensitively.
	ScriptVersion int
}

// ExceptionHandler covers an instruction-pointer range and names where
// control transfers when a matching value is thrown inside it.
type ExceptionHandler struct {
	TryStart int // inclusive
	TryEnd   int // exclusive
	Target   int
	// TypeName constrains which thrown values this handler catches, by class
	// name. Empty means catch-all. Ignored for finally handlers.
	TypeName  string
	IsFinally bool
}

// Covers reports whether the handler's try range contains pc.
func (h *ExceptionHandler) Covers(pc int) bool {
	return pc >= h.TryStart && pc < h.TryEnd
}

// TraitDefKind is the static descriptor kind for a declared class member.
type TraitDefKind uint8

const (
	TraitDefSlot TraitDefKind = iota
	TraitDefConst
	TraitDefMethod
	TraitDefGetter
	TraitDefSetter
)

func (k TraitDefKind) String() string {
	switch k {
	case TraitDefSlot:
		return "slot"
	case TraitDefConst:
		return "const"
	case TraitDefMethod:
		return "method"
	case TraitDefGetter:
		return "getter"
	case TraitDefSetter:
		return "setter"
	default:
		return "?"
	}
}

// TraitDef is the static form of a trait, loaded once per script.
type TraitDef struct {
	Name        string
	Kind        TraitDefKind
	Type        CoerceType // declared slot type
	Default     Value      // slot/const initial value
	MethodIndex int        // pool method index for method/getter/setter; -1 otherwise
}

// ClassDef is the static class descriptor: ordered traits, a superclass name
// and implemented interfaces. Trait order is resolution order.
type ClassDef struct {
	Name            string
	SuperName       string // "" = no superclass
	InterfaceNames  []string
	InstanceTraits  []TraitDef
	StaticTraits    []TraitDef
	CtorIndex       int  // pool method index; -1 = default constructor
	StaticInitIndex int  // pool method index; -1 = none
	Sealed          bool // instances reject undeclared property writes
	IsInterface     bool
}

// --- Shared little-endian operand readers ---

// ReadU16 decodes an unsigned 16-bit operand.
func ReadU16(code []byte, ip int) uint16 {
	return uint16(code[ip]) | uint16(code[ip+1])<<8
}

// ReadS16 decodes a signed 16-bit operand (jump offsets).
func ReadS16(code []byte, ip int) int16 {
	return int16(ReadU16(code, ip))
}
