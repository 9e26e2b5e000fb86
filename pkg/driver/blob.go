package driver

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"lumen/pkg/vm"
)

// Method blobs are the interchange format between an external compiler and
// this runtime: one CBOR document per entry point, carrying the instruction
// stream, the constant pool (with nested methods and class descriptors) and
// the handler table. The decoder validates structure, not instruction
// semantics.

type blobValue struct {
	Kind uint8   `cbor:"k"`
	Num  float64 `cbor:"n,omitempty"`
	Int  int32   `cbor:"i,omitempty"`
	Str  string  `cbor:"s,omitempty"`
	Bool bool    `cbor:"b,omitempty"`
}

const (
	blobUndefined uint8 = iota
	blobNull
	blobBoolean
	blobInteger
	blobNumber
	blobString
)

type blobParam struct {
	Name       string     `cbor:"name"`
	Type       uint8      `cbor:"type"`
	HasDefault bool       `cbor:"has_default,omitempty"`
	Default    *blobValue `cbor:"default,omitempty"`
}

type blobHandler struct {
	TryStart  int    `cbor:"try_start"`
	TryEnd    int    `cbor:"try_end"`
	Target    int    `cbor:"target"`
	TypeName  string `cbor:"type_name,omitempty"`
	IsFinally bool   `cbor:"is_finally,omitempty"`
}

type blobTrait struct {
	Name        string     `cbor:"name"`
	Kind        uint8      `cbor:"kind"`
	Type        uint8      `cbor:"type,omitempty"`
	Default     *blobValue `cbor:"default,omitempty"`
	MethodIndex int        `cbor:"method,omitempty"`
}

type blobClass struct {
	Name            string      `cbor:"name"`
	SuperName       string      `cbor:"super,omitempty"`
	InterfaceNames  []string    `cbor:"interfaces,omitempty"`
	InstanceTraits  []blobTrait `cbor:"instance_traits,omitempty"`
	StaticTraits    []blobTrait `cbor:"static_traits,omitempty"`
	CtorIndex       int         `cbor:"ctor"`
	StaticInitIndex int         `cbor:"static_init"`
	Sealed          bool        `cbor:"sealed,omitempty"`
	IsInterface     bool        `cbor:"is_interface,omitempty"`
}

type blobPool struct {
	Ints       []int32      `cbor:"ints,omitempty"`
	UInts      []uint32     `cbor:"uints,omitempty"`
	Doubles    []float64    `cbor:"doubles,omitempty"`
	Strings    []string     `cbor:"strings,omitempty"`
	Namespaces []string     `cbor:"namespaces,omitempty"`
	Methods    []blobMethod `cbor:"methods,omitempty"`
	Classes    []blobClass  `cbor:"classes,omitempty"`
}

type blobMethod struct {
	Name          string        `cbor:"name"`
	Dialect       uint8         `cbor:"dialect"`
	Params        []blobParam   `cbor:"params,omitempty"`
	HasRest       bool          `cbor:"has_rest,omitempty"`
	NumRegs       int           `cbor:"num_regs"`
	LocalTypes    []uint8       `cbor:"local_types,omitempty"`
	Code          []byte        `cbor:"code"`
	Handlers      []blobHandler `cbor:"handlers,omitempty"`
	ScriptVersion int           `cbor:"script_version,omitempty"`
	Pool          *blobPool     `cbor:"pool,omitempty"`
}

// LoadMethodBlob decodes a CBOR method blob into an executable method tree.
func LoadMethodBlob(data []byte) (*vm.Method, error) {
	var root blobMethod
	if err := cbor.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("decode method blob: %w", err)
	}
	return decodeMethod(&root, nil)
}

// SaveMethodBlob encodes a method tree back into its blob form; the command
// line tools round-trip through it.
func SaveMethodBlob(m *vm.Method) ([]byte, error) {
	return cbor.Marshal(encodeMethod(m))
}

func decodeMethod(b *blobMethod, parentPool *vm.ConstPool) (*vm.Method, error) {
	d := vm.Dialect(b.Dialect)
	if d != vm.DialectStack && d != vm.DialectTrait {
		return nil, fmt.Errorf("method %q: unknown dialect %d", b.Name, b.Dialect)
	}

	pool := parentPool
	if b.Pool != nil {
		p, err := decodePool(b.Pool)
		if err != nil {
			return nil, fmt.Errorf("method %q: %w", b.Name, err)
		}
		pool = p
	}
	if pool == nil {
		pool = &vm.ConstPool{}
	}

	params := make([]vm.Param, len(b.Params))
	for i, bp := range b.Params {
		p := vm.Param{Name: bp.Name, Type: vm.CoerceType(bp.Type), HasDefault: bp.HasDefault}
		if bp.HasDefault {
			v, err := decodeValue(bp.Default)
			if err != nil {
				return nil, fmt.Errorf("method %q param %q: %w", b.Name, bp.Name, err)
			}
			p.Default = v
		}
		params[i] = p
	}

	var localTypes []vm.CoerceType
	if len(b.LocalTypes) > 0 {
		localTypes = make([]vm.CoerceType, len(b.LocalTypes))
		for i, t := range b.LocalTypes {
			localTypes[i] = vm.CoerceType(t)
		}
	}

	handlers := make([]vm.ExceptionHandler, len(b.Handlers))
	for i, h := range b.Handlers {
		if h.TryStart < 0 || h.TryEnd < h.TryStart || h.Target < 0 ||
			h.TryEnd > len(b.Code) || h.Target >= len(b.Code) {
			return nil, fmt.Errorf("method %q: handler %d range out of bounds", b.Name, i)
		}
		handlers[i] = vm.ExceptionHandler{
			TryStart: h.TryStart, TryEnd: h.TryEnd, Target: h.Target,
			TypeName: h.TypeName, IsFinally: h.IsFinally,
		}
	}

	return &vm.Method{
		Name:          b.Name,
		Dialect:       d,
		Params:        params,
		HasRest:       b.HasRest,
		NumRegs:       b.NumRegs,
		LocalTypes:    localTypes,
		Code:          b.Code,
		Pool:          pool,
		Handlers:      handlers,
		ScriptVersion: b.ScriptVersion,
	}, nil
}

func decodePool(b *blobPool) (*vm.ConstPool, error) {
	pool := &vm.ConstPool{
		Ints:       b.Ints,
		UInts:      b.UInts,
		Doubles:    b.Doubles,
		Strings:    b.Strings,
		Namespaces: b.Namespaces,
	}
	for i := range b.Methods {
		// Nested methods without a pool of their own share this one.
		m, err := decodeMethod(&b.Methods[i], pool)
		if err != nil {
			return nil, err
		}
		pool.Methods = append(pool.Methods, m)
	}
	for i := range b.Classes {
		c, err := decodeClass(&b.Classes[i], len(pool.Methods))
		if err != nil {
			return nil, err
		}
		pool.Classes = append(pool.Classes, c)
	}
	return pool, nil
}

func decodeClass(b *blobClass, methodCount int) (*vm.ClassDef, error) {
	checkIndex := func(i int, what string) error {
		if i >= methodCount {
			return fmt.Errorf("class %q: %s method index %d out of range", b.Name, what, i)
		}
		return nil
	}
	if err := checkIndex(b.CtorIndex, "constructor"); err != nil {
		return nil, err
	}
	if err := checkIndex(b.StaticInitIndex, "static initializer"); err != nil {
		return nil, err
	}

	decodeTraits := func(src []blobTrait) ([]vm.TraitDef, error) {
		out := make([]vm.TraitDef, len(src))
		for i, t := range src {
			td := vm.TraitDef{
				Name:        t.Name,
				Kind:        vm.TraitDefKind(t.Kind),
				Type:        vm.CoerceType(t.Type),
				MethodIndex: t.MethodIndex,
			}
			if t.Default != nil {
				v, err := decodeValue(t.Default)
				if err != nil {
					return nil, fmt.Errorf("class %q trait %q: %w", b.Name, t.Name, err)
				}
				td.Default = v
			} else {
				td.Default = vm.Undefined
			}
			switch td.Kind {
			case vm.TraitDefMethod, vm.TraitDefGetter, vm.TraitDefSetter:
				if err := checkIndex(td.MethodIndex, "trait"); err != nil {
					return nil, err
				}
			default:
				td.MethodIndex = -1
			}
			out[i] = td
		}
		return out, nil
	}

	instance, err := decodeTraits(b.InstanceTraits)
	if err != nil {
		return nil, err
	}
	static, err := decodeTraits(b.StaticTraits)
	if err != nil {
		return nil, err
	}

	return &vm.ClassDef{
		Name:            b.Name,
		SuperName:       b.SuperName,
		InterfaceNames:  b.InterfaceNames,
		InstanceTraits:  instance,
		StaticTraits:    static,
		CtorIndex:       b.CtorIndex,
		StaticInitIndex: b.StaticInitIndex,
		Sealed:          b.Sealed,
		IsInterface:     b.IsInterface,
	}, nil
}

func decodeValue(b *blobValue) (vm.Value, error) {
	if b == nil {
		return vm.Undefined, nil
	}
	switch b.Kind {
	case blobUndefined:
		return vm.Undefined, nil
	case blobNull:
		return vm.Null, nil
	case blobBoolean:
		return vm.BooleanValue(b.Bool), nil
	case blobInteger:
		return vm.IntegerValue(b.Int), nil
	case blobNumber:
		return vm.NumberValue(b.Num), nil
	case blobString:
		return vm.NewString(b.Str), nil
	default:
		return vm.Undefined, fmt.Errorf("unknown constant kind %d", b.Kind)
	}
}

func encodeMethod(m *vm.Method) *blobMethod {
	b := &blobMethod{
		Name:          m.Name,
		Dialect:       uint8(m.Dialect),
		HasRest:       m.HasRest,
		NumRegs:       m.NumRegs,
		Code:          m.Code,
		ScriptVersion: m.ScriptVersion,
	}
	for _, p := range m.Params {
		bp := blobParam{Name: p.Name, Type: uint8(p.Type), HasDefault: p.HasDefault}
		if p.HasDefault {
			bp.Default = encodeValue(p.Default)
		}
		b.Params = append(b.Params, bp)
	}
	for _, t := range m.LocalTypes {
		b.LocalTypes = append(b.LocalTypes, uint8(t))
	}
	for _, h := range m.Handlers {
		b.Handlers = append(b.Handlers, blobHandler{
			TryStart: h.TryStart, TryEnd: h.TryEnd, Target: h.Target,
			TypeName: h.TypeName, IsFinally: h.IsFinally,
		})
	}
	if m.Pool != nil {
		b.Pool = encodePool(m.Pool)
	}
	return b
}

func encodePool(p *vm.ConstPool) *blobPool {
	b := &blobPool{
		Ints:       p.Ints,
		UInts:      p.UInts,
		Doubles:    p.Doubles,
		Strings:    p.Strings,
		Namespaces: p.Namespaces,
	}
	for _, m := range p.Methods {
		sub := encodeMethod(m)
		// Nested methods share the parent pool; strip the copied pointer so
		// the blob stays acyclic.
		if m.Pool == p {
			sub.Pool = nil
		}
		b.Methods = append(b.Methods, *sub)
	}
	for _, c := range p.Classes {
		b.Classes = append(b.Classes, encodeClass(c))
	}
	return b
}

func encodeClass(c *vm.ClassDef) blobClass {
	encodeTraits := func(src []vm.TraitDef) []blobTrait {
		out := make([]blobTrait, len(src))
		for i, t := range src {
			out[i] = blobTrait{
				Name:        t.Name,
				Kind:        uint8(t.Kind),
				Type:        uint8(t.Type),
				Default:     encodeValue(t.Default),
				MethodIndex: t.MethodIndex,
			}
		}
		return out
	}
	return blobClass{
		Name:            c.Name,
		SuperName:       c.SuperName,
		InterfaceNames:  c.InterfaceNames,
		InstanceTraits:  encodeTraits(c.InstanceTraits),
		StaticTraits:    encodeTraits(c.StaticTraits),
		CtorIndex:       c.CtorIndex,
		StaticInitIndex: c.StaticInitIndex,
		Sealed:          c.Sealed,
		IsInterface:     c.IsInterface,
	}
}

func encodeValue(v vm.Value) *blobValue {
	switch v.Type() {
	case vm.TypeUndefined:
		return &blobValue{Kind: blobUndefined}
	case vm.TypeNull:
		return &blobValue{Kind: blobNull}
	case vm.TypeBoolean:
		return &blobValue{Kind: blobBoolean, Bool: v.AsBoolean()}
	case vm.TypeInteger:
		return &blobValue{Kind: blobInteger, Int: v.AsInteger()}
	case vm.TypeUInteger:
		return &blobValue{Kind: blobNumber, Num: float64(v.AsUInteger())}
	case vm.TypeNumber:
		return &blobValue{Kind: blobNumber, Num: v.AsNumber()}
	case vm.TypeString:
		return &blobValue{Kind: blobString, Str: v.AsString()}
	default:
		return &blobValue{Kind: blobUndefined}
	}
}
