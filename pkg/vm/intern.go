package vm

import "sync"

// interner deduplicates string payloads by content. Interning gives string
// values pointer-identity equality and a stable hash, which the resolver and
// the dynamic property bags rely on.
type interner struct {
	mu      sync.Mutex
	entries map[string]*StringObject
}

var globalInterner = &interner{entries: make(map[string]*StringObject)}

func (in *interner) intern(s string) *StringObject {
	in.mu.Lock()
	obj, ok := in.entries[s]
	if !ok {
		obj = &StringObject{value: s}
		in.entries[s] = obj
	}
	in.mu.Unlock()
	return obj
}

// emptyString is preallocated; the coercion tables produce it often.
var emptyString = Value{typ: TypeString, str: globalInterner.intern("")}

// NewString creates (or reuses) an interned string value.
func NewString(value string) Value {
	if value == "" {
		return emptyString
	}
	return Value{typ: TypeString, str: globalInterner.intern(value)}
}
