package domain

// Entry is a read-only snapshot of a directory entry as observed at
// resolution time. The DN is mutable on the directory side (renames and moves
// preserve identity); UniqueID is the immutable handle the correlation
// records point at.
type Entry struct {
	DN       string
	UniqueID string
	Attrs    map[string]Value
}

// Attr returns the named attribute, or an absent Value when the entry does
// not carry it. Attribute names are matched as stored; adapters are expected
// to normalize casing.
func (e Entry) Attr(name string) Value {
	if v, ok := e.Attrs[name]; ok {
		return v
	}
	return Value{}
}

// ValueKind discriminates the states a directory attribute can be in.
// Directory write semantics treat "never set" and "present but empty"
// differently (never-setting vs. clearing), so the engine must too.
type ValueKind int

const (
	KindAbsent ValueKind = iota
	KindScalar
	KindList
)

// Value is a directory attribute value: absent, a single scalar, or an
// ordered list of scalars.
type Value struct {
	kind   ValueKind
	scalar string
	list   []string
}

// Scalar wraps a single attribute value.
func Scalar(s string) Value { return Value{kind: KindScalar, scalar: s} }

// List wraps an ordered multi-value attribute. An empty list is distinct
// from an absent attribute.
func List(values ...string) Value {
	if values == nil {
		values = []string{}
	}
	return Value{kind: KindList, list: values}
}

func (v Value) Kind() ValueKind { return v.kind }

func (v Value) IsAbsent() bool { return v.kind == KindAbsent }

// One returns the value when it holds exactly one scalar, either directly or
// as a single-element list.
func (v Value) One() (string, bool) {
	switch v.kind {
	case KindScalar:
		return v.scalar, true
	case KindList:
		if len(v.list) == 1 {
			return v.list[0], true
		}
	}
	return "", false
}

// Values returns the value as a slice. Absent yields nil, which callers must
// keep distinct from the empty (but present) list.
func (v Value) Values() []string {
	switch v.kind {
	case KindScalar:
		return []string{v.scalar}
	case KindList:
		return v.list
	default:
		return nil
	}
}
