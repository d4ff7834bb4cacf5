package message

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// ValueType is the wire tag identifying what kind of value a record carries.
type ValueType int

// Method is the wire tag identifying which remote operation a Call invokes.
type Method int

// The numbering is shared with the engine and must never be reordered.
const (
	TypeInvalid         ValueType = 0
	TypeCall            ValueType = 1
	TypeInteger         ValueType = 2
	TypeString          ValueType = 3
	TypeBoolean         ValueType = 4
	TypeDouble          ValueType = 5
	TypeArray           ValueType = 6
	TypeDirection       ValueType = 7
	TypeMapLocation     ValueType = 8
	TypeMessage         ValueType = 9
	TypeRobotController ValueType = 10
	TypeRobotInfo       ValueType = 11
	TypeTeam            ValueType = 12
	TypeNull            ValueType = 13
)

const (
	MethodInvalid      Method = 0
	MethodGetRoundNum  Method = 1
	MethodGetMapWidth  Method = 2
	MethodGetMapHeight Method = 3
	MethodLog          Method = 4
)

// Kind groups value tags by the shape of their wire record.
type Kind int

const (
	KindInvalid Kind = iota
	KindCall         // method + params
	KindLiteral      // scalar value
	KindArray        // value is a sequence of records
	KindHandle       // id references a live object owned by the remote side
)

func (k Kind) String() string {
	switch k {
	case KindCall:
		return "call"
	case KindLiteral:
		return "literal"
	case KindArray:
		return "array"
	case KindHandle:
		return "handle"
	default:
		return "invalid"
	}
}

type typeEntry struct {
	name string
	kind Kind
}

var (
	registryMu sync.RWMutex

	valueTypes = map[ValueType]typeEntry{
		TypeInvalid:         {"INVALID", KindInvalid},
		TypeCall:            {"CALL", KindCall},
		TypeInteger:         {"INTEGER", KindLiteral},
		TypeString:          {"STRING", KindLiteral},
		TypeBoolean:         {"BOOLEAN", KindLiteral},
		TypeDouble:          {"DOUBLE", KindLiteral},
		TypeArray:           {"ARRAY", KindArray},
		TypeDirection:       {"DIRECTION", KindHandle},
		TypeMapLocation:     {"MAP_LOCATION", KindHandle},
		TypeMessage:         {"MESSAGE", KindHandle},
		TypeRobotController: {"ROBOT_CONTROLLER", KindHandle},
		TypeRobotInfo:       {"ROBOT_INFO", KindHandle},
		TypeTeam:            {"TEAM", KindLiteral},
		TypeNull:            {"NULL", KindLiteral},
	}

	methods = map[Method]string{
		MethodInvalid:      "INVALID",
		MethodGetRoundNum:  "RC_GET_ROUND_NUM",
		MethodGetMapWidth:  "RC_GET_MAP_WIDTH",
		MethodGetMapHeight: "RC_GET_MAP_HEIGHT",
		MethodLog:          "LOG",
	}
)

// RegisterValueType adds a tag to the shared vocabulary. Both endpoints must
// agree on it. Registering an existing tag or a call/invalid kind fails.
func RegisterValueType(tag ValueType, name string, kind Kind) error {
	if kind != KindLiteral && kind != KindHandle && kind != KindArray {
		return fmt.Errorf("message: cannot register value type %d with kind %s", tag, kind)
	}
	name = strings.ToUpper(strings.TrimSpace(name))
	if name == "" {
		return fmt.Errorf("message: value type %d needs a name", tag)
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, ok := valueTypes[tag]; ok {
		return fmt.Errorf("message: value type %d already registered", tag)
	}
	valueTypes[tag] = typeEntry{name: name, kind: kind}
	return nil
}

// RegisterMethod adds a method tag to the shared vocabulary.
func RegisterMethod(tag Method, name string) error {
	name = strings.ToUpper(strings.TrimSpace(name))
	if name == "" {
		return fmt.Errorf("message: method %d needs a name", tag)
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, ok := methods[tag]; ok {
		return fmt.Errorf("message: method %d already registered", tag)
	}
	methods[tag] = name
	return nil
}

// KindOf reports the record shape of tag. Unknown tags are KindInvalid.
func KindOf(tag ValueType) Kind {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return valueTypes[tag].kind
}

// Known reports whether the method tag is registered and not INVALID.
func (m Method) Known() bool {
	if m == MethodInvalid {
		return false
	}
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := methods[m]
	return ok
}

func (t ValueType) String() string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if e, ok := valueTypes[t]; ok {
		return e.name
	}
	return "ValueType(" + strconv.Itoa(int(t)) + ")"
}

func (m Method) String() string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if name, ok := methods[m]; ok {
		return name
	}
	return "Method(" + strconv.Itoa(int(m)) + ")"
}

// ParseMethod resolves a method by name (case-insensitive) or numeric tag.
func ParseMethod(s string) (Method, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if n, err := strconv.Atoi(s); err == nil {
		m := Method(n)
		if !m.Known() {
			return MethodInvalid, fmt.Errorf("message: unknown method %d", n)
		}
		return m, nil
	}
	registryMu.RLock()
	defer registryMu.RUnlock()
	for tag, name := range methods {
		if name == s && tag != MethodInvalid {
			return tag, nil
		}
	}
	return MethodInvalid, fmt.Errorf("message: unknown method %q", s)
}

// ParseValueType resolves a value type by name (case-insensitive) or numeric tag.
func ParseValueType(s string) (ValueType, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if n, err := strconv.Atoi(s); err == nil {
		t := ValueType(n)
		if KindOf(t) == KindInvalid {
			return TypeInvalid, fmt.Errorf("message: unknown value type %d", n)
		}
		return t, nil
	}
	registryMu.RLock()
	defer registryMu.RUnlock()
	for tag, e := range valueTypes {
		if e.name == s && e.kind != KindInvalid {
			return tag, nil
		}
	}
	return TypeInvalid, fmt.Errorf("message: unknown value type %q", s)
}
