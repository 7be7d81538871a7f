package diff

import (
	"encoding/json"
	"fmt"

	"github.com/atrilabs/atri-runtime/pkg/state"
)

// OpKind is the type of a delta operation.
type OpKind uint8

const (
	OpSet    OpKind = iota + 1 // Key added or value changed
	OpDelete                   // Key removed
)

// String returns the wire name of the OpKind.
func (k OpKind) String() string {
	switch k {
	case OpSet:
		return "set"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

func parseOpKind(s string) (OpKind, error) {
	switch s {
	case "set":
		return OpSet, nil
	case "delete":
		return OpDelete, nil
	}
	return 0, fmt.Errorf("diff: unknown op %q", s)
}

// Op is a single key-level change.
type Op struct {
	Kind  OpKind
	Key   string
	Value state.Value // Set only
}

// Set returns an operation storing v under key.
func Set(key string, v state.Value) Op {
	return Op{Kind: OpSet, Key: key, Value: v}
}

// Delete returns an operation removing key.
func Delete(key string) Op {
	return Op{Kind: OpDelete, Key: key}
}

// Equal reports whether o and other describe the same change.
func (o Op) Equal(other Op) bool {
	if o.Kind != other.Kind || o.Key != other.Key {
		return false
	}
	return o.Kind != OpSet || o.Value.Equal(other.Value)
}

// String formats the operation for logs.
func (o Op) String() string {
	if o.Kind == OpSet {
		return fmt.Sprintf("set(%s=%s)", o.Key, o.Value)
	}
	return fmt.Sprintf("%s(%s)", o.Kind, o.Key)
}

type wireOp struct {
	Op    string       `json:"op"`
	Key   string       `json:"key"`
	Value *state.Value `json:"value,omitempty"`
}

// MarshalJSON encodes the operation as {"op","key","value"}.
func (o Op) MarshalJSON() ([]byte, error) {
	w := wireOp{Op: o.Kind.String(), Key: o.Key}
	if o.Kind == OpSet {
		v := o.Value
		w.Value = &v
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the operation.
func (o *Op) UnmarshalJSON(data []byte) error {
	var w wireOp
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	kind, err := parseOpKind(w.Op)
	if err != nil {
		return err
	}
	if w.Key == "" {
		return fmt.Errorf("diff: %s op without key", kind)
	}
	*o = Op{Kind: kind, Key: w.Key}
	if kind == OpSet && w.Value != nil {
		o.Value = *w.Value
	}
	return nil
}
