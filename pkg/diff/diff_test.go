package diff

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/atrilabs/atri-runtime/pkg/state"
)

func TestDiffIdentical(t *testing.T) {
	m := state.Map{
		"count": state.Int(1),
		"items": state.List(state.String("a"), state.Object(map[string]state.Value{"x": state.Null()})),
	}
	if d := Diff(m, m.Clone()); !d.Empty() {
		t.Errorf("Diff(m, m) = %v, want empty", d)
	}
	if d := Diff(nil, nil); !d.Empty() {
		t.Errorf("Diff(nil, nil) = %v, want empty", d)
	}
}

func TestDiffAddedKey(t *testing.T) {
	d := Diff(state.Map{}, state.Map{"count": state.Int(1)})
	want := Delta{Set("count", state.Int(1))}
	if !d.Equal(want) {
		t.Errorf("Diff = %v, want %v", d, want)
	}
}

func TestDiffOrdering(t *testing.T) {
	prev := state.Map{
		"b": state.Int(1),
		"d": state.Int(1),
		"a": state.Int(1),
	}
	next := state.Map{
		"a": state.Int(2),
		"c": state.Int(1),
		"d": state.Int(1),
		"e": state.Null(),
	}
	want := Delta{
		Set("a", state.Int(2)),
		Delete("b"),
		Set("c", state.Int(1)),
		Set("e", state.Null()),
	}
	for i := 0; i < 20; i++ {
		if d := Diff(prev, next); !d.Equal(want) {
			t.Fatalf("run %d: Diff = %v, want %v", i, d, want)
		}
	}
}

func TestDiffNestedChange(t *testing.T) {
	prev := state.Map{"todo": state.List(state.String("a"), state.String("b"))}
	next := state.Map{"todo": state.List(state.String("a"), state.String("c"))}
	d := Diff(prev, next)
	if len(d) != 1 || d[0].Kind != OpSet || d[0].Key != "todo" {
		t.Fatalf("Diff = %v, want a single set of todo", d)
	}
}

func TestDiffKindChange(t *testing.T) {
	d := Diff(state.Map{"x": state.Int(0)}, state.Map{"x": state.Bool(false)})
	if len(d) != 1 || !d[0].Value.Equal(state.Bool(false)) {
		t.Errorf("Diff = %v, want set(x=false)", d)
	}
}

func TestApplyRoundTrip(t *testing.T) {
	cases := []struct{ prev, next state.Map }{
		{state.Map{}, state.Map{"a": state.Int(1)}},
		{state.Map{"a": state.Int(1)}, state.Map{}},
		{state.Map{"a": state.Int(1), "b": state.String("x")}, state.Map{"b": state.String("y"), "c": state.Null()}},
	}
	for i, c := range cases {
		before := c.prev.Clone()
		got := Diff(c.prev, c.next).Apply(c.prev)
		if !got.Equal(c.next) {
			t.Errorf("case %d: Apply = %v, want %v", i, got, c.next)
		}
		if !c.prev.Equal(before) {
			t.Errorf("case %d: Apply modified its input", i)
		}
	}
}

func TestDeltaValidate(t *testing.T) {
	d := Delta{Set("ok", state.Int(1)), Delete("gone"), Set("bad", state.Number(math.NaN()))}
	err := d.Validate()
	se, ok := err.(*state.SerializationError)
	if !ok {
		t.Fatalf("Validate() = %v, want *state.SerializationError", err)
	}
	if se.Key != "bad" {
		t.Errorf("Key = %q, want bad", se.Key)
	}
}

func TestValidatedDeltaDecodes(t *testing.T) {
	bad := Delta{Set("", state.Int(1))}
	if err := bad.Validate(); err == nil {
		t.Fatal("Validate() accepted an empty key")
	} else if _, ok := err.(*state.SerializationError); !ok {
		t.Fatalf("Validate() = %v, want *state.SerializationError", err)
	}

	good := Diff(state.Map{"a": state.Int(1)}, state.Map{"b": state.Int(2)})
	if err := good.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
	data, err := json.Marshal(good)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var back Delta
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal(%s): %v", data, err)
	}
	if !back.Equal(good) {
		t.Errorf("Unmarshal = %v, want %v", back, good)
	}
}

func TestOpJSON(t *testing.T) {
	d := Delta{Set("count", state.Int(2)), Delete("title"), Set("empty", state.Null())}
	data, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `[{"op":"set","key":"count","value":2},{"op":"delete","key":"title"},{"op":"set","key":"empty","value":null}]`
	if string(data) != want {
		t.Errorf("Marshal = %s\nwant %s", data, want)
	}

	var back Delta
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !back.Equal(d) {
		t.Errorf("Unmarshal = %v, want %v", back, d)
	}
}

func TestOpUnmarshalRejects(t *testing.T) {
	for _, in := range []string{`{"op":"patch","key":"a"}`, `{"op":"set"}`} {
		var op Op
		if err := json.Unmarshal([]byte(in), &op); err == nil {
			t.Errorf("Unmarshal(%s) succeeded, want error", in)
		}
	}
}
