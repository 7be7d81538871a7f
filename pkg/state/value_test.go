package state

import (
	"encoding/json"
	"math"
	"testing"
)

func TestValueZeroIsNull(t *testing.T) {
	var v Value
	if !v.IsNull() {
		t.Errorf("zero Value kind = %v, want null", v.Kind())
	}
	if !v.Equal(Null()) {
		t.Error("zero Value should equal Null()")
	}
}

func TestValueConstructorsCopy(t *testing.T) {
	items := []Value{Int(1), Int(2)}
	l := List(items...)
	items[0] = String("changed")
	if got := l.Index(0); !got.Equal(Int(1)) {
		t.Errorf("Index(0) = %v, want 1", got)
	}

	fields := map[string]Value{"a": Bool(true)}
	o := Object(fields)
	fields["a"] = Bool(false)
	fields["b"] = Null()
	if o.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", o.Len())
	}
	if got, _ := o.Field("a"); !got.Equal(Bool(true)) {
		t.Errorf("Field(a) = %v, want true", got)
	}

	out, _ := o.AsMap()
	out["a"] = Null()
	if got, _ := o.Field("a"); !got.Equal(Bool(true)) {
		t.Error("AsMap result must not alias the value")
	}
}

func TestValueEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		want bool
	}{
		{"null", Null(), Null(), true},
		{"bool", Bool(true), Bool(true), true},
		{"bool differs", Bool(true), Bool(false), false},
		{"number", Number(1.5), Number(1.5), true},
		{"number vs string", Number(1), String("1"), false},
		{"string", String("x"), String("x"), true},
		{"list order", List(Int(1), Int(2)), List(Int(2), Int(1)), false},
		{"list same", List(Int(1), List(String("a"))), List(Int(1), List(String("a"))), true},
		{"list length", List(Int(1)), List(Int(1), Int(1)), false},
		{"map same", Object(map[string]Value{"a": Int(1), "b": Null()}), Object(map[string]Value{"b": Null(), "a": Int(1)}), true},
		{"map missing key", Object(map[string]Value{"a": Int(1)}), Object(map[string]Value{"b": Int(1)}), false},
		{"map nested", Object(map[string]Value{"a": List(Int(1))}), Object(map[string]Value{"a": List(Int(2))}), false},
		{"empty list vs empty map", List(), Object(nil), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Equal(tt.b); got != tt.want {
				t.Errorf("Equal() = %v, want %v", got, tt.want)
			}
			if got := tt.b.Equal(tt.a); got != tt.want {
				t.Errorf("reverse Equal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValueJSON(t *testing.T) {
	v := Object(map[string]Value{
		"count": Int(3),
		"title": String("hi"),
		"tags":  List(String("a"), Bool(false), Null()),
	})
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"count":3,"tags":["a",false,null],"title":"hi"}`
	if string(data) != want {
		t.Errorf("Marshal = %s, want %s", data, want)
	}

	var back Value
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !back.Equal(v) {
		t.Errorf("Unmarshal = %v, want %v", back, v)
	}
}

func TestValueMarshalNonFinite(t *testing.T) {
	for _, f := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := json.Marshal(Number(f))
		if err == nil {
			t.Errorf("Marshal(%v) succeeded, want error", f)
		}
	}
}

func TestMapValidate(t *testing.T) {
	m := Map{
		"ok":   Int(1),
		"list": List(Int(1), Number(math.Inf(1))),
	}
	err := m.Validate()
	se, ok := err.(*SerializationError)
	if !ok {
		t.Fatalf("Validate() = %v, want *SerializationError", err)
	}
	if se.Key != "list[1]" {
		t.Errorf("Key = %q, want %q", se.Key, "list[1]")
	}

	if err := (Map{"a": Object(map[string]Value{"b": Int(1)})}).Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestMapCloneIndependent(t *testing.T) {
	m := Map{"a": Int(1)}
	c := m.Clone()
	c["a"] = Int(2)
	c["b"] = Int(3)
	if !m.Equal(Map{"a": Int(1)}) {
		t.Errorf("original modified: %v", m)
	}
	if got := Map(nil).Clone(); got == nil || len(got) != 0 {
		t.Errorf("nil Clone() = %v, want empty map", got)
	}
}

func TestMapKeysSorted(t *testing.T) {
	m := Map{"b": Null(), "a": Null(), "c": Null(), "B": Null()}
	got := m.Keys()
	want := []string{"B", "a", "b", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Keys() = %v, want %v", got, want)
		}
	}
}

func TestMapValidateEmptyKey(t *testing.T) {
	err := (Map{"": Int(1), "ok": Int(2)}).Validate()
	se, ok := err.(*SerializationError)
	if !ok {
		t.Fatalf("Validate() = %v, want *SerializationError", err)
	}
	if se.Reason != "empty state key" {
		t.Errorf("Reason = %q, want empty state key", se.Reason)
	}
}
