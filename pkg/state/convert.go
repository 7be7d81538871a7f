package state

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
)

// FromAny converts a plain Go value into a Value.
//
// Supported inputs are nil, booleans, integer and floating point numbers,
// strings, json.Number, Value, Map, and slices, arrays, maps with string
// keys and pointers built from them. Functions, channels, complex numbers
// and cyclic structures yield a *SerializationError.
func FromAny(x any) (Value, error) {
	c := converter{seen: make(map[uintptr]bool)}
	return c.convert(reflect.ValueOf(x), "")
}

// MapFromAny converts every entry of m with FromAny.
func MapFromAny(m map[string]any) (Map, error) {
	out := make(Map, len(m))
	for k, x := range m {
		v, err := FromAny(x)
		if err != nil {
			if se, ok := err.(*SerializationError); ok {
				se.Key = join(k, se.Key)
			}
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

type converter struct {
	seen map[uintptr]bool
}

var (
	valueType  = reflect.TypeOf(Value{})
	mapType    = reflect.TypeOf(Map{})
	numberType = reflect.TypeOf(json.Number(""))
)

func (c *converter) convert(rv reflect.Value, path string) (Value, error) {
	if !rv.IsValid() {
		return Value{}, nil
	}
	switch rv.Type() {
	case valueType:
		return rv.Interface().(Value), nil
	case mapType:
		return Object(rv.Interface().(Map)), nil
	case numberType:
		n := rv.String()
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return Value{}, &SerializationError{Key: path, Reason: "invalid number " + n}
		}
		return Number(f), nil
	}

	switch rv.Kind() {
	case reflect.Bool:
		return Bool(rv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Number(float64(rv.Int())), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return Number(float64(rv.Uint())), nil
	case reflect.Float32, reflect.Float64:
		return Number(rv.Float()), nil
	case reflect.String:
		return String(rv.String()), nil
	case reflect.Interface:
		if rv.IsNil() {
			return Value{}, nil
		}
		return c.convert(rv.Elem(), path)
	case reflect.Pointer:
		if rv.IsNil() {
			return Value{}, nil
		}
		if err := c.enter(rv, path); err != nil {
			return Value{}, err
		}
		defer c.leave(rv)
		return c.convert(rv.Elem(), path)
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice {
			if rv.IsNil() {
				return Value{}, nil
			}
			if err := c.enter(rv, path); err != nil {
				return Value{}, err
			}
			defer c.leave(rv)
		}
		items := make([]Value, rv.Len())
		for i := range items {
			v, err := c.convert(rv.Index(i), path+"["+strconv.Itoa(i)+"]")
			if err != nil {
				return Value{}, err
			}
			items[i] = v
		}
		return Value{kind: KindList, list: items}, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return Value{}, &SerializationError{Key: path, Reason: "map key type " + rv.Type().Key().String()}
		}
		if rv.IsNil() {
			return Value{}, nil
		}
		if err := c.enter(rv, path); err != nil {
			return Value{}, err
		}
		defer c.leave(rv)
		fields := make(map[string]Value, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k := iter.Key().String()
			v, err := c.convert(iter.Value(), join(path, k))
			if err != nil {
				return Value{}, err
			}
			fields[k] = v
		}
		return Value{kind: KindMap, m: fields}, nil
	}
	return Value{}, &SerializationError{Key: path, Reason: fmt.Sprintf("unsupported type %s", rv.Type())}
}

func (c *converter) enter(rv reflect.Value, path string) error {
	p := rv.Pointer()
	if p == 0 {
		return nil
	}
	if c.seen[p] {
		return &SerializationError{Key: path, Reason: "cyclic reference"}
	}
	c.seen[p] = true
	return nil
}

func (c *converter) leave(rv reflect.Value) {
	delete(c.seen, rv.Pointer())
}

func join(parent, key string) string {
	if parent == "" {
		return key
	}
	if key == "" {
		return parent
	}
	if key[0] == '[' {
		return parent + key
	}
	return parent + "." + key
}
