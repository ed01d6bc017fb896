package wire

import (
	"encoding/json"
	"testing"
)

func TestPrimitiveRoundTrip(t *testing.T) {
	for _, v := range []Value{Prim("hi"), Prim(3.0), Prim(true), Null()} {
		raw, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal: %s", err)
		}
		var out Value
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("unmarshal: %s", err)
		}
		if out.Kind != KindPrimitive || out.Prim != v.Prim {
			t.Fatalf("round trip mismatch: got %#v, want %#v", out, v)
		}
	}
}

func TestArrayRoundTrip(t *testing.T) {
	in := Arr([]Value{Prim("a"), Prim(1.0), Null()})
	raw, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %s", err)
	}
	var out Value
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %s", err)
	}
	if out.Kind != KindArray || len(out.Array) != 3 {
		t.Fatalf("got %#v", out)
	}
}

func TestPlainObjectRoundTrip(t *testing.T) {
	in := PlainObject(map[string]Value{"a": Prim(1.0), "b": PlainObject(map[string]Value{"c": Prim(2.0)})})
	raw, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %s", err)
	}
	if _, ok := rawHasKey(raw, "plainObject"); !ok {
		t.Fatalf("wire shape missing plainObject key: %s", raw)
	}
	var out Value
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %s", err)
	}
	if out.Kind != KindPlainObject {
		t.Fatalf("got kind %v", out.Kind)
	}
	nested := out.PlainObj["b"]
	if nested.Kind != KindPlainObject || nested.PlainObj["c"].Prim != 2.0 {
		t.Fatalf("nested plain object didn't round trip: %#v", nested)
	}
}

func TestLocalRefRoundTrip(t *testing.T) {
	in := LocalRef("obj-1", "")
	raw, _ := json.Marshal(in)
	var out Value
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %s", err)
	}
	if out.Kind != KindLocalRef || out.IDLocal != "obj-1" || out.ClassName != "" {
		t.Fatalf("got %#v", out)
	}
}

func TestFunctionRefRoundTrip(t *testing.T) {
	in := LocalRef("fn-1", FunctionClassName)
	raw, _ := json.Marshal(in)
	var out Value
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %s", err)
	}
	if out.ClassName != FunctionClassName {
		t.Fatalf("got className %q, want %q", out.ClassName, FunctionClassName)
	}
}

func TestRemoteRefRoundTrip(t *testing.T) {
	in := RemoteRef("obj-42")
	raw, _ := json.Marshal(in)
	var out Value
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %s", err)
	}
	if out.Kind != KindRemoteRef || out.IDRemote != "obj-42" {
		t.Fatalf("got %#v", out)
	}
}

func TestInstanceRoundTripAndTieBreak(t *testing.T) {
	in := Instance("car-1", "Car", map[string]Value{"owner": Prim("Fred")})
	raw, _ := json.Marshal(in)
	var out Value
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %s", err)
	}
	if out.Kind != KindInstance || out.ClassName != "Car" || out.Properties["owner"].Prim != "Fred" {
		t.Fatalf("got %#v", out)
	}

	// Tie-break: idLocal + properties always wins over className being
	// merely informative, even in a hand-built payload.
	raw2 := []byte(`{"idLocal":"car-2","properties":{}}`)
	var out2 Value
	if err := json.Unmarshal(raw2, &out2); err != nil {
		t.Fatalf("unmarshal tie-break payload: %s", err)
	}
	if out2.Kind != KindInstance {
		t.Fatalf("expected tie-break to produce KindInstance, got %v", out2.Kind)
	}
}

func rawHasKey(raw []byte, key string) (json.RawMessage, bool) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, false
	}
	v, ok := m[key]
	return v, ok
}
