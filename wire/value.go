// Package wire defines the JSON-representable value grammar exchanged
// between peers and the recursive marshaller that converts between it and
// live Go values.
package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Kind discriminates the shapes a Value can take on the wire.
type Kind int

const (
	// KindPrimitive holds a JSON string/number/bool, or nil.
	KindPrimitive Kind = iota
	// KindArray holds an ordered sequence of Values.
	KindArray
	// KindPlainObject holds a by-value field bag: {plainObject: {...}}.
	KindPlainObject
	// KindLocalRef is {idLocal, className?} without properties: a
	// reference to an object already known to the receiver (or a
	// callable, when ClassName == "Function").
	KindLocalRef
	// KindRemoteRef is {idRemote}: a reference to an object owned by the
	// receiver of this value.
	KindRemoteRef
	// KindInstance is the full {idLocal, className, properties} form:
	// the first time the sender exposes this particular instance.
	KindInstance
)

// FunctionClassName marks a KindLocalRef value as a callable rather than a
// plain object reference.
const FunctionClassName = "Function"

// PlainObjectClassName and ArrayClassName tag a KindLocalRef synthesized for
// a back-edge in an outgoing plain-data graph: the marshaller promotes a
// repeated map/slice pointer to a classed reference on the fly rather than
// recursing forever (see Marshaller.outgoingPlainObject/outgoingArray).
// Unlike FunctionClassName, the referenced id was never introduced by a
// preceding instance/class description, so it is only ever meaningful to
// the same marshal call that minted it — a peer has no way to dereference
// it back.
const (
	PlainObjectClassName = "PlainObject"
	ArrayClassName       = "Array"
)

// Value is a single node of the wire grammar.
type Value struct {
	Kind Kind

	Prim any // valid for KindPrimitive: string, float64, bool, or nil

	Array []Value // valid for KindArray

	PlainObj map[string]Value // valid for KindPlainObject

	IDLocal    string            // valid for KindLocalRef, KindInstance
	IDRemote   string            // valid for KindRemoteRef
	ClassName  string            // valid for KindLocalRef (optional), KindInstance
	Properties map[string]Value // valid for KindInstance
}

// Prim builds a primitive Value.
func Prim(v any) Value { return Value{Kind: KindPrimitive, Prim: v} }

// Null is the primitive nil value.
func Null() Value { return Value{Kind: KindPrimitive, Prim: nil} }

// Arr builds an array Value.
func Arr(vs []Value) Value {
	if vs == nil {
		vs = []Value{}
	}
	return Value{Kind: KindArray, Array: vs}
}

// PlainObject builds a by-value field bag Value.
func PlainObject(fields map[string]Value) Value {
	if fields == nil {
		fields = map[string]Value{}
	}
	return Value{Kind: KindPlainObject, PlainObj: fields}
}

// LocalRef builds a reference to an object the sender owns. className is
// optional ("" for a plain classed reference); use FunctionClassName to
// mark a callable.
func LocalRef(id, className string) Value {
	return Value{Kind: KindLocalRef, IDLocal: id, ClassName: className}
}

// RemoteRef builds a reference returning an object to the peer that owns
// it.
func RemoteRef(id string) Value {
	return Value{Kind: KindRemoteRef, IDRemote: id}
}

// Instance builds a full object introduction: the first time the sender
// exposes this particular instance of className.
func Instance(id, className string, properties map[string]Value) Value {
	if properties == nil {
		properties = map[string]Value{}
	}
	return Value{Kind: KindInstance, IDLocal: id, ClassName: className, Properties: properties}
}

// wireShape mirrors the JSON shapes used on the wire for marshaling.
type wireShape struct {
	PlainObject map[string]json.RawMessage `json:"plainObject,omitempty"`
	IDLocal     *string                    `json:"idLocal,omitempty"`
	IDRemote    *string                    `json:"idRemote,omitempty"`
	ClassName   *string                    `json:"className,omitempty"`
	Properties  map[string]json.RawMessage `json:"properties,omitempty"`
}

// MarshalJSON encodes a Value into its wire shape.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindPrimitive:
		return json.Marshal(v.Prim)
	case KindArray:
		return json.Marshal(v.Array)
	case KindPlainObject:
		fields, err := encodeValueMap(v.PlainObj)
		if err != nil {
			return nil, err
		}
		return json.Marshal(wireShape{PlainObject: fields})
	case KindRemoteRef:
		return json.Marshal(wireShape{IDRemote: &v.IDRemote})
	case KindLocalRef:
		shape := wireShape{IDLocal: &v.IDLocal}
		if v.ClassName != "" {
			shape.ClassName = &v.ClassName
		}
		return json.Marshal(shape)
	case KindInstance:
		props, err := encodeValueMap(v.Properties)
		if err != nil {
			return nil, err
		}
		return json.Marshal(wireShape{IDLocal: &v.IDLocal, ClassName: &v.ClassName, Properties: props})
	default:
		return nil, fmt.Errorf("wire: unknown Value kind %d", v.Kind)
	}
}

func encodeValueMap(m map[string]Value) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(m))
	for k, v := range m {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		out[k] = raw
	}
	return out, nil
}

// UnmarshalJSON decodes a Value from its wire shape, distinguishing
// primitives, arrays and the four object shapes.
func (v *Value) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return fmt.Errorf("wire: empty value")
	}
	switch trimmed[0] {
	case '[':
		var arr []Value
		if err := json.Unmarshal(trimmed, &arr); err != nil {
			return err
		}
		*v = Arr(arr)
		return nil
	case '{':
		var shape wireShape
		if err := json.Unmarshal(trimmed, &shape); err != nil {
			return err
		}
		return v.fromShape(shape)
	default:
		var prim any
		if err := json.Unmarshal(trimmed, &prim); err != nil {
			return err
		}
		*v = Prim(prim)
		return nil
	}
}

func (v *Value) fromShape(shape wireShape) error {
	switch {
	case shape.PlainObject != nil:
		fields, err := decodeValueMap(shape.PlainObject)
		if err != nil {
			return err
		}
		*v = PlainObject(fields)
		return nil
	case shape.IDRemote != nil:
		*v = RemoteRef(*shape.IDRemote)
		return nil
	case shape.IDLocal != nil && shape.Properties != nil:
		// Tie-break: idLocal + properties together always means a full
		// instance introduction, even if className were somehow absent
		// (which a well-formed peer never sends).
		props, err := decodeValueMap(shape.Properties)
		if err != nil {
			return err
		}
		className := ""
		if shape.ClassName != nil {
			className = *shape.ClassName
		}
		*v = Instance(*shape.IDLocal, className, props)
		return nil
	case shape.IDLocal != nil:
		className := ""
		if shape.ClassName != nil {
			className = *shape.ClassName
		}
		*v = LocalRef(*shape.IDLocal, className)
		return nil
	default:
		// an empty plain object bag, e.g. {}
		*v = PlainObject(map[string]Value{})
		return nil
	}
}

func decodeValueMap(m map[string]json.RawMessage) (map[string]Value, error) {
	out := make(map[string]Value, len(m))
	for k, raw := range m {
		var val Value
		if err := json.Unmarshal(raw, &val); err != nil {
			return nil, err
		}
		out[k] = val
	}
	return out, nil
}
