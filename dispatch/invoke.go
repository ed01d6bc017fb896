package dispatch

import (
	"context"
	"fmt"
	"reflect"

	"github.com/benbucksch/jpc/wire"
	"github.com/benbucksch/jpc/wireerr"
)

// invokeMethod calls the exported Go method methodName on obj with args
// unmarshaled via m: a reflection-based lookup-and-forward dispatch running
// against the real local object rather than a remote record.
func invokeMethod(ctx context.Context, m *wire.Marshaller, obj any, methodName string, wireArgs []wire.Value) (any, error) {
	rv := reflect.ValueOf(obj)
	method := rv.MethodByName(methodName)
	if !method.IsValid() {
		return nil, wireerr.New(wireerr.UnknownRemote, "no method %q on %T", methodName, obj)
	}
	return invokeCallable(ctx, m, method, wireArgs)
}

// invokeCallable is shared between method dispatch (obj.Method(args...))
// and bare callable dispatch (a Go func value exposed as {className:
// "Function"}).
func invokeCallable(ctx context.Context, m *wire.Marshaller, fn reflect.Value, wireArgs []wire.Value) (any, error) {
	fnType := fn.Type()
	variadic := fnType.IsVariadic()
	in := make([]reflect.Value, len(wireArgs))
	for i, wa := range wireArgs {
		decoded, err := m.Incoming(ctx, wa)
		if err != nil {
			return nil, err
		}
		paramIdx := i
		if variadic && paramIdx >= fnType.NumIn()-1 {
			paramIdx = fnType.NumIn() - 1
		}
		in[i] = coerce(decoded, paramType(fnType, paramIdx, variadic))
	}
	out := fn.Call(in)
	return splitResult(out)
}

func paramType(fnType reflect.Type, idx int, variadic bool) reflect.Type {
	if idx >= fnType.NumIn() {
		return nil
	}
	t := fnType.In(idx)
	if variadic && idx == fnType.NumIn()-1 {
		return t.Elem()
	}
	return t
}

// coerce adapts a decoded wire value (whose Go type comes from JSON
// unmarshaling: float64, string, bool, map[string]any, []any, a *Stub, a
// local pointer, ...) to the static parameter type the target method
// declares, converting numeric kinds where JSON's single float64 number
// type would otherwise mismatch an int/int64/etc. parameter.
func coerce(v any, want reflect.Type) reflect.Value {
	if want == nil {
		return reflect.ValueOf(v)
	}
	if v == nil {
		return reflect.Zero(want)
	}
	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(want) {
		return rv
	}
	if rv.Type().ConvertibleTo(want) {
		return rv.Convert(want)
	}
	return rv
}

func splitResult(out []reflect.Value) (any, error) {
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		if err, ok := out[0].Interface().(error); ok {
			if err == nil {
				return nil, nil
			}
			return nil, wireerr.New(wireerr.UserException, "%s", err.Error())
		}
		return out[0].Interface(), nil
	case 2:
		var result any
		if out[0].IsValid() {
			result = out[0].Interface()
		}
		if errVal := out[1].Interface(); errVal != nil {
			if err, ok := errVal.(error); ok {
				return nil, wireerr.New(wireerr.UserException, "%s", err.Error())
			}
		}
		return result, nil
	default:
		return nil, fmt.Errorf("dispatch: unsupported method result arity %d", len(out))
	}
}
