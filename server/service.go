package server

import (
	"fmt"
	"reflect"
	"unicode"
	"unicode/utf8"
)

// methodFunc is the callable a dispatch lookup resolves to.
type methodFunc func(args []any, kwargs map[string]any) (any, error)

// service wraps a callee and the subset of its methods that are remotely
// dispatchable. The callee is a configuration value, not a base type to
// extend: any exported method matching the canonical signature
//
//	func (recv) Name(args []any, kwargs map[string]any) (any, error)
//
// is callable by name over the wire.
type service struct {
	rcvr   reflect.Value
	typ    reflect.Type
	method map[string]methodFunc
}

var (
	errorType  = reflect.TypeOf((*error)(nil)).Elem()
	anyType    = reflect.TypeOf((*any)(nil)).Elem()
	argsType   = reflect.TypeOf([]any(nil))
	kwargsType = reflect.TypeOf(map[string]any(nil))
)

// newService scans the callee's methods for the canonical signature.
func newService(rcvr any) (*service, error) {
	typ := reflect.TypeOf(rcvr)
	if typ == nil {
		return nil, fmt.Errorf("rpc: callee must not be nil")
	}
	if typ.Kind() != reflect.Ptr {
		return nil, fmt.Errorf("rpc: callee must be a pointer, got %s", typ.Kind())
	}
	svc := &service{
		rcvr:   reflect.ValueOf(rcvr),
		typ:    typ,
		method: make(map[string]methodFunc),
	}
	svc.registerMethods()
	if len(svc.method) == 0 {
		return nil, fmt.Errorf("rpc: %s exposes no dispatchable methods", typ)
	}
	return svc, nil
}

func (s *service) registerMethods() {
	for i := 0; i < s.typ.NumMethod(); i++ {
		method := s.typ.Method(i)
		mt := method.Type
		if mt.NumIn() != 3 || mt.NumOut() != 2 ||
			mt.In(1) != argsType || mt.In(2) != kwargsType ||
			mt.Out(0) != anyType || mt.Out(1) != errorType {
			continue
		}
		fn := method.Func
		rcvr := s.rcvr
		s.method[method.Name] = func(args []any, kwargs map[string]any) (any, error) {
			in := [3]reflect.Value{rcvr, reflect.ValueOf(&args).Elem(), reflect.ValueOf(&kwargs).Elem()}
			out := fn.Call(in[:])
			var err error
			if !out[1].IsNil() {
				err = out[1].Interface().(error)
			}
			return out[0].Interface(), err
		}
	}
}

// lookup resolves a wire method name to a callable, or nil if absent.
// Wire names may use the lowercase convention: "echo" resolves to Echo when
// no exact match exists.
func (s *service) lookup(name string) methodFunc {
	if fn, ok := s.method[name]; ok {
		return fn
	}
	if fn, ok := s.method[exportedName(name)]; ok {
		return fn
	}
	return nil
}

func exportedName(name string) string {
	r, size := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError {
		return name
	}
	return string(unicode.ToUpper(r)) + name[size:]
}
