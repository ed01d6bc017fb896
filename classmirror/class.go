// Package classmirror describes local classes to the peer on first use,
// and materializes a local stand-in (a Stub) for every class the peer
// describes to us.
//
// Go has no prototype chain to walk, so a class is an explicit record of
// functions/getters/properties/parent, and a Stub is a flat {id,
// className, core} triple that dispatches member access by name lookup
// against that record rather than by constructing a real prototype
// object.
package classmirror

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// GetterDesc describes one mirrored accessor property.
type GetterDesc struct {
	Name      string `json:"name"`
	HasSetter bool   `json:"hasSetter"`
}

// ClassDescription is the wire record of a class's shape.
type ClassDescription struct {
	ClassName  string       `json:"className"`
	Extends    string       `json:"extends,omitempty"`
	Iterator   string       `json:"iterator,omitempty"` // "iterator" | "asyncIterator"
	Functions  []string     `json:"functions"`
	Getters    []GetterDesc `json:"getters"`
	Properties []string     `json:"properties"`
}

// Iterable marks a Go type as exposing a synchronous iteration protocol,
// advertised on the wire as the class description's "iterator" tag.
type Iterable interface {
	NewIterator() Iterator
}

// AsyncIterable marks a Go type as exposing the "asyncIterator" tag. The
// shape is identical to Iterable; the distinct interface exists so a type
// can advertise which symbol a peer should request with the iter verb.
type AsyncIterable interface {
	NewAsyncIterator() Iterator
}

// Iterator is the minimal pull protocol behind both iterator tags: each
// call returns the next value, or done=true when exhausted.
type Iterator interface {
	Next() (value any, done bool, err error)
}

// Registry holds class descriptions keyed by both the registered Go type
// and class name. It is shared across every peer connection (Mirror) that
// uses the same domain model; only the "have I told THIS peer yet" state
// is per-Mirror.
type Registry struct {
	byType map[reflect.Type]*ClassDescription
	byName map[string]*ClassDescription
	order  []string // registration order, for deterministic batching
}

// NewRegistry creates an empty class registry.
func NewRegistry() *Registry {
	return &Registry{
		byType: make(map[reflect.Type]*ClassDescription),
		byName: make(map[string]*ClassDescription),
	}
}

// Register analyzes the Go type behind zero (a nil or non-nil pointer to a
// struct, e.g. (*Ledger)(nil)) via reflection and records its class
// description under name. If the struct embeds another registered class by
// value or pointer, that becomes this class's Extends parent — so parents
// must be registered first, the same ordering the `class` verb itself
// requires on the wire.
func (r *Registry) Register(name string, zero any) (*ClassDescription, error) {
	t := reflect.TypeOf(zero)
	if t == nil || t.Kind() != reflect.Ptr || t.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("classmirror: Register(%q): zero must be a pointer to struct", name)
	}
	if _, dup := r.byName[name]; dup {
		return nil, fmt.Errorf("classmirror: class %q already registered", name)
	}
	structT := t.Elem()

	desc := &ClassDescription{ClassName: name}

	// Detect an embedded (anonymous) field whose type is already a
	// registered class: that is our parent.
	var parentMembers map[string]bool
	for i := 0; i < structT.NumField(); i++ {
		f := structT.Field(i)
		if !f.Anonymous {
			continue
		}
		ft := f.Type
		if ft.Kind() == reflect.Ptr {
			ft = ft.Elem()
		}
		if parentDesc, ok := r.byStructType(ft); ok {
			desc.Extends = parentDesc.ClassName
			parentMembers = r.allMembers(parentDesc.ClassName)
			break
		}
	}

	// Properties: direct, exported, non-embedded data fields.
	for i := 0; i < structT.NumField(); i++ {
		f := structT.Field(i)
		if f.Anonymous || f.PkgPath != "" {
			continue
		}
		if f.Tag.Get("jpc") == "-" {
			continue
		}
		if strings.HasPrefix(f.Name, "_") {
			continue // defensive: Go exported names can't actually start with _, kept for safety
		}
		desc.Properties = append(desc.Properties, f.Name)
	}
	sort.Strings(desc.Properties)

	// Functions and getter/setter pairs: exported methods on *T, minus
	// whatever the parent already advertises.
	getterOf := make(map[string]bool)
	setterOf := make(map[string]bool)
	var functions []string
	for i := 0; i < t.NumMethod(); i++ {
		m := t.Method(i)
		if m.Name == "NewRemote" || m.Name == "NewIterator" || m.Name == "NewAsyncIterator" {
			continue
		}
		if parentMembers[m.Name] {
			continue
		}
		switch {
		case strings.HasPrefix(m.Name, "Get") && len(m.Name) > 3 && isGetterSig(m):
			getterOf[m.Name[3:]] = true
		case strings.HasPrefix(m.Name, "Set") && len(m.Name) > 3 && isSetterSig(m):
			setterOf[m.Name[3:]] = true
		default:
			functions = append(functions, m.Name)
		}
	}
	sort.Strings(functions)
	desc.Functions = functions

	var propNames []string
	for p := range getterOf {
		propNames = append(propNames, p)
	}
	sort.Strings(propNames)
	for _, p := range propNames {
		desc.Getters = append(desc.Getters, GetterDesc{Name: p, HasSetter: setterOf[p]})
	}

	if _, ok := any(zero).(Iterable); ok {
		desc.Iterator = "iterator"
	} else if _, ok := any(zero).(AsyncIterable); ok {
		desc.Iterator = "asyncIterator"
	}

	r.byType[structT] = desc
	r.byName[name] = desc
	r.order = append(r.order, name)
	return desc, nil
}

func isGetterSig(m reflect.Method) bool {
	// receiver + no args; one or two results (value[, error]).
	nIn := m.Type.NumIn() - 1
	nOut := m.Type.NumOut()
	return nIn == 0 && (nOut == 1 || (nOut == 2 && m.Type.Out(1) == errType))
}

func isSetterSig(m reflect.Method) bool {
	// receiver + exactly one arg; zero or one result (nothing, or error).
	nIn := m.Type.NumIn() - 1
	nOut := m.Type.NumOut()
	return nIn == 1 && (nOut == 0 || (nOut == 1 && m.Type.Out(0) == errType))
}

var errType = reflect.TypeOf((*error)(nil)).Elem()

func (r *Registry) byStructType(t reflect.Type) (*ClassDescription, bool) {
	d, ok := r.byType[t]
	return d, ok
}

// DescriptionFor returns the class description for a registered pointer
// type, or false if obj's type was never registered (i.e. it is a plain
// record, marshaled by value).
func (r *Registry) DescriptionFor(obj any) (*ClassDescription, bool) {
	t := reflect.TypeOf(obj)
	if t == nil || t.Kind() != reflect.Ptr || t.Elem().Kind() != reflect.Struct {
		return nil, false
	}
	d, ok := r.byType[t.Elem()]
	return d, ok
}

// ByName returns a previously registered (or received) class description.
func (r *Registry) ByName(name string) (*ClassDescription, bool) {
	d, ok := r.byName[name]
	return d, ok
}

// Put registers a description received from the peer (used by Mirror's
// incoming side, and by the iterator adapter's self-registration).
func (r *Registry) Put(desc *ClassDescription) {
	if _, ok := r.byName[desc.ClassName]; ok {
		return
	}
	r.byName[desc.ClassName] = desc
	r.order = append(r.order, desc.ClassName)
}

// allMembers returns the union of functions/getters/setters visible on
// className and all of its ancestors, used to avoid re-advertising
// inherited members on a child's own description.
func (r *Registry) allMembers(className string) map[string]bool {
	members := make(map[string]bool)
	for className != "" {
		desc, ok := r.byName[className]
		if !ok {
			break
		}
		for _, f := range desc.Functions {
			members[f] = true
		}
		for _, g := range desc.Getters {
			members["Get"+g.Name] = true
			if g.HasSetter {
				members["Set"+g.Name] = true
			}
		}
		className = desc.Extends
	}
	return members
}

// Ancestors returns className and its Extends chain, parent-first — the
// order the `class` verb must describe them in.
func (r *Registry) Ancestors(className string) []*ClassDescription {
	var chain []*ClassDescription
	for className != "" {
		desc, ok := r.byName[className]
		if !ok {
			break
		}
		chain = append(chain, desc)
		className = desc.Extends
	}
	// reverse to parent-first
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}
