// Package metadata builds entity schemas from Go struct shapes.
//
// A schema describes, for every scalar member, its wire attribute name,
// shape and required flag, and for every navigation the target entity, the
// container attribute it is embedded under, and whether it is a single
// object or a collection. Schemas are resolved once per type and cached;
// conventions are fixed at registry construction, never consulted ad hoc
// during query translation.
//
// Struct tags use the form `partiq:"attr_name,opt,..."`. Recognized
// options: required, optional, set, ordinal. A tag of "-" skips the field.
package metadata

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/partiqlabs/partiq/typemap"
)

// Conventions configures schema discovery. It is resolved once when the
// registry is built.
type Conventions struct {
	// AttributeName derives a wire attribute name from a Go field name
	// when no explicit tag name is present.
	AttributeName func(field string) string
	// TableName derives a table name from a struct type name when the
	// type does not implement TableNamer.
	TableName func(typeName string) string
	// RequiredByDefault makes non-nilable scalar members required unless
	// tagged optional. Nilable shapes (pointers, slices, maps) default to
	// optional either way.
	RequiredByDefault bool
}

// DefaultConventions passes field and type names through unchanged and
// treats non-nilable scalars as required.
func DefaultConventions() Conventions {
	return Conventions{
		AttributeName:     func(field string) string { return field },
		TableName:         func(typeName string) string { return typeName },
		RequiredByDefault: true,
	}
}

// TableNamer lets an entity type name its own table.
type TableNamer interface {
	TableName() string
}

// Member is a scalar or collection-of-scalar member of an entity.
type Member struct {
	Name      string // Go field name
	Attribute string // wire attribute name
	Index     []int  // reflect field index
	Required  bool
	Set       bool
	Mapping   *typemap.Mapping
}

// Navigation is an embedded single object or embedded collection member.
type Navigation struct {
	Name       string
	Attribute  string // container attribute the object(s) are stored under
	Index      []int
	Required   bool
	Collection bool
	Target     *Entity
}

// Entity is the resolved schema of one struct shape.
type Entity struct {
	Type        reflect.Type
	Name        string
	Table       string
	Members     []Member
	Navigations []Navigation
	// Ordinal is the field index of the synthetic 1-based position member
	// assigned to embedded collection elements, or nil.
	Ordinal []int

	members map[string]*Member
	navs    map[string]*Navigation
}

// Member returns the scalar member with the given Go field name.
func (e *Entity) Member(name string) *Member {
	return e.members[name]
}

// Navigation returns the navigation with the given Go field name.
func (e *Entity) Navigation(name string) *Navigation {
	return e.navs[name]
}

// Registry resolves and memoizes entity schemas.
type Registry struct {
	conv  Conventions
	types *typemap.Registry

	mu       sync.Mutex
	cache    map[reflect.Type]*Entity
	building map[reflect.Type]bool
}

// NewRegistry builds a registry with the given conventions and type
// mappings. Nil conventions functions fall back to the defaults.
func NewRegistry(conv Conventions, types *typemap.Registry) *Registry {
	def := DefaultConventions()
	if conv.AttributeName == nil {
		conv.AttributeName = def.AttributeName
	}
	if conv.TableName == nil {
		conv.TableName = def.TableName
	}
	if types == nil {
		types = typemap.NewRegistry()
	}
	return &Registry{
		conv:     conv,
		types:    types,
		cache:    make(map[reflect.Type]*Entity),
		building: make(map[reflect.Type]bool),
	}
}

// Types returns the underlying type-mapping registry.
func (r *Registry) Types() *typemap.Registry { return r.types }

// SchemaOf resolves the schema for T.
func SchemaOf[T any](r *Registry) (*Entity, error) {
	return r.Schema(reflect.TypeOf((*T)(nil)).Elem())
}

// Schema resolves the schema for t, building and caching it on first use.
func (r *Registry) Schema(t reflect.Type) (*Entity, error) {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("metadata: entity shape must be a struct, got %s", t)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.schemaLocked(t)
}

func (r *Registry) schemaLocked(t reflect.Type) (*Entity, error) {
	if e, ok := r.cache[t]; ok {
		return e, nil
	}
	if r.building[t] {
		return nil, fmt.Errorf("metadata: navigation cycle involving %s", t)
	}
	r.building[t] = true
	defer delete(r.building, t)

	e, err := r.build(t)
	if err != nil {
		return nil, err
	}
	r.cache[t] = e
	return e, nil
}

func (r *Registry) build(t reflect.Type) (*Entity, error) {
	e := &Entity{
		Type:    t,
		Name:    t.Name(),
		Table:   r.tableName(t),
		members: make(map[string]*Member),
		navs:    make(map[string]*Navigation),
	}

	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		attr, opts, skip := parseTag(f)
		if skip {
			continue
		}
		if attr == "" {
			attr = r.conv.AttributeName(f.Name)
		}

		if opts.ordinal {
			if !isIntKind(f.Type.Kind()) {
				return nil, fmt.Errorf("metadata: %s.%s: ordinal field must be an integer kind, got %s", t.Name(), f.Name, f.Type)
			}
			if e.Ordinal != nil {
				return nil, fmt.Errorf("metadata: %s declares more than one ordinal field", t.Name())
			}
			e.Ordinal = f.Index
			continue
		}

		switch classify(r.types, f.Type) {
		case fieldNavigation:
			target, err := r.schemaLocked(derefStruct(f.Type))
			if err != nil {
				return nil, err
			}
			nav := Navigation{
				Name:      f.Name,
				Attribute: attr,
				Index:     f.Index,
				Required:  requiredFlag(opts, f.Type, r.conv.RequiredByDefault),
				Target:    target,
			}
			e.Navigations = append(e.Navigations, nav)
		case fieldCollectionNavigation:
			target, err := r.schemaLocked(collectionElem(f.Type))
			if err != nil {
				return nil, err
			}
			nav := Navigation{
				Name:       f.Name,
				Attribute:  attr,
				Index:      f.Index,
				Required:   opts.required,
				Collection: true,
				Target:     target,
			}
			e.Navigations = append(e.Navigations, nav)
		default:
			var mapping *typemap.Mapping
			var err error
			if opts.set {
				mapping, err = r.types.ResolveSet(f.Type)
			} else {
				mapping, err = r.types.Resolve(f.Type)
			}
			if err != nil {
				return nil, fmt.Errorf("metadata: %s.%s: %w", t.Name(), f.Name, err)
			}
			m := Member{
				Name:      f.Name,
				Attribute: attr,
				Index:     f.Index,
				Required:  requiredFlag(opts, f.Type, r.conv.RequiredByDefault),
				Set:       opts.set,
				Mapping:   mapping,
			}
			e.Members = append(e.Members, m)
		}
	}

	for i := range e.Members {
		e.members[e.Members[i].Name] = &e.Members[i]
	}
	for i := range e.Navigations {
		e.navs[e.Navigations[i].Name] = &e.Navigations[i]
	}
	return e, nil
}

func (r *Registry) tableName(t reflect.Type) string {
	if tn, ok := reflect.New(t).Interface().(TableNamer); ok {
		return tn.TableName()
	}
	return r.conv.TableName(t.Name())
}

type tagOpts struct {
	required bool
	optional bool
	set      bool
	ordinal  bool
}

func parseTag(f reflect.StructField) (attr string, opts tagOpts, skip bool) {
	tag := f.Tag.Get("partiq")
	if tag == "-" {
		return "", tagOpts{}, true
	}
	parts := strings.Split(tag, ",")
	attr = parts[0]
	for _, p := range parts[1:] {
		switch p {
		case "required":
			opts.required = true
		case "optional":
			opts.optional = true
		case "set":
			opts.set = true
		case "ordinal":
			opts.ordinal = true
		}
	}
	return attr, opts, false
}

type fieldClass int

const (
	fieldMember fieldClass = iota
	fieldNavigation
	fieldCollectionNavigation
)

// classify decides whether a field is a scalar member, an embedded single
// object, or an embedded collection. Struct shapes with a registered
// converter stay scalar members.
func classify(types *typemap.Registry, t reflect.Type) fieldClass {
	base := t
	if base.Kind() == reflect.Pointer {
		base = base.Elem()
	}
	if isEntityStruct(types, base) {
		return fieldNavigation
	}
	if base.Kind() == reflect.Slice {
		et := base.Elem()
		if et.Kind() == reflect.Pointer {
			et = et.Elem()
		}
		if isEntityStruct(types, et) {
			return fieldCollectionNavigation
		}
	}
	return fieldMember
}

func isEntityStruct(types *typemap.Registry, t reflect.Type) bool {
	return t.Kind() == reflect.Struct && t != reflect.TypeOf(time.Time{}) && !types.HasConverter(t)
}

// collectionElem returns the struct element type of a slice-of-entity
// field, unwrapping pointers on both the field and the element.
func collectionElem(t reflect.Type) reflect.Type {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return derefStruct(t.Elem())
}

func derefStruct(t reflect.Type) reflect.Type {
	if t.Kind() == reflect.Pointer {
		return t.Elem()
	}
	return t
}

func requiredFlag(opts tagOpts, t reflect.Type, byDefault bool) bool {
	if opts.required {
		return true
	}
	if opts.optional {
		return false
	}
	switch t.Kind() {
	case reflect.Pointer, reflect.Slice, reflect.Map:
		return false
	default:
		return byDefault
	}
}

func isIntKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return true
	}
	return false
}
