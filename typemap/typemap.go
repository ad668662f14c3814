// Package typemap resolves Go value shapes to wire mappings.
//
// A Mapping pairs a Go shape with the wire tag it is stored under, the
// encode/decode functions between the two, and a derived comparer used for
// dirty-check snapshots. Mappings are resolved once per distinct shape and
// memoized; the cache is write-once-per-shape and safe for concurrent reads.
package typemap

import (
	"reflect"
	"strconv"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/partiqlabs/partiq/wire"
)

// WireType identifies the wire tag a shape is stored under.
type WireType int

const (
	WireString WireType = iota
	WireNumber
	WireBool
	WireBinary
	WireStringSet
	WireNumberSet
	WireBinarySet
	WireList
	WireMap
)

// String returns the DynamoDB tag name for the wire type.
func (w WireType) String() string {
	switch w {
	case WireString:
		return "S"
	case WireNumber:
		return "N"
	case WireBool:
		return "BOOL"
	case WireBinary:
		return "B"
	case WireStringSet:
		return "SS"
	case WireNumberSet:
		return "NS"
	case WireBinarySet:
		return "BS"
	case WireList:
		return "L"
	case WireMap:
		return "M"
	default:
		return "unknown"
	}
}

// Mapping is the resolved wire representation of one Go shape.
type Mapping struct {
	GoType   reflect.Type
	Wire     WireType
	Nullable bool     // pointer shapes decode NULL to nil
	Elem     *Mapping // element mapping for list/set, value mapping for map

	Encode func(v reflect.Value) (types.AttributeValue, error)
	Decode func(av types.AttributeValue) (reflect.Value, error)

	Comparer Comparer
}

type cacheKey struct {
	t   reflect.Type
	set bool
}

// Registry resolves and memoizes mappings. The zero value is not usable;
// construct with NewRegistry.
type Registry struct {
	mu         sync.RWMutex
	converters map[reflect.Type]Converter
	cache      sync.Map // cacheKey -> *Mapping or error
}

// NewRegistry returns a registry preloaded with the default converters.
func NewRegistry() *Registry {
	r := &Registry{converters: make(map[reflect.Type]Converter)}
	registerDefaultConverters(r)
	return r
}

// RegisterConverter installs a converter pair for a non-primitive scalar
// shape. Registration must happen before the shape is first resolved.
func (r *Registry) RegisterConverter(t reflect.Type, c Converter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.converters[t] = c
}

// HasConverter reports whether a converter pair is registered for t.
func (r *Registry) HasConverter(t reflect.Type) bool {
	_, ok := r.converter(t)
	return ok
}

func (r *Registry) converter(t reflect.Type) (Converter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.converters[t]
	return c, ok
}

// Resolve returns the mapping for t, building and caching it on first use.
func (r *Registry) Resolve(t reflect.Type) (*Mapping, error) {
	return r.resolve(t, false)
}

// ResolveSet returns the mapping for t treated as a set shape. t must be a
// slice of strings, numbers or []byte, or a map[K]struct{} set.
func (r *Registry) ResolveSet(t reflect.Type) (*Mapping, error) {
	return r.resolve(t, true)
}

func (r *Registry) resolve(t reflect.Type, set bool) (*Mapping, error) {
	key := cacheKey{t: t, set: set}
	if cached, ok := r.cache.Load(key); ok {
		switch v := cached.(type) {
		case *Mapping:
			return v, nil
		case error:
			return nil, v
		}
	}

	m, err := r.build(t, set)
	if err != nil {
		r.cache.LoadOrStore(key, err)
		return nil, err
	}
	actual, _ := r.cache.LoadOrStore(key, m)
	return actual.(*Mapping), nil
}

func (r *Registry) build(t reflect.Type, set bool) (*Mapping, error) {
	if t.Kind() == reflect.Pointer {
		elem, err := r.resolve(t.Elem(), set)
		if err != nil {
			return nil, err
		}
		return nullableMapping(t, elem), nil
	}

	if c, ok := r.converter(t); ok {
		return r.convertedMapping(t, c)
	}

	if set {
		return r.setMapping(t)
	}

	switch t.Kind() {
	case reflect.String:
		return scalarString(t), nil
	case reflect.Bool:
		return scalarBool(t), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return scalarInt(t), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return scalarUint(t), nil
	case reflect.Float32, reflect.Float64:
		return scalarFloat(t), nil
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return scalarBinary(t), nil
		}
		return r.listMapping(t)
	case reflect.Map:
		if t.Elem().Kind() == reflect.Struct && t.Elem().NumField() == 0 {
			return r.mapSetMapping(t)
		}
		if t.Key().Kind() == reflect.String {
			return r.keyedMapping(t)
		}
		return nil, &UnsupportedShapeError{Shape: t}
	case reflect.Struct:
		return nil, &MissingConverterError{Shape: t}
	default:
		return nil, &UnsupportedShapeError{Shape: t}
	}
}

func nullableMapping(t reflect.Type, elem *Mapping) *Mapping {
	m := &Mapping{GoType: t, Wire: elem.Wire, Nullable: true, Elem: elem.Elem}
	m.Encode = func(v reflect.Value) (types.AttributeValue, error) {
		if v.IsNil() {
			return wire.Null(), nil
		}
		return elem.Encode(v.Elem())
	}
	m.Decode = func(av types.AttributeValue) (reflect.Value, error) {
		if av == nil || wire.IsNull(av) {
			return reflect.Zero(t), nil
		}
		inner, err := elem.Decode(av)
		if err != nil {
			return reflect.Value{}, err
		}
		p := reflect.New(t.Elem())
		p.Elem().Set(inner)
		return p, nil
	}
	m.Comparer = nullableComparer(elem.Comparer)
	return m
}

func scalarString(t reflect.Type) *Mapping {
	m := &Mapping{GoType: t, Wire: WireString}
	m.Encode = func(v reflect.Value) (types.AttributeValue, error) {
		return wire.String(v.String()), nil
	}
	m.Decode = func(av types.AttributeValue) (reflect.Value, error) {
		s, ok := av.(*types.AttributeValueMemberS)
		if !ok {
			return reflect.Value{}, tagError(WireString, wire.TagName(av))
		}
		return reflect.ValueOf(s.Value).Convert(t), nil
	}
	m.Comparer = scalarComparer(m)
	return m
}

func scalarBool(t reflect.Type) *Mapping {
	m := &Mapping{GoType: t, Wire: WireBool}
	m.Encode = func(v reflect.Value) (types.AttributeValue, error) {
		return wire.Bool(v.Bool()), nil
	}
	m.Decode = func(av types.AttributeValue) (reflect.Value, error) {
		b, ok := av.(*types.AttributeValueMemberBOOL)
		if !ok {
			return reflect.Value{}, tagError(WireBool, wire.TagName(av))
		}
		return reflect.ValueOf(b.Value).Convert(t), nil
	}
	m.Comparer = scalarComparer(m)
	return m
}

func scalarInt(t reflect.Type) *Mapping {
	m := &Mapping{GoType: t, Wire: WireNumber}
	m.Encode = func(v reflect.Value) (types.AttributeValue, error) {
		return wire.NumberInt(v.Int()), nil
	}
	m.Decode = func(av types.AttributeValue) (reflect.Value, error) {
		n, ok := av.(*types.AttributeValueMemberN)
		if !ok {
			return reflect.Value{}, tagError(WireNumber, wire.TagName(av))
		}
		i, err := strconv.ParseInt(n.Value, 10, 64)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(i).Convert(t), nil
	}
	m.Comparer = scalarComparer(m)
	return m
}

func scalarUint(t reflect.Type) *Mapping {
	m := &Mapping{GoType: t, Wire: WireNumber}
	m.Encode = func(v reflect.Value) (types.AttributeValue, error) {
		return wire.Number(wire.FormatUint(v.Uint())), nil
	}
	m.Decode = func(av types.AttributeValue) (reflect.Value, error) {
		n, ok := av.(*types.AttributeValueMemberN)
		if !ok {
			return reflect.Value{}, tagError(WireNumber, wire.TagName(av))
		}
		u, err := strconv.ParseUint(n.Value, 10, 64)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(u).Convert(t), nil
	}
	m.Comparer = scalarComparer(m)
	return m
}

func scalarFloat(t reflect.Type) *Mapping {
	m := &Mapping{GoType: t, Wire: WireNumber}
	m.Encode = func(v reflect.Value) (types.AttributeValue, error) {
		return wire.NumberFloat(v.Float()), nil
	}
	m.Decode = func(av types.AttributeValue) (reflect.Value, error) {
		n, ok := av.(*types.AttributeValueMemberN)
		if !ok {
			return reflect.Value{}, tagError(WireNumber, wire.TagName(av))
		}
		f, err := strconv.ParseFloat(n.Value, 64)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(f).Convert(t), nil
	}
	m.Comparer = scalarComparer(m)
	return m
}

func scalarBinary(t reflect.Type) *Mapping {
	m := &Mapping{GoType: t, Wire: WireBinary}
	m.Encode = func(v reflect.Value) (types.AttributeValue, error) {
		return wire.Binary(v.Bytes()), nil
	}
	m.Decode = func(av types.AttributeValue) (reflect.Value, error) {
		b, ok := av.(*types.AttributeValueMemberB)
		if !ok {
			return reflect.Value{}, tagError(WireBinary, wire.TagName(av))
		}
		out := reflect.MakeSlice(t, len(b.Value), len(b.Value))
		reflect.Copy(out, reflect.ValueOf(b.Value))
		return out, nil
	}
	m.Comparer = binaryComparer()
	return m
}

func (r *Registry) listMapping(t reflect.Type) (*Mapping, error) {
	elem, err := r.resolve(t.Elem(), false)
	if err != nil {
		return nil, err
	}
	m := &Mapping{GoType: t, Wire: WireList, Elem: elem}
	m.Encode = func(v reflect.Value) (types.AttributeValue, error) {
		if v.IsNil() {
			return wire.Null(), nil
		}
		out := make([]types.AttributeValue, v.Len())
		for i := 0; i < v.Len(); i++ {
			av, err := elem.Encode(v.Index(i))
			if err != nil {
				return nil, err
			}
			out[i] = av
		}
		return wire.List(out...), nil
	}
	m.Decode = func(av types.AttributeValue) (reflect.Value, error) {
		l, ok := av.(*types.AttributeValueMemberL)
		if !ok {
			return reflect.Value{}, tagError(WireList, wire.TagName(av))
		}
		out := reflect.MakeSlice(t, len(l.Value), len(l.Value))
		for i, e := range l.Value {
			if wire.IsNull(e) && !elem.Nullable {
				return reflect.Value{}, tagError(elem.Wire, "NULL")
			}
			ev, err := elem.Decode(e)
			if err != nil {
				return reflect.Value{}, err
			}
			out.Index(i).Set(ev)
		}
		return out, nil
	}
	m.Comparer = listComparer(elem.Comparer, t)
	return m, nil
}

func (r *Registry) keyedMapping(t reflect.Type) (*Mapping, error) {
	elem, err := r.resolve(t.Elem(), false)
	if err != nil {
		return nil, err
	}
	m := &Mapping{GoType: t, Wire: WireMap, Elem: elem}
	m.Encode = func(v reflect.Value) (types.AttributeValue, error) {
		if v.IsNil() {
			return wire.Null(), nil
		}
		out := make(map[string]types.AttributeValue, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			av, err := elem.Encode(iter.Value())
			if err != nil {
				return nil, err
			}
			out[iter.Key().String()] = av
		}
		return wire.Map(out), nil
	}
	m.Decode = func(av types.AttributeValue) (reflect.Value, error) {
		mv, ok := av.(*types.AttributeValueMemberM)
		if !ok {
			return reflect.Value{}, tagError(WireMap, wire.TagName(av))
		}
		out := reflect.MakeMapWithSize(t, len(mv.Value))
		for k, e := range mv.Value {
			ev, err := elem.Decode(e)
			if err != nil {
				return reflect.Value{}, err
			}
			out.SetMapIndex(reflect.ValueOf(k).Convert(t.Key()), ev)
		}
		return out, nil
	}
	m.Comparer = mapComparer(elem.Comparer, t)
	return m, nil
}

// setMapping handles slices explicitly declared as sets by the owning
// metadata. The element shape decides between SS, NS and BS.
func (r *Registry) setMapping(t reflect.Type) (*Mapping, error) {
	if t.Kind() != reflect.Slice {
		return nil, &UnsupportedShapeError{Shape: t}
	}
	et := t.Elem()
	switch {
	case et.Kind() == reflect.String:
		return sliceSetMapping(t, WireStringSet), nil
	case isNumericKind(et.Kind()):
		return sliceSetMapping(t, WireNumberSet), nil
	case et.Kind() == reflect.Slice && et.Elem().Kind() == reflect.Uint8:
		return sliceSetMapping(t, WireBinarySet), nil
	default:
		return nil, &UnsupportedShapeError{Shape: t}
	}
}

// mapSetMapping handles map[K]struct{} set shapes.
func (r *Registry) mapSetMapping(t reflect.Type) (*Mapping, error) {
	kt := t.Key()
	var w WireType
	switch {
	case kt.Kind() == reflect.String:
		w = WireStringSet
	case isNumericKind(kt.Kind()):
		w = WireNumberSet
	default:
		return nil, &UnsupportedShapeError{Shape: t}
	}
	m := &Mapping{GoType: t, Wire: w}
	m.Encode = func(v reflect.Value) (types.AttributeValue, error) {
		if v.IsNil() {
			return wire.Null(), nil
		}
		members := make([]string, 0, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			members = append(members, formatNumericOrString(iter.Key()))
		}
		if w == WireStringSet {
			return wire.StringSet(members...), nil
		}
		return wire.NumberSet(members...), nil
	}
	m.Decode = func(av types.AttributeValue) (reflect.Value, error) {
		members, err := setMembers(av, w)
		if err != nil {
			return reflect.Value{}, err
		}
		out := reflect.MakeMapWithSize(t, len(members))
		unit := reflect.Zero(t.Elem())
		for _, s := range members {
			kv, err := parseNumericOrString(kt, s)
			if err != nil {
				return reflect.Value{}, err
			}
			out.SetMapIndex(kv, unit)
		}
		return out, nil
	}
	m.Comparer = mapSetComparer(t)
	return m, nil
}

func sliceSetMapping(t reflect.Type, w WireType) *Mapping {
	et := t.Elem()
	m := &Mapping{GoType: t, Wire: w}
	m.Encode = func(v reflect.Value) (types.AttributeValue, error) {
		if v.IsNil() {
			return wire.Null(), nil
		}
		if w == WireBinarySet {
			members := make([][]byte, v.Len())
			for i := 0; i < v.Len(); i++ {
				members[i] = append([]byte(nil), v.Index(i).Bytes()...)
			}
			return wire.BinarySet(members...), nil
		}
		members := make([]string, v.Len())
		for i := 0; i < v.Len(); i++ {
			members[i] = formatNumericOrString(v.Index(i))
		}
		if w == WireStringSet {
			return wire.StringSet(members...), nil
		}
		return wire.NumberSet(members...), nil
	}
	m.Decode = func(av types.AttributeValue) (reflect.Value, error) {
		if w == WireBinarySet {
			bs, ok := av.(*types.AttributeValueMemberBS)
			if !ok {
				return reflect.Value{}, tagError(w, wire.TagName(av))
			}
			out := reflect.MakeSlice(t, len(bs.Value), len(bs.Value))
			for i, b := range bs.Value {
				out.Index(i).SetBytes(append([]byte(nil), b...))
			}
			return out, nil
		}
		members, err := setMembers(av, w)
		if err != nil {
			return reflect.Value{}, err
		}
		out := reflect.MakeSlice(t, len(members), len(members))
		for i, s := range members {
			ev, err := parseNumericOrString(et, s)
			if err != nil {
				return reflect.Value{}, err
			}
			out.Index(i).Set(ev)
		}
		return out, nil
	}
	m.Comparer = sliceSetComparer(t)
	return m
}

func setMembers(av types.AttributeValue, w WireType) ([]string, error) {
	switch v := av.(type) {
	case *types.AttributeValueMemberSS:
		if w != WireStringSet {
			return nil, tagError(w, "SS")
		}
		return v.Value, nil
	case *types.AttributeValueMemberNS:
		if w != WireNumberSet {
			return nil, tagError(w, "NS")
		}
		return v.Value, nil
	default:
		return nil, tagError(w, wire.TagName(av))
	}
}

func isNumericKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func formatNumericOrString(v reflect.Value) string {
	switch v.Kind() {
	case reflect.String:
		return v.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return wire.FormatInt(v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return wire.FormatUint(v.Uint())
	default:
		return wire.FormatFloat(v.Float())
	}
}

func parseNumericOrString(t reflect.Type, s string) (reflect.Value, error) {
	switch t.Kind() {
	case reflect.String:
		return reflect.ValueOf(s).Convert(t), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(i).Convert(t), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(u).Convert(t), nil
	default:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(f).Convert(t), nil
	}
}
