package typemap

import (
	"bytes"
	"reflect"
	"sort"
)

// Comparer provides equality, hashing and snapshotting for one shape.
//
// List comparers are order-sensitive. Set and map comparers ignore
// iteration order: two containers with the same members compare equal and
// hash identically. Snapshot returns a deep copy that shares no mutable
// state with the input; immutable values are returned as-is.
type Comparer struct {
	Equal    func(a, b reflect.Value) bool
	Hash     func(v reflect.Value) uint64
	Snapshot func(v reflect.Value) reflect.Value
}

const (
	fnvOffset64 = 14695981039346656037
	fnvPrime64  = 1099511628211
)

func fnvString(h uint64, s string) uint64 {
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= fnvPrime64
	}
	return h
}

func fnvBytes(h uint64, b []byte) uint64 {
	for _, c := range b {
		h ^= uint64(c)
		h *= fnvPrime64
	}
	return h
}

// scalarHash hashes a scalar value under a kind prefix so that, say, the
// string "1" and the number 1 do not collide.
func scalarHash(v reflect.Value) uint64 {
	h := fnvString(fnvOffset64, v.Kind().String())
	return fnvString(h, formatScalar(v))
}

func formatScalar(v reflect.Value) string {
	switch v.Kind() {
	case reflect.Bool:
		if v.Bool() {
			return "true"
		}
		return "false"
	default:
		return formatNumericOrString(v)
	}
}

func identitySnapshot(v reflect.Value) reflect.Value { return v }

func scalarComparer(m *Mapping) Comparer {
	return Comparer{
		Equal: func(a, b reflect.Value) bool {
			return a.Interface() == b.Interface()
		},
		Hash:     scalarHash,
		Snapshot: identitySnapshot,
	}
}

func binaryComparer() Comparer {
	return Comparer{
		Equal: func(a, b reflect.Value) bool {
			return bytes.Equal(a.Bytes(), b.Bytes())
		},
		Hash: func(v reflect.Value) uint64 {
			return fnvBytes(fnvOffset64, v.Bytes())
		},
		Snapshot: func(v reflect.Value) reflect.Value {
			if v.IsNil() {
				return v
			}
			out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
			reflect.Copy(out, v)
			return out
		},
	}
}

func convertedComparer(m *Mapping, c Converter, prim *Mapping) Comparer {
	lower := func(v reflect.Value) (reflect.Value, bool) {
		lv, err := c.ToWire(v.Interface())
		if err != nil {
			return reflect.Value{}, false
		}
		return reflect.ValueOf(lv).Convert(c.Primitive), true
	}
	return Comparer{
		Equal: func(a, b reflect.Value) bool {
			la, aok := lower(a)
			lb, bok := lower(b)
			if aok && bok {
				return prim.Comparer.Equal(la, lb)
			}
			return reflect.DeepEqual(a.Interface(), b.Interface())
		},
		Hash: func(v reflect.Value) uint64 {
			if lv, ok := lower(v); ok {
				return prim.Comparer.Hash(lv)
			}
			return fnvOffset64
		},
		// Converted shapes are treated as immutable scalar values.
		Snapshot: identitySnapshot,
	}
}

func nullableComparer(elem Comparer) Comparer {
	return Comparer{
		Equal: func(a, b reflect.Value) bool {
			if a.IsNil() || b.IsNil() {
				return a.IsNil() == b.IsNil()
			}
			return elem.Equal(a.Elem(), b.Elem())
		},
		Hash: func(v reflect.Value) uint64 {
			if v.IsNil() {
				return fnvString(fnvOffset64, "nil")
			}
			return elem.Hash(v.Elem())
		},
		Snapshot: func(v reflect.Value) reflect.Value {
			if v.IsNil() {
				return v
			}
			p := reflect.New(v.Type().Elem())
			p.Elem().Set(elem.Snapshot(v.Elem()))
			return p
		},
	}
}

func listComparer(elem Comparer, t reflect.Type) Comparer {
	return Comparer{
		Equal: func(a, b reflect.Value) bool {
			if a.Len() != b.Len() {
				return false
			}
			for i := 0; i < a.Len(); i++ {
				if !elem.Equal(a.Index(i), b.Index(i)) {
					return false
				}
			}
			return true
		},
		Hash: func(v reflect.Value) uint64 {
			h := uint64(fnvOffset64)
			for i := 0; i < v.Len(); i++ {
				h = (h ^ elem.Hash(v.Index(i))) * fnvPrime64
			}
			return h
		},
		Snapshot: func(v reflect.Value) reflect.Value {
			if v.IsNil() {
				return v
			}
			out := reflect.MakeSlice(t, v.Len(), v.Len())
			for i := 0; i < v.Len(); i++ {
				out.Index(i).Set(elem.Snapshot(v.Index(i)))
			}
			return out
		},
	}
}

// sliceSetComparer compares slices declared as sets: membership only,
// element order irrelevant.
func sliceSetComparer(t reflect.Type) Comparer {
	canon := func(v reflect.Value) []string {
		out := make([]string, v.Len())
		for i := 0; i < v.Len(); i++ {
			e := v.Index(i)
			if e.Kind() == reflect.Slice {
				out[i] = string(e.Bytes())
			} else {
				out[i] = formatScalar(e)
			}
		}
		sort.Strings(out)
		return out
	}
	return Comparer{
		Equal: func(a, b reflect.Value) bool {
			if a.Len() != b.Len() {
				return false
			}
			ca, cb := canon(a), canon(b)
			for i := range ca {
				if ca[i] != cb[i] {
					return false
				}
			}
			return true
		},
		Hash: func(v reflect.Value) uint64 {
			var sum uint64
			for i := 0; i < v.Len(); i++ {
				e := v.Index(i)
				if e.Kind() == reflect.Slice {
					sum += fnvBytes(fnvOffset64, e.Bytes())
				} else {
					sum += scalarHash(e)
				}
			}
			return sum
		},
		Snapshot: func(v reflect.Value) reflect.Value {
			if v.IsNil() {
				return v
			}
			out := reflect.MakeSlice(t, v.Len(), v.Len())
			for i := 0; i < v.Len(); i++ {
				e := v.Index(i)
				if e.Kind() == reflect.Slice {
					cp := reflect.MakeSlice(e.Type(), e.Len(), e.Len())
					reflect.Copy(cp, e)
					out.Index(i).Set(cp)
				} else {
					out.Index(i).Set(e)
				}
			}
			return out
		},
	}
}

func mapSetComparer(t reflect.Type) Comparer {
	return Comparer{
		Equal: func(a, b reflect.Value) bool {
			if a.Len() != b.Len() {
				return false
			}
			iter := a.MapRange()
			for iter.Next() {
				if !b.MapIndex(iter.Key()).IsValid() {
					return false
				}
			}
			return true
		},
		Hash: func(v reflect.Value) uint64 {
			var sum uint64
			iter := v.MapRange()
			for iter.Next() {
				sum += scalarHash(iter.Key())
			}
			return sum
		},
		Snapshot: func(v reflect.Value) reflect.Value {
			if v.IsNil() {
				return v
			}
			out := reflect.MakeMapWithSize(t, v.Len())
			iter := v.MapRange()
			for iter.Next() {
				out.SetMapIndex(iter.Key(), iter.Value())
			}
			return out
		},
	}
}

func mapComparer(elem Comparer, t reflect.Type) Comparer {
	return Comparer{
		Equal: func(a, b reflect.Value) bool {
			if a.Len() != b.Len() {
				return false
			}
			iter := a.MapRange()
			for iter.Next() {
				bv := b.MapIndex(iter.Key())
				if !bv.IsValid() || !elem.Equal(iter.Value(), bv) {
					return false
				}
			}
			return true
		},
		Hash: func(v reflect.Value) uint64 {
			var sum uint64
			iter := v.MapRange()
			for iter.Next() {
				kh := scalarHash(iter.Key())
				vh := elem.Hash(iter.Value())
				sum += (kh*31 ^ vh)
			}
			return sum
		},
		Snapshot: func(v reflect.Value) reflect.Value {
			if v.IsNil() {
				return v
			}
			out := reflect.MakeMapWithSize(t, v.Len())
			iter := v.MapRange()
			for iter.Next() {
				out.SetMapIndex(iter.Key(), elem.Snapshot(iter.Value()))
			}
			return out
		},
	}
}
