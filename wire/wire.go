// Package wire provides helpers over the DynamoDB attribute value union.
//
// A row returned by the store is a map from attribute name to a tagged
// value. Absence of a key in the row is distinct from a value carrying the
// NULL tag; both cases are preserved by everything in this package.
package wire

import (
	"bytes"
	"sort"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Row is a single item returned by the store.
type Row = map[string]types.AttributeValue

// String builds an S value.
func String(s string) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: s}
}

// Number builds an N value from its textual form.
func Number(s string) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: s}
}

// NumberInt builds an N value from an integer.
func NumberInt(n int64) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(n, 10)}
}

// NumberFloat builds an N value from a float using invariant formatting.
func NumberFloat(f float64) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: FormatFloat(f)}
}

// Bool builds a BOOL value.
func Bool(b bool) types.AttributeValue {
	return &types.AttributeValueMemberBOOL{Value: b}
}

// Null builds the explicit NULL marker.
func Null() types.AttributeValue {
	return &types.AttributeValueMemberNULL{Value: true}
}

// Binary builds a B value.
func Binary(b []byte) types.AttributeValue {
	return &types.AttributeValueMemberB{Value: b}
}

// List builds an L value.
func List(vs ...types.AttributeValue) types.AttributeValue {
	return &types.AttributeValueMemberL{Value: vs}
}

// Map builds an M value.
func Map(m map[string]types.AttributeValue) types.AttributeValue {
	return &types.AttributeValueMemberM{Value: m}
}

// StringSet builds an SS value.
func StringSet(ss ...string) types.AttributeValue {
	return &types.AttributeValueMemberSS{Value: ss}
}

// NumberSet builds an NS value from textual numbers.
func NumberSet(ns ...string) types.AttributeValue {
	return &types.AttributeValueMemberNS{Value: ns}
}

// BinarySet builds a BS value.
func BinarySet(bs ...[]byte) types.AttributeValue {
	return &types.AttributeValueMemberBS{Value: bs}
}

// IsNull reports whether av carries the explicit NULL tag.
func IsNull(av types.AttributeValue) bool {
	n, ok := av.(*types.AttributeValueMemberNULL)
	return ok && n.Value
}

// TagName returns the wire tag of av ("S", "N", ...) for error messages.
// A nil value reports "missing".
func TagName(av types.AttributeValue) string {
	switch av.(type) {
	case nil:
		return "missing"
	case *types.AttributeValueMemberS:
		return "S"
	case *types.AttributeValueMemberN:
		return "N"
	case *types.AttributeValueMemberBOOL:
		return "BOOL"
	case *types.AttributeValueMemberNULL:
		return "NULL"
	case *types.AttributeValueMemberB:
		return "B"
	case *types.AttributeValueMemberL:
		return "L"
	case *types.AttributeValueMemberM:
		return "M"
	case *types.AttributeValueMemberSS:
		return "SS"
	case *types.AttributeValueMemberNS:
		return "NS"
	case *types.AttributeValueMemberBS:
		return "BS"
	default:
		return "unknown"
	}
}

// FormatInt formats an integer for the N tag.
func FormatInt(n int64) string {
	return strconv.FormatInt(n, 10)
}

// FormatUint formats an unsigned integer for the N tag.
func FormatUint(n uint64) string {
	return strconv.FormatUint(n, 10)
}

// FormatFloat formats a float for the N tag. The output is
// locale-independent and round-trips through ParseFloat.
func FormatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Equal reports deep structural equality of two attribute values.
// Set variants compare order-insensitively; lists compare element by
// element in order.
func Equal(a, b types.AttributeValue) bool {
	switch av := a.(type) {
	case nil:
		return b == nil
	case *types.AttributeValueMemberS:
		bv, ok := b.(*types.AttributeValueMemberS)
		return ok && av.Value == bv.Value
	case *types.AttributeValueMemberN:
		bv, ok := b.(*types.AttributeValueMemberN)
		return ok && av.Value == bv.Value
	case *types.AttributeValueMemberBOOL:
		bv, ok := b.(*types.AttributeValueMemberBOOL)
		return ok && av.Value == bv.Value
	case *types.AttributeValueMemberNULL:
		bv, ok := b.(*types.AttributeValueMemberNULL)
		return ok && av.Value == bv.Value
	case *types.AttributeValueMemberB:
		bv, ok := b.(*types.AttributeValueMemberB)
		return ok && bytes.Equal(av.Value, bv.Value)
	case *types.AttributeValueMemberL:
		bv, ok := b.(*types.AttributeValueMemberL)
		if !ok || len(av.Value) != len(bv.Value) {
			return false
		}
		for i := range av.Value {
			if !Equal(av.Value[i], bv.Value[i]) {
				return false
			}
		}
		return true
	case *types.AttributeValueMemberM:
		bv, ok := b.(*types.AttributeValueMemberM)
		if !ok || len(av.Value) != len(bv.Value) {
			return false
		}
		for k, v := range av.Value {
			ov, present := bv.Value[k]
			if !present || !Equal(v, ov) {
				return false
			}
		}
		return true
	case *types.AttributeValueMemberSS:
		bv, ok := b.(*types.AttributeValueMemberSS)
		return ok && stringSetEqual(av.Value, bv.Value)
	case *types.AttributeValueMemberNS:
		bv, ok := b.(*types.AttributeValueMemberNS)
		return ok && stringSetEqual(av.Value, bv.Value)
	case *types.AttributeValueMemberBS:
		bv, ok := b.(*types.AttributeValueMemberBS)
		if !ok || len(av.Value) != len(bv.Value) {
			return false
		}
		as := sortedBytes(av.Value)
		bs := sortedBytes(bv.Value)
		for i := range as {
			if !bytes.Equal(as[i], bs[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func stringSetEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

func sortedBytes(in [][]byte) [][]byte {
	out := append([][]byte(nil), in...)
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i], out[j]) < 0 })
	return out
}

// DeepCopy returns a copy of av sharing no mutable state with the input.
func DeepCopy(av types.AttributeValue) types.AttributeValue {
	switch v := av.(type) {
	case nil:
		return nil
	case *types.AttributeValueMemberS:
		return &types.AttributeValueMemberS{Value: v.Value}
	case *types.AttributeValueMemberN:
		return &types.AttributeValueMemberN{Value: v.Value}
	case *types.AttributeValueMemberBOOL:
		return &types.AttributeValueMemberBOOL{Value: v.Value}
	case *types.AttributeValueMemberNULL:
		return &types.AttributeValueMemberNULL{Value: v.Value}
	case *types.AttributeValueMemberB:
		return &types.AttributeValueMemberB{Value: append([]byte(nil), v.Value...)}
	case *types.AttributeValueMemberL:
		out := make([]types.AttributeValue, len(v.Value))
		for i, e := range v.Value {
			out[i] = DeepCopy(e)
		}
		return &types.AttributeValueMemberL{Value: out}
	case *types.AttributeValueMemberM:
		out := make(map[string]types.AttributeValue, len(v.Value))
		for k, e := range v.Value {
			out[k] = DeepCopy(e)
		}
		return &types.AttributeValueMemberM{Value: out}
	case *types.AttributeValueMemberSS:
		return &types.AttributeValueMemberSS{Value: append([]string(nil), v.Value...)}
	case *types.AttributeValueMemberNS:
		return &types.AttributeValueMemberNS{Value: append([]string(nil), v.Value...)}
	case *types.AttributeValueMemberBS:
		out := make([][]byte, len(v.Value))
		for i, b := range v.Value {
			out[i] = append([]byte(nil), b...)
		}
		return &types.AttributeValueMemberBS{Value: out}
	default:
		return av
	}
}

// CopyRow returns a deep copy of a row.
func CopyRow(r Row) Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = DeepCopy(v)
	}
	return out
}
