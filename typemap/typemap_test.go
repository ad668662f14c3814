package typemap

import (
	"reflect"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/partiqlabs/partiq/wire"
)

func resolve(t *testing.T, shape any) *Mapping {
	t.Helper()
	m, err := NewRegistry().Resolve(reflect.TypeOf(shape))
	require.NoError(t, err)
	return m
}

func TestResolvePrimitives(t *testing.T) {
	assert.Equal(t, WireString, resolve(t, "").Wire)
	assert.Equal(t, WireBool, resolve(t, true).Wire)
	assert.Equal(t, WireNumber, resolve(t, int(0)).Wire)
	assert.Equal(t, WireNumber, resolve(t, int32(0)).Wire)
	assert.Equal(t, WireNumber, resolve(t, uint16(0)).Wire)
	assert.Equal(t, WireNumber, resolve(t, float64(0)).Wire)
	assert.Equal(t, WireBinary, resolve(t, []byte(nil)).Wire)
	assert.Equal(t, WireList, resolve(t, []string(nil)).Wire)
	assert.Equal(t, WireMap, resolve(t, map[string]int(nil)).Wire)
	assert.Equal(t, WireStringSet, resolve(t, map[string]struct{}(nil)).Wire)
	assert.Equal(t, WireNumberSet, resolve(t, map[int]struct{}(nil)).Wire)
}

func TestResolveMemoizes(t *testing.T) {
	r := NewRegistry()
	a, err := r.Resolve(reflect.TypeOf([]string{}))
	require.NoError(t, err)
	b, err := r.Resolve(reflect.TypeOf([]string{}))
	require.NoError(t, err)
	assert.Same(t, a, b)
}

func TestUnsupportedShapeListsSupportedOnes(t *testing.T) {
	_, err := NewRegistry().Resolve(reflect.TypeOf(make(chan int)))
	require.Error(t, err)
	var ue *UnsupportedShapeError
	require.ErrorAs(t, err, &ue)
	assert.Contains(t, err.Error(), "supported shapes are")
	assert.Contains(t, err.Error(), "map[K]struct{}")
}

func TestStructWithoutConverterIsConfigError(t *testing.T) {
	type opaque struct{ A, B int }
	_, err := NewRegistry().Resolve(reflect.TypeOf(opaque{}))
	var me *MissingConverterError
	require.ErrorAs(t, err, &me)
}

func TestRegisteredConverterRoundTrip(t *testing.T) {
	type userID struct{ raw string }
	r := NewRegistry()
	r.RegisterConverter(reflect.TypeOf(userID{}), Converter{
		Primitive: reflect.TypeOf(""),
		ToWire:    func(v any) (any, error) { return v.(userID).raw, nil },
		FromWire:  func(v any) (any, error) { return userID{raw: v.(string)}, nil },
	})
	m, err := r.Resolve(reflect.TypeOf(userID{}))
	require.NoError(t, err)
	assert.Equal(t, WireString, m.Wire)

	av, err := m.Encode(reflect.ValueOf(userID{raw: "u-1"}))
	require.NoError(t, err)
	got, err := m.Decode(av)
	require.NoError(t, err)
	assert.Equal(t, userID{raw: "u-1"}, got.Interface())
}

func TestTimeConverterRoundTrip(t *testing.T) {
	m := resolve(t, time.Time{})
	assert.Equal(t, WireString, m.Wire)
	in := time.Date(2024, 5, 17, 8, 30, 0, 0, time.UTC)
	av, err := m.Encode(reflect.ValueOf(in))
	require.NoError(t, err)
	out, err := m.Decode(av)
	require.NoError(t, err)
	assert.True(t, in.Equal(out.Interface().(time.Time)))
}

func TestNestedRoundTrip(t *testing.T) {
	shape := map[string][]int{"a": {1, 2}, "b": {3}}
	m := resolve(t, shape)
	av, err := m.Encode(reflect.ValueOf(shape))
	require.NoError(t, err)
	got, err := m.Decode(av)
	require.NoError(t, err)
	assert.Equal(t, shape, got.Interface())
}

func TestSetShapeRoundTrip(t *testing.T) {
	r := NewRegistry()
	m, err := r.ResolveSet(reflect.TypeOf([]string{}))
	require.NoError(t, err)
	assert.Equal(t, WireStringSet, m.Wire)

	av, err := m.Encode(reflect.ValueOf([]string{"b", "a"}))
	require.NoError(t, err)
	assert.True(t, wire.Equal(av, wire.StringSet("a", "b")))

	nm, err := r.ResolveSet(reflect.TypeOf([]int{}))
	require.NoError(t, err)
	assert.Equal(t, WireNumberSet, nm.Wire)
}

func TestListElementNullRejectedUnlessNullable(t *testing.T) {
	m := resolve(t, []string(nil))
	_, err := m.Decode(wire.List(wire.String("a"), wire.Null()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NULL")

	nullable := resolve(t, []*string(nil))
	got, err := nullable.Decode(wire.List(wire.String("a"), wire.Null()))
	require.NoError(t, err)
	vs := got.Interface().([]*string)
	require.Len(t, vs, 2)
	assert.Equal(t, "a", *vs[0])
	assert.Nil(t, vs[1])
}

func TestDecodeWrongTag(t *testing.T) {
	m := resolve(t, int(0))
	_, err := m.Decode(wire.String("nope"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected wire tag S (want N)")
}

func TestSetComparerIgnoresOrder(t *testing.T) {
	r := NewRegistry()
	m, err := r.ResolveSet(reflect.TypeOf([]string{}))
	require.NoError(t, err)

	a := reflect.ValueOf([]string{"x", "y", "z"})
	b := reflect.ValueOf([]string{"z", "x", "y"})
	assert.True(t, m.Comparer.Equal(a, b))
	assert.Equal(t, m.Comparer.Hash(a), m.Comparer.Hash(b))
}

func TestListComparerIsOrderSensitive(t *testing.T) {
	m := resolve(t, []string(nil))
	a := reflect.ValueOf([]string{"x", "y"})
	b := reflect.ValueOf([]string{"y", "x"})
	assert.False(t, m.Comparer.Equal(a, b))
	assert.True(t, m.Comparer.Equal(a, reflect.ValueOf([]string{"x", "y"})))
}

func TestMapComparerIgnoresIterationOrder(t *testing.T) {
	m := resolve(t, map[string]int(nil))
	a := reflect.ValueOf(map[string]int{"a": 1, "b": 2, "c": 3})
	b := reflect.ValueOf(map[string]int{"c": 3, "b": 2, "a": 1})
	assert.True(t, m.Comparer.Equal(a, b))
	assert.Equal(t, m.Comparer.Hash(a), m.Comparer.Hash(b))
	assert.False(t, m.Comparer.Equal(a, reflect.ValueOf(map[string]int{"a": 1, "b": 2, "c": 9})))
}

func TestSnapshotDoesNotAliasMutableContainers(t *testing.T) {
	m := resolve(t, []int(nil))
	orig := []int{1, 2, 3}
	snap := m.Comparer.Snapshot(reflect.ValueOf(orig)).Interface().([]int)
	orig[0] = 99
	assert.Equal(t, 1, snap[0])

	mm := resolve(t, map[string]int(nil))
	om := map[string]int{"a": 1}
	msnap := mm.Comparer.Snapshot(reflect.ValueOf(om)).Interface().(map[string]int)
	om["a"] = 42
	assert.Equal(t, 1, msnap["a"])
}

func TestSnapshotKeepsImmutableScalars(t *testing.T) {
	m := resolve(t, "")
	v := reflect.ValueOf("hello")
	assert.Equal(t, "hello", m.Comparer.Snapshot(v).Interface())
}

func TestEncodeNilContainersAsNull(t *testing.T) {
	m := resolve(t, []string(nil))
	av, err := m.Encode(reflect.Zero(reflect.TypeOf([]string(nil))))
	require.NoError(t, err)
	assert.IsType(t, &types.AttributeValueMemberNULL{}, av)
}
