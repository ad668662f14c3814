package typemap

import (
	"fmt"
	"reflect"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/spf13/cast"
)

// Converter lowers a non-primitive scalar shape to a primitive one and
// lifts it back. Primitive names the Go shape the pair converts through;
// its own mapping decides the wire tag.
type Converter struct {
	Primitive reflect.Type
	ToWire    func(v any) (any, error)
	FromWire  func(v any) (any, error)
}

// convertedMapping layers a converter pair over the primitive mapping.
func (r *Registry) convertedMapping(t reflect.Type, c Converter) (*Mapping, error) {
	prim, err := r.resolve(c.Primitive, false)
	if err != nil {
		return nil, err
	}
	m := &Mapping{GoType: t, Wire: prim.Wire}
	m.Encode = func(v reflect.Value) (types.AttributeValue, error) {
		lowered, err := c.ToWire(v.Interface())
		if err != nil {
			return nil, fmt.Errorf("convert %s: %w", t, err)
		}
		return prim.Encode(reflect.ValueOf(lowered).Convert(c.Primitive))
	}
	m.Decode = func(av types.AttributeValue) (reflect.Value, error) {
		pv, err := prim.Decode(av)
		if err != nil {
			return reflect.Value{}, err
		}
		lifted, err := c.FromWire(pv.Interface())
		if err != nil {
			return reflect.Value{}, fmt.Errorf("convert %s: %w", t, err)
		}
		return reflect.ValueOf(lifted).Convert(t), nil
	}
	m.Comparer = convertedComparer(m, c, prim)
	return m, nil
}

var (
	timeType     = reflect.TypeOf(time.Time{})
	durationType = reflect.TypeOf(time.Duration(0))
	stringType   = reflect.TypeOf("")
	int64Type    = reflect.TypeOf(int64(0))
)

// registerDefaultConverters installs the built-in scalar converters.
func registerDefaultConverters(r *Registry) {
	r.converters[timeType] = Converter{
		Primitive: stringType,
		ToWire: func(v any) (any, error) {
			return v.(time.Time).UTC().Format(time.RFC3339Nano), nil
		},
		FromWire: func(v any) (any, error) {
			return cast.ToTimeE(v)
		},
	}
	r.converters[durationType] = Converter{
		Primitive: int64Type,
		ToWire: func(v any) (any, error) {
			return int64(v.(time.Duration)), nil
		},
		FromWire: func(v any) (any, error) {
			return time.Duration(cast.ToInt64(v)), nil
		},
	}
}
