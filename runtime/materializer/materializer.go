// Package materializer turns wire rows into typed entity values.
//
// Materialization is driven entirely by the entity schema: each scalar
// member decodes through its type mapping, embedded objects recurse into
// the target schema, and embedded collections rebuild their elements in
// stored order. Absence and explicit null are distinct conditions and are
// reported as such.
package materializer

import (
	"fmt"
	"reflect"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/partiqlabs/partiq/metadata"
	"github.com/partiqlabs/partiq/wire"
)

// Reasons reported by DecodeError.
const (
	ReasonNotPresent   = "not present"
	ReasonExplicitNull = "explicit null"
)

// DecodeError reports a row that cannot be materialized into its entity
// shape. Member is the Go field name, qualified with the navigation path
// for embedded entities.
type DecodeError struct {
	Entity string
	Member string
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	msg := fmt.Sprintf("materializer: %s.%s: %s", e.Entity, e.Member, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Materializer decodes rows against schemas from one metadata registry.
type Materializer struct {
	schemas *metadata.Registry
}

// New builds a materializer over the given schema registry.
func New(schemas *metadata.Registry) *Materializer {
	return &Materializer{schemas: schemas}
}

// Materialize decodes row into a value of T.
func Materialize[T any](m *Materializer, row wire.Row) (T, error) {
	var out T
	entity, err := metadata.SchemaOf[T](m.schemas)
	if err != nil {
		return out, err
	}
	v := reflect.ValueOf(&out).Elem()
	if err := m.decodeInto(entity, row, v); err != nil {
		return out, err
	}
	return out, nil
}

// Decode decodes row into a new value of the entity's type and returns it.
func (m *Materializer) Decode(entity *metadata.Entity, row wire.Row) (reflect.Value, error) {
	v := reflect.New(entity.Type).Elem()
	if err := m.decodeInto(entity, row, v); err != nil {
		return reflect.Value{}, err
	}
	return v, nil
}

func (m *Materializer) decodeInto(entity *metadata.Entity, row wire.Row, v reflect.Value) error {
	for i := range entity.Members {
		if err := m.decodeMember(entity, &entity.Members[i], row, v); err != nil {
			return err
		}
	}
	for i := range entity.Navigations {
		if err := m.decodeNavigation(entity, &entity.Navigations[i], row, v); err != nil {
			return err
		}
	}
	return nil
}

func (m *Materializer) decodeMember(entity *metadata.Entity, member *metadata.Member, row wire.Row, v reflect.Value) error {
	av, present := row[member.Attribute]
	if !present {
		if member.Required {
			return &DecodeError{Entity: entity.Name, Member: member.Name, Reason: ReasonNotPresent}
		}
		return nil
	}
	if wire.IsNull(av) && !member.Mapping.Nullable {
		if member.Required {
			return &DecodeError{Entity: entity.Name, Member: member.Name, Reason: ReasonExplicitNull}
		}
		// Optional member: explicit null and absence both yield the zero
		// value.
		return nil
	}
	fv, err := member.Mapping.Decode(av)
	if err != nil {
		return &DecodeError{Entity: entity.Name, Member: member.Name, Reason: "decode failed", Err: err}
	}
	v.FieldByIndex(member.Index).Set(fv)
	return nil
}

func (m *Materializer) decodeNavigation(entity *metadata.Entity, nav *metadata.Navigation, row wire.Row, v reflect.Value) error {
	av, present := row[nav.Attribute]
	if !present {
		if nav.Required {
			return &DecodeError{Entity: entity.Name, Member: nav.Name, Reason: ReasonNotPresent}
		}
		return nil
	}
	if wire.IsNull(av) {
		if nav.Required {
			return &DecodeError{Entity: entity.Name, Member: nav.Name, Reason: ReasonExplicitNull}
		}
		return nil
	}
	if nav.Collection {
		return m.decodeCollection(entity, nav, av, v)
	}
	return m.decodeObject(entity, nav, av, v)
}

func (m *Materializer) decodeObject(entity *metadata.Entity, nav *metadata.Navigation, av types.AttributeValue, v reflect.Value) error {
	obj, ok := av.(*types.AttributeValueMemberM)
	if !ok {
		return &DecodeError{Entity: entity.Name, Member: nav.Name,
			Reason: fmt.Sprintf("unexpected wire tag %s (want M)", wire.TagName(av))}
	}
	target, err := m.Decode(nav.Target, obj.Value)
	if err != nil {
		return err
	}
	field := v.FieldByIndex(nav.Index)
	if field.Kind() == reflect.Pointer {
		p := reflect.New(nav.Target.Type)
		p.Elem().Set(target)
		field.Set(p)
		return nil
	}
	field.Set(target)
	return nil
}

// decodeCollection rebuilds an embedded collection from a list of maps.
// Elements keep their stored order; when the target declares an ordinal
// field it receives the element's 1-based position.
func (m *Materializer) decodeCollection(entity *metadata.Entity, nav *metadata.Navigation, av types.AttributeValue, v reflect.Value) error {
	list, ok := av.(*types.AttributeValueMemberL)
	if !ok {
		return &DecodeError{Entity: entity.Name, Member: nav.Name,
			Reason: fmt.Sprintf("unexpected wire tag %s (want L)", wire.TagName(av))}
	}

	field := v.FieldByIndex(nav.Index)
	sliceType := field.Type()
	if sliceType.Kind() == reflect.Pointer {
		sliceType = sliceType.Elem()
	}
	elemType := sliceType.Elem()

	out := reflect.MakeSlice(sliceType, 0, len(list.Value))
	for i, item := range list.Value {
		obj, ok := item.(*types.AttributeValueMemberM)
		if !ok {
			return &DecodeError{Entity: entity.Name, Member: nav.Name,
				Reason: fmt.Sprintf("collection element %d has wire tag %s (want M)", i, wire.TagName(item))}
		}
		target, err := m.Decode(nav.Target, obj.Value)
		if err != nil {
			return err
		}
		if nav.Target.Ordinal != nil {
			target.FieldByIndex(nav.Target.Ordinal).SetInt(int64(i + 1))
		}
		if elemType.Kind() == reflect.Pointer {
			p := reflect.New(nav.Target.Type)
			p.Elem().Set(target)
			out = reflect.Append(out, p)
		} else {
			out = reflect.Append(out, target)
		}
	}

	if field.Kind() == reflect.Pointer {
		p := reflect.New(sliceType)
		p.Elem().Set(out)
		field.Set(p)
		return nil
	}
	field.Set(out)
	return nil
}
