package flowctx

import (
	"encoding/json"
	"reflect"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrNotCloneable is returned by the structural copier for values it cannot
// reproduce (funcs, channels, unexported struct fields).
var ErrNotCloneable = eris.New("flowctx: value is not cloneable")

// CloneTier reports which strategy produced a clone.
type CloneTier int

const (
	// TierStructural is a reflective deep copy that preserves shared and
	// cyclic references.
	TierStructural CloneTier = iota
	// TierJSON is a JSON round-trip into a fresh value of the same type.
	TierJSON
	// TierReference means no copy could be made and the input is returned as is.
	TierReference
)

func (t CloneTier) String() string {
	switch t {
	case TierStructural:
		return "structural"
	case TierJSON:
		return "json"
	case TierReference:
		return "reference"
	default:
		return "unknown"
	}
}

// Clone returns an independent copy of v.
//
// Three tiers are tried in order: a structural copy, a JSON round-trip, and
// finally the original reference. The last tier aliases the caller's value
// and is logged at warn level.
func Clone[T any](v T) T {
	out, _ := CloneWithTier(v)
	return out
}

// CloneWithTier is Clone but also reports which tier produced the result.
func CloneWithTier[T any](v T) (T, CloneTier) {
	rv := reflect.ValueOf(&v).Elem()

	c := copier{seen: make(map[visit]reflect.Value)}
	if cp, err := c.copy(rv); err == nil {
		out, _ := cp.Interface().(T)
		return out, TierStructural
	}

	if cp, err := jsonClone(rv); err == nil {
		out, _ := cp.Interface().(T)
		return out, TierJSON
	}

	zap.L().Warn("flowctx: falling back to reference for uncloneable value",
		zap.String("type", rv.Type().String()),
	)
	return v, TierReference
}

func jsonClone(v reflect.Value) (reflect.Value, error) {
	// Decode into the dynamic type so a struct held in an interface does not
	// come back as a map.
	if v.Kind() == reflect.Interface && !v.IsNil() {
		inner, err := jsonClone(v.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		out := reflect.New(v.Type()).Elem()
		out.Set(inner)
		return out, nil
	}

	raw, err := json.Marshal(v.Interface())
	if err != nil {
		return reflect.Value{}, eris.Wrap(err, "flowctx: json clone marshal")
	}
	target := reflect.New(v.Type())
	if err := json.Unmarshal(raw, target.Interface()); err != nil {
		return reflect.Value{}, eris.Wrap(err, "flowctx: json clone unmarshal")
	}
	return target.Elem(), nil
}

type visit struct {
	ptr uintptr
	typ reflect.Type
}

var timeType = reflect.TypeOf(time.Time{})

type copier struct {
	seen map[visit]reflect.Value
}

func (c *copier) copy(v reflect.Value) (reflect.Value, error) {
	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() {
			return reflect.Zero(v.Type()), nil
		}
		key := visit{ptr: v.Pointer(), typ: v.Type()}
		if done, ok := c.seen[key]; ok {
			return done, nil
		}
		out := reflect.New(v.Type().Elem())
		c.seen[key] = out
		elem, err := c.copy(v.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		out.Elem().Set(elem)
		return out, nil

	case reflect.Interface:
		if v.IsNil() {
			return reflect.Zero(v.Type()), nil
		}
		inner, err := c.copy(v.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		out := reflect.New(v.Type()).Elem()
		out.Set(inner)
		return out, nil

	case reflect.Map:
		if v.IsNil() {
			return reflect.Zero(v.Type()), nil
		}
		key := visit{ptr: v.Pointer(), typ: v.Type()}
		if done, ok := c.seen[key]; ok {
			return done, nil
		}
		out := reflect.MakeMapWithSize(v.Type(), v.Len())
		c.seen[key] = out
		iter := v.MapRange()
		for iter.Next() {
			k, err := c.copy(iter.Key())
			if err != nil {
				return reflect.Value{}, err
			}
			val, err := c.copy(iter.Value())
			if err != nil {
				return reflect.Value{}, err
			}
			out.SetMapIndex(k, val)
		}
		return out, nil

	case reflect.Slice:
		if v.IsNil() {
			return reflect.Zero(v.Type()), nil
		}
		out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			e, err := c.copy(v.Index(i))
			if err != nil {
				return reflect.Value{}, err
			}
			out.Index(i).Set(e)
		}
		return out, nil

	case reflect.Array:
		out := reflect.New(v.Type()).Elem()
		for i := 0; i < v.Len(); i++ {
			e, err := c.copy(v.Index(i))
			if err != nil {
				return reflect.Value{}, err
			}
			out.Index(i).Set(e)
		}
		return out, nil

	case reflect.Struct:
		// time.Time carries an unexported *Location but is immutable.
		if v.Type() == timeType {
			out := reflect.New(timeType).Elem()
			out.Set(v)
			return out, nil
		}
		out := reflect.New(v.Type()).Elem()
		for i := 0; i < v.NumField(); i++ {
			field := v.Type().Field(i)
			if !field.IsExported() {
				return reflect.Value{}, eris.Wrapf(ErrNotCloneable, "unexported field %s.%s", v.Type(), field.Name)
			}
			fv, err := c.copy(v.Field(i))
			if err != nil {
				return reflect.Value{}, err
			}
			out.Field(i).Set(fv)
		}
		return out, nil

	case reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return reflect.Value{}, eris.Wrapf(ErrNotCloneable, "kind %s", v.Kind())

	default:
		out := reflect.New(v.Type()).Elem()
		out.Set(v)
		return out, nil
	}
}
