package protoschema

import (
	"encoding/base64"
	"math"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// asMessage accepts reflective and generated messages. A nil message is
// reported as ok with a nil result.
func asMessage(v any) (protoreflect.Message, bool) {
	switch m := v.(type) {
	case nil:
		return nil, true
	case protoreflect.Message:
		if !m.IsValid() {
			return nil, true
		}
		return m, true
	case proto.Message:
		return asMessage(m.ProtoReflect())
	}
	return nil, false
}

// fieldValue reads fd from m in the shape the GraphQL type of fd expects.
func fieldValue(fd protoreflect.FieldDescriptor, m protoreflect.Message) (any, error) {
	if fd.IsList() {
		list := m.Get(fd).List()
		out := make([]any, list.Len())
		for i := range out {
			v, err := outValue(fd, list.Get(i))
			if err != nil {
				return nil, errors.Wrapf(err, "%s[%d]", fd.Name(), i)
			}
			out[i] = v
		}
		return out, nil
	}
	if fd.HasPresence() && !m.Has(fd) {
		return nil, nil
	}
	v := m.Get(fd)
	if fd.Kind() == protoreflect.EnumKind && v.Enum() == 0 && hiddenZero(fd.Enum()) {
		return nil, nil
	}
	return outValue(fd, v)
}

func outValue(fd protoreflect.FieldDescriptor, v protoreflect.Value) (any, error) {
	switch fd.Kind() {
	case protoreflect.BoolKind:
		return v.Bool(), nil
	case protoreflect.EnumKind:
		return v.Enum(), nil
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind:
		return int(v.Int()), nil
	case protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		return strconv.FormatInt(v.Int(), 10), nil
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind:
		return float64(v.Uint()), nil
	case protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		return strconv.FormatUint(v.Uint(), 10), nil
	case protoreflect.FloatKind, protoreflect.DoubleKind:
		return v.Float(), nil
	case protoreflect.StringKind:
		return v.String(), nil
	case protoreflect.BytesKind:
		return base64.StdEncoding.EncodeToString(v.Bytes()), nil
	case protoreflect.MessageKind, protoreflect.GroupKind:
		m := v.Message()
		md := fd.Message()
		if md.FullName() == timestampName {
			seconds := m.Get(md.Fields().ByName("seconds")).Int()
			nanos := m.Get(md.Fields().ByName("nanos")).Int()
			return time.Unix(seconds, nanos).UTC().Format(time.RFC3339Nano), nil
		}
		if _, ok := wrapperScalar(md); ok {
			inner := md.Fields().ByName("value")
			return outValue(inner, m.Get(inner))
		}
		return m, nil
	}
	return nil, errors.Newf("unsupported kind %v", fd.Kind())
}

// fill sets the fields of m from decoded arguments keyed by proto field
// name. Null arguments leave their field unset.
func fill(m protoreflect.Message, args map[string]any) error {
	fields := m.Descriptor().Fields()
	for name, arg := range args {
		fd := fields.ByName(protoreflect.Name(name))
		if fd == nil {
			return errors.Newf("%s has no field %s", m.Descriptor().FullName(), name)
		}
		if arg == nil {
			continue
		}
		if err := setField(m, fd, arg); err != nil {
			return errors.Wrap(err, name)
		}
	}
	return nil
}

func setField(m protoreflect.Message, fd protoreflect.FieldDescriptor, arg any) error {
	if !fd.IsList() {
		v, err := inValue(fd, arg, func() protoreflect.Value { return m.NewField(fd) })
		if err != nil {
			return err
		}
		m.Set(fd, v)
		return nil
	}
	items, ok := arg.([]any)
	if !ok {
		items = []any{arg}
	}
	list := m.Mutable(fd).List()
	for i, item := range items {
		v, err := inValue(fd, item, list.NewElement)
		if err != nil {
			return errors.Wrapf(err, "[%d]", i)
		}
		list.Append(v)
	}
	return nil
}

// inValue converts one argument for fd. alloc returns a fresh message value
// of the field's type.
func inValue(fd protoreflect.FieldDescriptor, arg any, alloc func() protoreflect.Value) (protoreflect.Value, error) {
	switch fd.Kind() {
	case protoreflect.BoolKind:
		b, ok := arg.(bool)
		if !ok {
			return protoreflect.Value{}, mismatch("Boolean", arg)
		}
		return protoreflect.ValueOfBool(b), nil
	case protoreflect.EnumKind:
		return enumValue(fd.Enum(), arg)
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind:
		n, err := integer(arg, math.MinInt32, math.MaxInt32)
		return protoreflect.ValueOfInt32(int32(n)), err
	case protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		n, err := integer(arg, math.MinInt64, math.MaxInt64)
		return protoreflect.ValueOfInt64(n), err
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind:
		n, err := integer(arg, 0, math.MaxUint32)
		return protoreflect.ValueOfUint32(uint32(n)), err
	case protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		if s, ok := arg.(string); ok {
			n, err := strconv.ParseUint(s, 10, 64)
			return protoreflect.ValueOfUint64(n), errors.Wrap(err, "parsing unsigned integer")
		}
		n, err := integer(arg, 0, math.MaxInt64)
		return protoreflect.ValueOfUint64(uint64(n)), err
	case protoreflect.FloatKind:
		f, err := float(arg)
		return protoreflect.ValueOfFloat32(float32(f)), err
	case protoreflect.DoubleKind:
		f, err := float(arg)
		return protoreflect.ValueOfFloat64(f), err
	case protoreflect.StringKind:
		s, ok := arg.(string)
		if !ok {
			return protoreflect.Value{}, mismatch("String", arg)
		}
		return protoreflect.ValueOfString(s), nil
	case protoreflect.BytesKind:
		s, ok := arg.(string)
		if !ok {
			return protoreflect.Value{}, mismatch("String", arg)
		}
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return protoreflect.Value{}, errors.Wrap(err, "decoding base64")
		}
		return protoreflect.ValueOfBytes(b), nil
	case protoreflect.MessageKind, protoreflect.GroupKind:
		v := alloc()
		m := v.Message()
		md := fd.Message()
		if md.FullName() == timestampName {
			s, ok := arg.(string)
			if !ok {
				return protoreflect.Value{}, mismatch("String", arg)
			}
			t, err := time.Parse(time.RFC3339Nano, s)
			if err != nil {
				return protoreflect.Value{}, errors.Wrap(err, "parsing timestamp")
			}
			m.Set(md.Fields().ByName("seconds"), protoreflect.ValueOfInt64(t.Unix()))
			m.Set(md.Fields().ByName("nanos"), protoreflect.ValueOfInt32(int32(t.Nanosecond())))
			return v, nil
		}
		if _, ok := wrapperScalar(md); ok {
			inner := md.Fields().ByName("value")
			iv, err := inValue(inner, arg, nil)
			if err != nil {
				return protoreflect.Value{}, err
			}
			m.Set(inner, iv)
			return v, nil
		}
		fields, ok := arg.(map[string]any)
		if !ok {
			return protoreflect.Value{}, mismatch(string(md.Name()), arg)
		}
		return v, fill(m, fields)
	}
	return protoreflect.Value{}, errors.Newf("unsupported kind %v", fd.Kind())
}

// enumValue accepts decoded host values and, for callers that bypass
// decoding, value names.
func enumValue(ed protoreflect.EnumDescriptor, arg any) (protoreflect.Value, error) {
	switch v := arg.(type) {
	case protoreflect.EnumNumber:
		return protoreflect.ValueOfEnum(v), nil
	case string:
		if ev := ed.Values().ByName(protoreflect.Name(v)); ev != nil {
			return protoreflect.ValueOfEnum(ev.Number()), nil
		}
		if ev := ed.Values().ByName(protoreflect.Name(screaming(string(ed.Name())) + "_" + v)); ev != nil {
			return protoreflect.ValueOfEnum(ev.Number()), nil
		}
		return protoreflect.Value{}, errors.Newf("%q is not a value of %s", v, ed.FullName())
	}
	return protoreflect.Value{}, mismatch(string(ed.Name()), arg)
}

func integer(arg any, lo, hi int64) (int64, error) {
	var n int64
	switch v := arg.(type) {
	case int:
		n = int64(v)
	case int32:
		n = int64(v)
	case int64:
		n = v
	case float64:
		if v != math.Trunc(v) || v < math.MinInt64 || v > math.MaxInt64 {
			return 0, errors.Newf("%v is not an integer", v)
		}
		n = int64(v)
	case string:
		var err error
		if n, err = strconv.ParseInt(v, 10, 64); err != nil {
			return 0, errors.Wrap(err, "parsing integer")
		}
	default:
		return 0, mismatch("integer", arg)
	}
	if n < lo || n > hi {
		return 0, errors.Newf("%d is out of range", n)
	}
	return n, nil
}

func float(arg any) (float64, error) {
	switch v := arg.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	}
	return 0, mismatch("Float", arg)
}

func mismatch(want string, arg any) error {
	return errors.Newf("expected %s, got %T", want, arg)
}
