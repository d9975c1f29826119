package wire

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

// Codec encodes and decodes host Values against the message/enum
// descriptors compiled from one Schema.
type Codec struct {
	descriptors *descriptorSet
}

// NewCodec compiles schema and returns a Codec ready to encode/decode any
// of its top-level messages.
func NewCodec(schema Schema) (*Codec, error) {
	ds, err := BuildDescriptors(schema)
	if err != nil {
		return nil, err
	}
	return &Codec{descriptors: ds}, nil
}

// Encode serializes value, an Object whose keys are msgName's field names,
// into the protobuf wire format.
func (c *Codec) Encode(msgName string, value Value) ([]byte, error) {
	md, ok := c.descriptors.messages[msgName]
	if !ok {
		return nil, fmt.Errorf("wire: unknown message %q", msgName)
	}
	msg, err := encodeMessage(md, value)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(msg)
}

// Decode parses data as an instance of msgName and returns it as an Object.
func (c *Codec) Decode(msgName string, data []byte) (Value, error) {
	md, ok := c.descriptors.messages[msgName]
	if !ok {
		return nil, fmt.Errorf("wire: unknown message %q", msgName)
	}
	msg := dynamicpb.NewMessage(md)
	if err := proto.Unmarshal(data, msg); err != nil {
		return nil, err
	}
	return decodeMessage(msg), nil
}

func encodeMessage(md protoreflect.MessageDescriptor, value Value) (*dynamicpb.Message, error) {
	msg := dynamicpb.NewMessage(md)

	fields, ok := objectFields(value)
	if !ok {
		return nil, fmt.Errorf("wire: message %s must be an object", md.Name())
	}

	for name, v := range fields {
		fd := md.Fields().ByName(protoreflect.Name(name))
		if fd == nil {
			return nil, fmt.Errorf("wire: unknown field %q", name)
		}
		if err := setField(msg, fd, v); err != nil {
			return nil, fmt.Errorf("wire: field %q: %w", name, err)
		}
	}
	return msg, nil
}

// objectFields accepts either an Object (map[string]Value) or a
// string-keyed MapValue, matching wire.rs' acceptance of either Value
// shape when encoding a message or a string-keyed map field.
func objectFields(value Value) (map[string]Value, bool) {
	switch v := value.(type) {
	case map[string]Value:
		return v, true
	case MapValue:
		out := make(map[string]Value, len(v))
		for _, e := range v {
			key, ok := e.Key.(string)
			if !ok {
				return nil, false
			}
			out[key] = e.Value
		}
		return out, true
	default:
		return nil, false
	}
}

func setField(msg *dynamicpb.Message, fd protoreflect.FieldDescriptor, value Value) error {
	switch {
	case fd.IsMap():
		return setMapField(msg, fd, value)
	case fd.IsList():
		items, ok := value.([]Value)
		if !ok {
			return fmt.Errorf("must be an array")
		}
		list := msg.Mutable(fd).List()
		for _, item := range items {
			pv, err := coerceScalar(fd, item)
			if err != nil {
				return err
			}
			list.Append(pv)
		}
		return nil
	default:
		pv, err := coerceScalar(fd, value)
		if err != nil {
			return err
		}
		msg.Set(fd, pv)
		return nil
	}
}

func setMapField(msg *dynamicpb.Message, fd protoreflect.FieldDescriptor, value Value) error {
	entries, ok := mapEntries(value)
	if !ok {
		return fmt.Errorf("must be a map/object")
	}
	m := msg.Mutable(fd).Map()
	keyFd := fd.MapKey()
	valFd := fd.MapValue()
	for _, e := range entries {
		key, err := coerceMapKey(keyFd, e.Key)
		if err != nil {
			return err
		}
		val, err := coerceScalar(valFd, e.Value)
		if err != nil {
			return err
		}
		m.Set(key, val)
	}
	return nil
}

func mapEntries(value Value) ([]MapEntry, bool) {
	switch v := value.(type) {
	case MapValue:
		return v, true
	case map[string]Value:
		out := make([]MapEntry, 0, len(v))
		for k, val := range v {
			out = append(out, MapEntry{Key: k, Value: val})
		}
		return out, true
	default:
		return nil, false
	}
}

func coerceMapKey(fd protoreflect.FieldDescriptor, key any) (protoreflect.MapKey, error) {
	v, err := coerceScalar(fd, key)
	if err != nil {
		return protoreflect.MapKey{}, err
	}
	return v.MapKey(), nil
}

// coerceScalar converts a host Value to the protoreflect.Value fd expects,
// following §4.F's host→kind coercion table.
func coerceScalar(fd protoreflect.FieldDescriptor, value Value) (protoreflect.Value, error) {
	switch fd.Kind() {
	case protoreflect.BoolKind:
		return protoreflect.ValueOfBool(coerceBool(value)), nil
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind:
		i, err := coerceInt(value)
		if err != nil {
			return protoreflect.Value{}, err
		}
		return protoreflect.ValueOfInt32(int32(i)), nil
	case protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		i, err := coerceInt(value)
		if err != nil {
			return protoreflect.Value{}, err
		}
		return protoreflect.ValueOfInt64(i), nil
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind:
		u, err := coerceUint(value)
		if err != nil {
			return protoreflect.Value{}, err
		}
		return protoreflect.ValueOfUint32(uint32(u)), nil
	case protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		u, err := coerceUint(value)
		if err != nil {
			return protoreflect.Value{}, err
		}
		return protoreflect.ValueOfUint64(u), nil
	case protoreflect.FloatKind:
		f, err := coerceFloat(value)
		if err != nil {
			return protoreflect.Value{}, err
		}
		return protoreflect.ValueOfFloat32(float32(f)), nil
	case protoreflect.DoubleKind:
		f, err := coerceFloat(value)
		if err != nil {
			return protoreflect.Value{}, err
		}
		return protoreflect.ValueOfFloat64(f), nil
	case protoreflect.StringKind:
		return protoreflect.ValueOfString(coerceString(value)), nil
	case protoreflect.BytesKind:
		return protoreflect.ValueOfBytes(coerceBytes(value)), nil
	case protoreflect.EnumKind:
		return coerceEnum(fd, value)
	case protoreflect.MessageKind:
		sub, err := encodeMessage(fd.Message(), value)
		if err != nil {
			return protoreflect.Value{}, err
		}
		return protoreflect.ValueOfMessage(sub.ProtoReflect()), nil
	default:
		return protoreflect.Value{}, fmt.Errorf("unsupported field kind %s", fd.Kind())
	}
}

func coerceBool(value Value) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		return v == "true" || v == "1"
	case int64:
		return v != 0
	case uint64:
		return v != 0
	default:
		return false
	}
}

func coerceInt(value Value) (int64, error) {
	switch v := value.(type) {
	case int64:
		return v, nil
	case uint64:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case string:
		var n int64
		if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
			return 0, fmt.Errorf("cannot parse %q as an integer", v)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("cannot coerce %T to an integer", value)
	}
}

func coerceUint(value Value) (uint64, error) {
	switch v := value.(type) {
	case uint64:
		return v, nil
	case int64:
		return uint64(v), nil
	case float64:
		return uint64(v), nil
	case string:
		var n uint64
		if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
			return 0, fmt.Errorf("cannot parse %q as an integer", v)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("cannot coerce %T to an integer", value)
	}
}

func coerceFloat(value Value) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case int64:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case string:
		var f float64
		if _, err := fmt.Sscanf(v, "%g", &f); err != nil {
			return 0, fmt.Errorf("cannot parse %q as a float", v)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("cannot coerce %T to a float", value)
	}
}

func coerceString(value Value) string {
	switch v := value.(type) {
	case string:
		return v
	case int64:
		return fmt.Sprintf("%d", v)
	case uint64:
		return fmt.Sprintf("%d", v)
	case float64:
		return fmt.Sprintf("%g", v)
	case bool:
		return fmt.Sprintf("%t", v)
	default:
		return ""
	}
}

func coerceBytes(value Value) []byte {
	switch v := value.(type) {
	case []byte:
		return v
	case string:
		return []byte(v)
	default:
		return nil
	}
}

func coerceEnum(fd protoreflect.FieldDescriptor, value Value) (protoreflect.Value, error) {
	if s, ok := value.(string); ok {
		if ev := fd.Enum().Values().ByName(protoreflect.Name(s)); ev != nil {
			return protoreflect.ValueOfEnum(ev.Number()), nil
		}
	}
	i, err := coerceInt(value)
	if err != nil {
		return protoreflect.Value{}, err
	}
	return protoreflect.ValueOfEnum(protoreflect.EnumNumber(i)), nil
}

func decodeMessage(msg *dynamicpb.Message) Value {
	out := make(map[string]Value)
	msg.Range(func(fd protoreflect.FieldDescriptor, v protoreflect.Value) bool {
		out[string(fd.Name())] = decodeField(fd, v)
		return true
	})
	return out
}

func decodeField(fd protoreflect.FieldDescriptor, v protoreflect.Value) Value {
	switch {
	case fd.IsMap():
		m := v.Map()
		entries := make(MapValue, 0, m.Len())
		m.Range(func(k protoreflect.MapKey, mv protoreflect.Value) bool {
			entries = append(entries, MapEntry{
				Key:   decodeMapKey(fd.MapKey(), k),
				Value: decodeScalar(fd.MapValue(), mv),
			})
			return true
		})
		return entries
	case fd.IsList():
		list := v.List()
		out := make([]Value, 0, list.Len())
		for i := 0; i < list.Len(); i++ {
			out = append(out, decodeScalar(fd, list.Get(i)))
		}
		return out
	default:
		return decodeScalar(fd, v)
	}
}

func decodeMapKey(fd protoreflect.FieldDescriptor, k protoreflect.MapKey) any {
	switch fd.Kind() {
	case protoreflect.BoolKind:
		return k.Bool()
	case protoreflect.StringKind:
		return k.String()
	case protoreflect.Uint32Kind, protoreflect.Uint64Kind, protoreflect.Fixed32Kind, protoreflect.Fixed64Kind:
		return k.Uint()
	default:
		return k.Int()
	}
}

func decodeScalar(fd protoreflect.FieldDescriptor, v protoreflect.Value) Value {
	switch fd.Kind() {
	case protoreflect.BoolKind:
		return v.Bool()
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind,
		protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		return v.Int()
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind, protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		return v.Uint()
	case protoreflect.FloatKind:
		return v.Float()
	case protoreflect.DoubleKind:
		return v.Float()
	case protoreflect.StringKind:
		return v.String()
	case protoreflect.BytesKind:
		return append([]byte(nil), v.Bytes()...)
	case protoreflect.EnumKind:
		num := v.Enum()
		if ev := fd.Enum().Values().ByNumber(num); ev != nil {
			return string(ev.Name())
		}
		return int64(num)
	case protoreflect.MessageKind:
		return decodeMessage(v.Message().Interface().(*dynamicpb.Message))
	default:
		return nil
	}
}
