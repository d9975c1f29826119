package wire

import (
	"fmt"

	"github.com/jhump/protoreflect/desc/builder"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
)

// ValueKind names one of the scalar wire kinds a field can carry.
type ValueKind int

const (
	KindBool ValueKind = iota
	KindInt32
	KindInt64
	KindSint32
	KindSint64
	KindUint32
	KindUint64
	KindFixed32
	KindFixed64
	KindSfixed32
	KindSfixed64
	KindFloat
	KindDouble
	KindString
	KindBytes
	KindEnum
	KindMessage
)

func (k ValueKind) protoType() descriptorpb.FieldDescriptorProto_Type {
	switch k {
	case KindBool:
		return descriptorpb.FieldDescriptorProto_TYPE_BOOL
	case KindInt32:
		return descriptorpb.FieldDescriptorProto_TYPE_INT32
	case KindInt64:
		return descriptorpb.FieldDescriptorProto_TYPE_INT64
	case KindSint32:
		return descriptorpb.FieldDescriptorProto_TYPE_SINT32
	case KindSint64:
		return descriptorpb.FieldDescriptorProto_TYPE_SINT64
	case KindUint32:
		return descriptorpb.FieldDescriptorProto_TYPE_UINT32
	case KindUint64:
		return descriptorpb.FieldDescriptorProto_TYPE_UINT64
	case KindFixed32:
		return descriptorpb.FieldDescriptorProto_TYPE_FIXED32
	case KindFixed64:
		return descriptorpb.FieldDescriptorProto_TYPE_FIXED64
	case KindSfixed32:
		return descriptorpb.FieldDescriptorProto_TYPE_SFIXED32
	case KindSfixed64:
		return descriptorpb.FieldDescriptorProto_TYPE_SFIXED64
	case KindFloat:
		return descriptorpb.FieldDescriptorProto_TYPE_FLOAT
	case KindDouble:
		return descriptorpb.FieldDescriptorProto_TYPE_DOUBLE
	case KindString:
		return descriptorpb.FieldDescriptorProto_TYPE_STRING
	case KindBytes:
		return descriptorpb.FieldDescriptorProto_TYPE_BYTES
	default:
		return descriptorpb.FieldDescriptorProto_TYPE_INT64
	}
}

// shapeTag distinguishes the three field shapes §4.F defines.
type shapeTag int

const (
	shapeScalar shapeTag = iota
	shapeList
	shapeMap
)

// FieldShape is the shape of one field: a bare scalar, a repeated list of
// scalars, or a map from a scalar key kind to a scalar value kind.
type FieldShape struct {
	tag      shapeTag
	Kind     ValueKind // Scalar, List
	KeyKind  ValueKind // Map
	ValKind  ValueKind // Map
	EnumName string    // set when Kind/ValKind is KindEnum
	MsgName  string    // set when Kind/ValKind is KindMessage
}

// Scalar describes a single scalar (or enum/message) field.
func Scalar(kind ValueKind) FieldShape { return FieldShape{tag: shapeScalar, Kind: kind} }

// ScalarEnum describes a single field carrying an enum named enumName.
func ScalarEnum(enumName string) FieldShape {
	return FieldShape{tag: shapeScalar, Kind: KindEnum, EnumName: enumName}
}

// ScalarMessage describes a single field carrying a submessage named msgName.
func ScalarMessage(msgName string) FieldShape {
	return FieldShape{tag: shapeScalar, Kind: KindMessage, MsgName: msgName}
}

// List describes a repeated scalar field.
func List(kind ValueKind) FieldShape { return FieldShape{tag: shapeList, Kind: kind} }

// Map describes a map field from keyKind to valKind. keyKind must be one of
// the integer or string kinds (matching §4.F's Map{key_kind, value_kind}).
// Map sets neither EnumName nor MsgName, so an enum or message valKind
// names no type unless those fields are set on the returned shape.
func Map(keyKind, valKind ValueKind) FieldShape {
	return FieldShape{tag: shapeMap, KeyKind: keyKind, ValKind: valKind}
}

// FieldSpec is one field of a MessageSpec: its wire number, name, and shape.
type FieldSpec struct {
	Number int32
	Name   string
	Shape  FieldShape
}

// MessageSpec is the abstract schema for one message type: a name and an
// ordered list of fields. Submessage and enum fields reference other
// specs/enums by name, resolved against the Schema they're built within.
type MessageSpec struct {
	Name   string
	Fields []FieldSpec
}

// EnumSpec is the abstract schema for one enum type: a name and its
// symbolic value table.
type EnumSpec struct {
	Name   string
	Values map[string]int32
}

// Schema is a closed set of message and enum specs: every MsgName/EnumName
// referenced by a field in any of its Messages must be defined in the same
// Schema.
type Schema struct {
	Messages []MessageSpec
	Enums    []EnumSpec
}

// descriptorSet is the built, reflective form of a Schema: real
// protoreflect descriptors usable with dynamicpb.
type descriptorSet struct {
	messages map[string]protoreflect.MessageDescriptor
	enums    map[string]protoreflect.EnumDescriptor
}

// BuildDescriptors compiles schema into a reflective descriptor set. It is
// the runtime "schema compiler" §4.F's design note calls for: no generated
// .proto code is required, only the abstract Scalar/List/Map shapes.
func BuildDescriptors(schema Schema) (*descriptorSet, error) {
	enumBuilders := make(map[string]*builder.EnumBuilder, len(schema.Enums))
	for _, e := range schema.Enums {
		eb := builder.NewEnum(e.Name)
		for name, num := range e.Values {
			if err := eb.TryAddValue(builder.NewEnumValue(name).SetNumber(num)); err != nil {
				return nil, fmt.Errorf("wire: enum %s value %s: %w", e.Name, name, err)
			}
		}
		enumBuilders[e.Name] = eb
	}

	msgBuilders := make(map[string]*builder.MessageBuilder, len(schema.Messages))
	for _, m := range schema.Messages {
		msgBuilders[m.Name] = builder.NewMessage(m.Name)
	}

	for _, m := range schema.Messages {
		mb := msgBuilders[m.Name]
		for _, f := range m.Fields {
			fb, err := buildField(f, msgBuilders, enumBuilders)
			if err != nil {
				return nil, fmt.Errorf("wire: message %s field %s: %w", m.Name, f.Name, err)
			}
			if err := mb.TryAddField(fb); err != nil {
				return nil, fmt.Errorf("wire: message %s field %s: %w", m.Name, f.Name, err)
			}
		}
	}

	out := &descriptorSet{
		messages: make(map[string]protoreflect.MessageDescriptor, len(msgBuilders)),
		enums:    make(map[string]protoreflect.EnumDescriptor, len(enumBuilders)),
	}
	for name, mb := range msgBuilders {
		md, err := mb.Build()
		if err != nil {
			return nil, fmt.Errorf("wire: building message %s: %w", name, err)
		}
		out.messages[name] = md.UnwrapMessage()
	}
	for name, eb := range enumBuilders {
		ed, err := eb.Build()
		if err != nil {
			return nil, fmt.Errorf("wire: building enum %s: %w", name, err)
		}
		out.enums[name] = ed.UnwrapEnum()
	}
	return out, nil
}

func buildField(f FieldSpec, msgBuilders map[string]*builder.MessageBuilder, enumBuilders map[string]*builder.EnumBuilder) (*builder.FieldBuilder, error) {
	valType, err := fieldType(f.Shape, msgBuilders, enumBuilders)
	if err != nil {
		return nil, err
	}

	switch f.Shape.tag {
	case shapeMap:
		keyType, err := fieldType(FieldShape{tag: shapeScalar, Kind: f.Shape.KeyKind}, msgBuilders, enumBuilders)
		if err != nil {
			return nil, err
		}
		fb := builder.NewMapField(f.Name, keyType, valType)
		return fb.SetNumber(f.Number), nil
	case shapeList:
		// Unpacked explicitly: the wire contract (§4.F) is that repeated
		// scalars are emitted as one tag per value, not relying on the
		// builder's proto2/proto3 default for SetPacked.
		fb := builder.NewField(f.Name, valType).SetRepeated().SetPacked(false)
		return fb.SetNumber(f.Number), nil
	default:
		fb := builder.NewField(f.Name, valType)
		return fb.SetNumber(f.Number), nil
	}
}

func fieldType(shape FieldShape, msgBuilders map[string]*builder.MessageBuilder, enumBuilders map[string]*builder.EnumBuilder) (*builder.FieldType, error) {
	kind := shape.Kind
	if shape.tag == shapeMap {
		kind = shape.ValKind
	}

	switch kind {
	case KindMessage:
		name := shape.MsgName
		mb, ok := msgBuilders[name]
		if !ok {
			return nil, fmt.Errorf("unknown message %q", name)
		}
		return builder.FieldTypeMessage(mb), nil
	case KindEnum:
		name := shape.EnumName
		eb, ok := enumBuilders[name]
		if !ok {
			return nil, fmt.Errorf("unknown enum %q", name)
		}
		return builder.FieldTypeEnum(eb), nil
	default:
		return builder.FieldTypeScalar(kind.protoType()), nil
	}
}
