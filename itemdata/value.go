// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package itemdata

import (
	"strconv"
	"time"
)

// Type is the type of a property, numbered as in the content repository API.
type Type int

// Property types.
const (
	TypeUndefined  Type = 0
	TypeString     Type = 1
	TypeBinary     Type = 2
	TypeLong       Type = 3
	TypeDouble     Type = 4
	TypeDate       Type = 5
	TypeBoolean    Type = 6
	TypeName       Type = 7
	TypePath       Type = 8
	TypeReference  Type = 9
	TypePermission Type = 100
)

// String returns the name of the type.
func (typ Type) String() string {
	switch typ {
	case TypeUndefined:
		return "Undefined"
	case TypeString:
		return "String"
	case TypeBinary:
		return "Binary"
	case TypeLong:
		return "Long"
	case TypeDouble:
		return "Double"
	case TypeDate:
		return "Date"
	case TypeBoolean:
		return "Boolean"
	case TypeName:
		return "Name"
	case TypePath:
		return "Path"
	case TypeReference:
		return "Reference"
	case TypePermission:
		return "Permission"
	default:
		return "Type(" + strconv.Itoa(int(typ)) + ")"
	}
}

// DateLayout is the text form of dates, with millisecond precision and the
// zone offset.
const DateLayout = "2006-01-02T15:04:05.000Z07:00"

// Value is a single property value. The set of implementations is closed:
// Binary, Boolean, Date, Double, Long, Name, Path, Permission, Reference and
// String.
type Value interface {
	// Type returns the property type of the value.
	Type() Type
	// String returns the canonical text form, which ParseValue accepts.
	String() string

	value()
}

type (
	// Binary is an opaque byte value.
	Binary []byte
	// Boolean is a boolean value.
	Boolean bool
	// Date is a point in time.
	Date time.Time
	// Double is a floating point value.
	Double float64
	// Long is an integer value.
	Long int64
	// Name is a qualified name value.
	Name QName
	// Path is a path value.
	Path QPath
	// Permission is an access control entry value.
	Permission AccessControlEntry
	// Reference is the identifier of a referenced node.
	Reference string
	// String is a text value.
	String string
)

func (Binary) value()     {}
func (Boolean) value()    {}
func (Date) value()       {}
func (Double) value()     {}
func (Long) value()       {}
func (Name) value()       {}
func (Path) value()       {}
func (Permission) value() {}
func (Reference) value()  {}
func (String) value()     {}

// Type implements Value.
func (Binary) Type() Type { return TypeBinary }

// Type implements Value.
func (Boolean) Type() Type { return TypeBoolean }

// Type implements Value.
func (Date) Type() Type { return TypeDate }

// Type implements Value.
func (Double) Type() Type { return TypeDouble }

// Type implements Value.
func (Long) Type() Type { return TypeLong }

// Type implements Value.
func (Name) Type() Type { return TypeName }

// Type implements Value.
func (Path) Type() Type { return TypePath }

// Type implements Value.
func (Permission) Type() Type { return TypePermission }

// Type implements Value.
func (Reference) Type() Type { return TypeReference }

// Type implements Value.
func (String) Type() Type { return TypeString }

func (v Binary) String() string     { return string(v) }
func (v Boolean) String() string    { return strconv.FormatBool(bool(v)) }
func (v Date) String() string       { return time.Time(v).Format(DateLayout) }
func (v Double) String() string     { return strconv.FormatFloat(float64(v), 'g', -1, 64) }
func (v Long) String() string       { return strconv.FormatInt(int64(v), 10) }
func (v Name) String() string       { return QName(v).String() }
func (v Path) String() string       { return QPath(v).String() }
func (v Permission) String() string { return AccessControlEntry(v).String() }
func (v Reference) String() string  { return string(v) }
func (v String) String() string     { return string(v) }

// Equal compares the instants of two dates.
func (v Date) Equal(other Date) bool { return time.Time(v).Equal(time.Time(other)) }

// NewDate truncates t to the precision of DateLayout.
func NewDate(t time.Time) Date { return Date(t.Truncate(time.Millisecond)) }

// ParseValue parses the text form of a value of type typ. Undefined is
// treated as binary.
func ParseValue(typ Type, text string) (Value, error) {
	switch typ {
	case TypeBinary, TypeUndefined:
		return Binary(text), nil
	case TypeBoolean:
		v, err := strconv.ParseBool(text)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		return Boolean(v), nil
	case TypeDate:
		v, err := time.Parse(DateLayout, text)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		return Date(v), nil
	case TypeDouble:
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		return Double(v), nil
	case TypeLong:
		v, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		return Long(v), nil
	case TypeName:
		v, err := ParseQName(text)
		if err != nil {
			return nil, err
		}
		return Name(v), nil
	case TypePath:
		v, err := ParseQPath(text)
		if err != nil {
			return nil, err
		}
		return Path(v), nil
	case TypePermission:
		v, err := ParseAccessControlEntry(text)
		if err != nil {
			return nil, err
		}
		return Permission(v), nil
	case TypeReference:
		return Reference(text), nil
	case TypeString:
		return String(text), nil
	default:
		return nil, Error.New("unknown property type %d", int(typ))
	}
}

// EncodeValue returns the bytes stored for v in an external value storage.
func EncodeValue(v Value) []byte {
	if b, ok := v.(Binary); ok {
		return []byte(b)
	}
	return []byte(v.String())
}

// DecodeValue is the inverse of EncodeValue.
func DecodeValue(typ Type, data []byte) (Value, error) {
	return ParseValue(typ, string(data))
}
