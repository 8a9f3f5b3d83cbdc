package fieldmap

import "strings"

// ValueType tags every mapped field so coercion can dispatch on it.
type ValueType string

const (
	TypeString       ValueType = "string"
	TypeLongText     ValueType = "long_text"
	TypeSingleOption ValueType = "single_option"
	TypeDate         ValueType = "date"
	TypeInteger      ValueType = "integer"
	TypeDecimal      ValueType = "decimal"
	TypeBoolean      ValueType = "boolean"
)

// Valid reports whether t is one of the supported value types.
func (t ValueType) Valid() bool {
	switch t {
	case TypeString, TypeLongText, TypeSingleOption, TypeDate, TypeInteger, TypeDecimal, TypeBoolean:
		return true
	}
	return false
}

// FromRemoteDataType maps the CRM's field dataType to a value type. Unknown
// data types fall back to string.
func FromRemoteDataType(dataType string) ValueType {
	switch strings.ToUpper(dataType) {
	case "LARGE_TEXT", "TEXTBOX_LIST":
		return TypeLongText
	case "SINGLE_OPTIONS", "RADIO", "DROPDOWN":
		return TypeSingleOption
	case "DATE":
		return TypeDate
	case "NUMERICAL":
		return TypeDecimal
	case "MONETORY", "MONETARY":
		return TypeDecimal
	case "CHECKBOX":
		return TypeBoolean
	}
	return TypeString
}

// Compatible reports whether a catalog type can be stored from a remote field
// declared with dataType. Integers are declared NUMERICAL remotely.
func (t ValueType) Compatible(dataType string) bool {
	remote := FromRemoteDataType(dataType)
	if remote == t {
		return true
	}
	if t == TypeInteger && remote == TypeDecimal {
		return true
	}
	if (t == TypeString || t == TypeLongText) && (remote == TypeString || remote == TypeLongText) {
		return true
	}
	return false
}
