package validator

import (
	"errors"
	"fmt"
	"net/mail"
	"reflect"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	ErrRequired      = errors.New("is required")
	ErrExpectStruct  = errors.New("expect struct")
	ErrExpectString  = errors.New("expect string")
	ErrExpectUInt64  = errors.New("expect uint64")
	ErrExpectUInt32  = errors.New("expect uint32")
	ErrExpectSlice   = errors.New("expect slice")
	ErrExpectStrMap  = errors.New("expect map of strings")
	ErrInvalidFormat = errors.New("invalid format")
	ErrInvalidEmail  = errors.New("invalid email address")
)

type Validator interface {
	Validate(value interface{}) error
}

type Form struct {
	fields map[string]Validator
}

// MustForm builds a struct validator keyed by json tag, or by field name for embedded structs.
func MustForm(fields map[string]Validator) *Form {
	for k, v := range fields {
		if v == nil {
			panic(fmt.Sprintf("validator of field %s is nil", k))
		}
	}
	return &Form{fields: fields}
}

func (f *Form) Validate(value interface{}) error {
	v := reflect.ValueOf(value)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return ErrExpectStruct
		}
		v = v.Elem()
	}

	if v.Kind() != reflect.Struct {
		return ErrExpectStruct
	}

	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		key := fieldKey(field)
		validator, ok := f.fields[key]
		if !ok {
			continue
		}

		fv := v.Field(i)
		if field.Anonymous && fv.Kind() == reflect.Struct && fv.CanAddr() {
			fv = fv.Addr()
		}

		if err := validator.Validate(fv.Interface()); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}

	return nil
}

func fieldKey(field reflect.StructField) string {
	if field.Anonymous {
		return field.Name
	}

	for _, tag := range []string{"json", "schema"} {
		if name := strings.Split(field.Tag.Get(tag), ",")[0]; name != "" && name != "-" {
			return name
		}
	}

	return field.Name
}

type StringFunc func(s string) error

type String struct {
	Optional   bool
	MinLen     int
	MaxLen     int
	Regex      *regexp.Regexp
	Validators []StringFunc
}

func (v *String) Validate(value interface{}) error {
	var s string
	switch val := value.(type) {
	case *string:
		if val == nil {
			if v.Optional {
				return nil
			}
			return ErrRequired
		}
		s = *val
	case string:
		s = val
	default:
		return ErrExpectString
	}

	if s == "" && v.Optional {
		return nil
	}

	n := utf8.RuneCountInString(s)
	if n < v.MinLen {
		if n == 0 {
			return ErrRequired
		}
		return fmt.Errorf("min length is %d", v.MinLen)
	}

	if v.MaxLen > 0 && n > v.MaxLen {
		return fmt.Errorf("max length is %d", v.MaxLen)
	}

	if v.Regex != nil && !v.Regex.MatchString(s) {
		return ErrInvalidFormat
	}

	for _, fn := range v.Validators {
		if err := fn(s); err != nil {
			return err
		}
	}

	return nil
}

type UInt64 struct {
	Optional bool
	Min      uint64
	Max      uint64
}

func (v *UInt64) Validate(value interface{}) error {
	var i uint64
	switch val := value.(type) {
	case *uint64:
		if val == nil {
			if v.Optional {
				return nil
			}
			return ErrRequired
		}
		i = *val
	case uint64:
		i = val
	default:
		return ErrExpectUInt64
	}

	if i < v.Min {
		return fmt.Errorf("min value is %d", v.Min)
	}

	if v.Max > 0 && i > v.Max {
		return fmt.Errorf("max value is %d", v.Max)
	}

	return nil
}

type UInt32 struct {
	Optional bool
	Min      uint32
	Max      uint32
}

func (v *UInt32) Validate(value interface{}) error {
	var i uint32
	switch val := value.(type) {
	case *uint32:
		if val == nil {
			if v.Optional {
				return nil
			}
			return ErrRequired
		}
		i = *val
	case uint32:
		i = val
	default:
		return ErrExpectUInt32
	}

	if i < v.Min {
		return fmt.Errorf("min value is %d", v.Min)
	}

	if v.Max > 0 && i > v.Max {
		return fmt.Errorf("max value is %d", v.Max)
	}

	return nil
}

type Slice struct {
	Optional  bool
	MinLen    int
	MaxLen    int
	Validator Validator
}

func (v *Slice) Validate(value interface{}) error {
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice {
		return ErrExpectSlice
	}

	if rv.Len() == 0 && v.Optional {
		return nil
	}

	if rv.Len() < v.MinLen {
		return fmt.Errorf("min length is %d", v.MinLen)
	}

	if v.MaxLen > 0 && rv.Len() > v.MaxLen {
		return fmt.Errorf("max length is %d", v.MaxLen)
	}

	if v.Validator == nil {
		return nil
	}

	for i := 0; i < rv.Len(); i++ {
		if err := v.Validator.Validate(rv.Index(i).Interface()); err != nil {
			return fmt.Errorf("index %d: %w", i, err)
		}
	}

	return nil
}

type StringMap struct {
	Optional bool
	MaxLen   int
	KeyRegex *regexp.Regexp
}

func (v *StringMap) Validate(value interface{}) error {
	m, ok := value.(map[string]string)
	if !ok {
		return ErrExpectStrMap
	}

	if len(m) == 0 {
		if v.Optional {
			return nil
		}
		return ErrRequired
	}

	if v.MaxLen > 0 && len(m) > v.MaxLen {
		return fmt.Errorf("max length is %d", v.MaxLen)
	}

	if v.KeyRegex != nil {
		for k := range m {
			if !v.KeyRegex.MatchString(k) {
				return fmt.Errorf("invalid key %q", k)
			}
		}
	}

	return nil
}

func IsEmail(s string) error {
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return ErrInvalidEmail
	}
	return nil
}
