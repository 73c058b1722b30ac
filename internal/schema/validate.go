package schema

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/pitabwire/uibind/model"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// DefaultModelMessage is reported under the _model key when a model-level
// validator fails without a message.
const DefaultModelMessage = "Invalid data"

// validateRecord applies the field validators in schema order, stopping at
// the first failure of each field, then the model validators until the
// first failure.
func validateRecord(fields []model.FieldSpec, validators []model.ModelValidator, record model.Record) model.ValidationErrors {
	errs := model.ValidationErrors{}
	for _, f := range fields {
		value := record[f.Name]
		for _, v := range f.Validators {
			if msg, failed := checkField(f.Name, v, value, record); failed {
				errs[f.Name] = msg
				break
			}
		}
	}
	for _, mv := range validators {
		if mv.Fn == nil || mv.Fn(record) {
			continue
		}
		msg := mv.Message
		if msg == "" {
			msg = DefaultModelMessage
		}
		errs[model.ModelErrorKey] = msg
		break
	}
	return errs
}

// checkField reports whether value fails v, and the message to show.
// Validators of unknown kinds pass.
func checkField(name string, v model.ValidatorSpec, value any, record model.Record) (string, bool) {
	message := func(format string, args ...any) string {
		if v.Message != "" {
			return v.Message
		}
		return fmt.Sprintf(format, args...)
	}

	switch v.Kind {
	case model.ValidateRequired:
		if isBlank(value) {
			return message("The field %s is required", name), true
		}
	case model.ValidateEmail:
		if model.Truthy(value) && !emailPattern.MatchString(fmt.Sprint(value)) {
			return message("The field %s must be a valid e-mail", name), true
		}
	case model.ValidateLength:
		if n, ok := length(value); model.Truthy(value) && ok && n != v.Len {
			return message("The field %s must be exactly %d characters long", name, v.Len), true
		}
	case model.ValidateMin:
		if n, ok := number(value); ok && v.Min != nil && n < *v.Min {
			return message("The field %s must be greater than or equal to %s", name, formatBound(*v.Min)), true
		}
	case model.ValidateMax:
		if n, ok := number(value); ok && v.Max != nil && n > *v.Max {
			return message("The field %s must be less than or equal to %s", name, formatBound(*v.Max)), true
		}
	case model.ValidateCustom:
		if v.Fn != nil && !v.Fn(value, record) {
			return message("The field %s is invalid", name), true
		}
	}
	return "", false
}

func isBlank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

// length measures strings in runes and slices by element count.
func length(v any) (int, bool) {
	if s, ok := v.(string); ok {
		return utf8.RuneCountInString(s), true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len(), true
	}
	return 0, false
}

// number reads numeric values and numeric strings, as submitted by form
// inputs. Anything else is not bounded.
func number(v any) (float64, bool) {
	if f, ok := model.ToFloat(v); ok {
		return f, true
	}
	if s, ok := v.(string); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		return f, err == nil
	}
	return 0, false
}

func formatBound(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
