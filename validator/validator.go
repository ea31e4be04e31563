package validator

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/core/felt"
	"github.com/go-playground/validator/v10"
)

var (
	once sync.Once
	v    *validator.Validate
)

// validateTxVersion accepts the transaction versions the node executes: v1 invokes and
// account deployments, v2 declares.
func validateTxVersion(fl validator.FieldLevel) bool {
	switch version := fl.Field().Interface().(type) {
	case string:
		return version == "0x1" || version == "0x2"
	default:
		return false
	}
}

// validateShortString accepts strings that fit a felt.
func validateShortString(fl validator.FieldLevel) bool {
	s, ok := fl.Field().Interface().(string)
	return ok && len(s) <= felt.Bytes-1
}

// Validator returns a singleton that can be used to validate various objects
func Validator() *validator.Validate {
	once.Do(func() {
		v = validator.New()

		if err := v.RegisterValidation("tx_version", validateTxVersion); err != nil {
			panic("failed to register validation: " + err.Error())
		}
		if err := v.RegisterValidation("short_string", validateShortString); err != nil {
			panic("failed to register validation: " + err.Error())
		}

		// Register these types to use their string representation for validation
		// purposes
		v.RegisterCustomTypeFunc(func(field reflect.Value) any {
			switch f := field.Interface().(type) {
			case felt.Felt:
				return f.String()
			case *felt.Felt:
				return f.String()
			}
			panic("not a felt")
		}, felt.Felt{}, &felt.Felt{})
		v.RegisterCustomTypeFunc(func(field reflect.Value) any {
			if k, ok := field.Interface().(core.ClassKind); ok {
				return k.String()
			}
			panic("not a core.ClassKind")
		}, core.ClassKind(0))
	})
	return v
}

// RegisterStringTypes makes the validator compare values of the given types by their
// string form, so tags such as required_if can name them. It must be called before the
// validator is shared between goroutines.
func RegisterStringTypes(types ...fmt.Stringer) {
	if len(types) == 0 {
		return
	}
	values := make([]any, len(types))
	for i, t := range types {
		values[i] = t
	}
	Validator().RegisterCustomTypeFunc(func(field reflect.Value) any {
		if s, ok := field.Interface().(fmt.Stringer); ok {
			return s.String()
		}
		panic("not a fmt.Stringer")
	}, values...)
}
