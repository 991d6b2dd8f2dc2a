package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	// notblank: Zeichenketten aus reinem Leerraum gelten als leer
	validate.RegisterValidation("notblank", validators.NotBlank)
}

// FieldError beschreibt eine verletzte Regel an einem Feld
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// Error sammelt alle verletzten Regeln einer Struktur
type Error struct {
	Fields []FieldError `json:"fields"`
}

func (e *Error) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = fmt.Sprintf("%s verletzt %s", f.Field, f.Rule)
	}
	return strings.Join(parts, ", ")
}

// Struct prüft die validate-Tags von data. Liefert nil oder *Error.
func Struct(data interface{}) error {
	err := validate.Struct(data)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &Error{}
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		out.Fields = append(out.Fields, FieldError{Field: fe.Field(), Rule: rule})
	}
	return out
}
