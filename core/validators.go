package core

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

const (
	alphaNumUnderTag  = "alphanum_"
	alphaNumUnderText = "only alphanumeric characters and underscores are allowed"

	requiredText = "this field is required"
)

var alphaNumUnderRegex = regexp.MustCompile(`^[\w\s]+$`)

// messages replacing the stock english ones
var translationOverrides = map[string]string{
	"required":      requiredText,
	"required_with": requiredText,
	"gtfield":       "must be after the start date",
}

// NewTranslator returns the english translator used for validation messages.
func NewTranslator() ut.Translator {
	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	return translator
}

// NewValidator returns a validator with the stock translations and the validators shared by every package.
func NewValidator(translator ut.Translator) *validator.Validate {
	validate := validator.New()
	InitValidators(validate, translator)
	return validate
}

// InitValidators registers the stock translations and the shared validators on validate.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// report JSON field names
	validate.RegisterTagNameFunc(jsonFieldName)

	RegisterValidator(validate, translator, alphaNumUnderTag, alphaNumUnderText, func(fl validator.FieldLevel) bool {
		return alphaNumUnderRegex.MatchString(fl.Field().String())
	})
	for tag, text := range translationOverrides {
		RegisterCustomTranslation(validate, translator, tag, text, true)
	}
}

func jsonFieldName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	return name
}

// RegisterValidator registers fn under tag, failing fields being reported with text.
func RegisterValidator(validate *validator.Validate, translator ut.Translator, tag, text string, fn validator.Func) {
	_ = validate.RegisterValidation(tag, fn)
	RegisterCustomTranslation(validate, translator, tag, text)
}

// RegisterCustomTranslation registers the error text of tag; override replaces an existing text.
func RegisterCustomTranslation(validate *validator.Validate, translator ut.Translator, tag, text string, override ...bool) {
	ovrd := len(override) > 0 && override[0]
	_ = validate.RegisterTranslation(
		tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, ovrd) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

// OneOf returns a validator accepting string fields holding one of values.
func OneOf(values []string) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return StringInSlice(fl.Field().String(), values)
	}
}
