package course

import (
	"regexp"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/academia/core"
)

var (
	courseCodeTag   = "coursecode"
	courseCodeText  = "only uppercase letters, digits, dashes and underscores are allowed"
	courseCodeRegex = regexp.MustCompile(`^[A-Z0-9][A-Z0-9_-]*$`)
)

// InitValidators registers the course validators & their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	core.RegisterValidator(validate, translator, courseCodeTag, courseCodeText, courseCodeValidation)
}

func courseCodeValidation(fl validator.FieldLevel) bool {
	return courseCodeRegex.MatchString(fl.Field().String())
}

func upper(s string) string {
	return strings.ToUpper(s)
}
