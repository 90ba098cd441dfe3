package notice

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/academia/core"
)

var (
	noticeCategoryTag  = "noticecategory"
	noticeCategoryText = "invalid notice category"
)

// InitValidators registers the notice validators & their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	core.RegisterValidator(validate, translator, noticeCategoryTag, noticeCategoryText, core.OneOf(Categories))
}
