package permission

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/academia/core"
)

var (
	resourceTag  = "permresource"
	resourceText = "invalid resource"

	actionTag  = "permaction"
	actionText = "invalid action"
)

// InitValidators registers the permission validators & their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	core.RegisterValidator(validate, translator, resourceTag, resourceText, core.OneOf(Resources))
	core.RegisterValidator(validate, translator, actionTag, actionText, core.OneOf(Actions))
}
