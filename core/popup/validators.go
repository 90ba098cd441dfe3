package popup

import (
	"net/url"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/academia/core"
)

var (
	httpURLTag  = "httpurl"
	httpURLText = "must be a valid http(s) URL"
)

// InitValidators registers the popup validators & their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	core.RegisterValidator(validate, translator, httpURLTag, httpURLText, httpURLValidation)
	validate.RegisterStructValidation(updatePopupStructValidation, UpdatePopup{})
}

func httpURLValidation(fl validator.FieldLevel) bool {
	return isHTTPURL(fl.Field().String())
}

func isHTTPURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// updatePopupStructValidation checks the optional UpdatePopup links, which may point at an empty value.
func updatePopupStructValidation(sl validator.StructLevel) {
	up, ok := sl.Current().Interface().(UpdatePopup)
	if !ok {
		return
	}
	if up.ImageFileID != nil && *up.ImageFileID != "" {
		if err := sl.Validator().Var(*up.ImageFileID, "uuid"); err != nil {
			sl.ReportError(*up.ImageFileID, "image_file_id", "ImageFileID", "uuid", "")
		}
	}
	if up.LinkURL != nil && *up.LinkURL != "" && !isHTTPURL(*up.LinkURL) {
		sl.ReportError(*up.LinkURL, "link_url", "LinkURL", httpURLTag, "")
	}
}
