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

var (
	// custom validation tags & texts
	usernameTag   = "username"
	usernameText  = "only letters, digits and @/./+/-/_ characters are allowed"
	usernameRegex = regexp.MustCompile(`^[\w.@+-]+$`)

	notBlankTag  = "notblank"
	notBlankText = "this field may not be blank"

	requiredTag     = "required"
	requiredWithTag = "required_with"
	requiredText    = "this field is required"
)

// NewTranslator returns the english translator used for validation messages.
func NewTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

// InitValidators instantiates the validator for use.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// Use JSON tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// register custom validators
	_ = validate.RegisterValidation(usernameTag, usernameValidation)
	RegisterCustomTranslation(validate, translator, usernameTag, usernameText)

	_ = validate.RegisterValidation(notBlankTag, notBlankValidation)
	RegisterCustomTranslation(validate, translator, notBlankTag, notBlankText)

	RegisterCustomTranslation(validate, translator, requiredTag, requiredText, true)
	RegisterCustomTranslation(validate, translator, requiredWithTag, requiredText, true)
}

// RegisterCustomTranslation registers a custom translation for the specified validation tag.
func RegisterCustomTranslation(validate *validator.Validate, translator ut.Translator, tag, text string, override ...bool) {
	var ovrd bool
	if len(override) > 0 {
		ovrd = override[0]
	}
	_ = validate.RegisterTranslation(
		tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, ovrd) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

// FieldErrors converts validation errors into a {field: [messages]} map.
// Errors that carry no field are keyed under "non_field_errors".
func FieldErrors(err error, translator ut.Translator) map[string][]string {
	fldErrs := make(map[string][]string)
	switch e := err.(type) {
	case validator.ValidationErrors:
		for _, vErr := range e {
			fldErrs[vErr.Field()] = append(fldErrs[vErr.Field()], vErr.Translate(translator))
		}
	case *ValidationError:
		if len(e.Fields) == 0 {
			fldErrs["non_field_errors"] = []string{e.Error()}
		}
		for _, fErr := range e.Fields {
			fldErrs[fErr.Field] = append(fldErrs[fErr.Field], fErr.Error)
		}
	case *ConstraintViolation:
		fldErrs[e.Field] = []string{e.Reason}
	default:
		fldErrs["non_field_errors"] = []string{err.Error()}
	}
	return fldErrs
}

// Custom Global Validators

// usernameValidation only allows alphanumeric characters and @/./+/-/_
func usernameValidation(fl validator.FieldLevel) bool {
	return usernameRegex.MatchString(fl.Field().String())
}

func notBlankValidation(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}
