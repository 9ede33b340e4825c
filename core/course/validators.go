package course

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/academia/core"
)

var (
	lessonTypeTag  = "lesson_type"
	lessonTypeText = "must be one of: text, video, quiz"
)

func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(lessonTypeTag, lessonTypeValidation)
	core.RegisterCustomTranslation(validate, translator, lessonTypeTag, lessonTypeText)
}

func lessonTypeValidation(fl validator.FieldLevel) bool {
	typ := fl.Field().String()
	for _, t := range LessonTypes {
		if typ == t {
			return true
		}
	}
	return false
}
