package lms

import (
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

var (
	validate   = validator.New()
	translator ut.Translator

	endDateTag  = "enddate"
	endDateText = "end_date must not be before start_date"
)

func init() {
	english := en.New()
	translator, _ = ut.New(english, english).GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// Use JSON tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	validate.RegisterStructValidation(moduleStructValidation, NewModule{})
	_ = validate.RegisterTranslation(endDateTag, translator,
		func(t ut.Translator) error { return t.Add(endDateTag, endDateText, false) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(endDateTag)
			return s
		},
	)
}

// NewDepartment is the input for CreateDepartment.
type NewDepartment struct {
	Name      string `json:"name" validate:"required,max=200"`
	ParentID  *uint  `json:"parent_id"`
	ManagerID *uint  `json:"manager_id"`
}

// NewUser is the input for CreateUser.
type NewUser struct {
	Name         string `json:"name" validate:"required,max=200"`
	Email        string `json:"email" validate:"required,email"`
	DepartmentID *uint  `json:"department_id"`
}

// NewModule is the input for CreateModule.
type NewModule struct {
	Title                string     `json:"title" validate:"required,max=255"`
	PassingGrade         float64    `json:"passing_grade" validate:"gte=0,lte=100"`
	PrerequisiteModuleID *uint      `json:"prerequisite_module_id"`
	ComplianceRequired   bool       `json:"compliance_required"`
	StartDate            *time.Time `json:"start_date"`
	EndDate              *time.Time `json:"end_date"`
}

// NewRole is the input for CreateRole.
type NewRole struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=500"`
}

// NewPermission is the input for CreatePermission.
type NewPermission struct {
	Name        string `json:"name" validate:"required,max=150"`
	Description string `json:"description" validate:"max=500"`
}

// FieldError is used to indicate an error with a specific input field.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

// ValidationError carries per-field messages and unwraps to ErrInvalidInput.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Error
	}
	return ErrInvalidInput.Error() + ": " + strings.Join(msgs, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// Validate checks a struct against its validate tags.
func Validate(v interface{}) error {
	return translate(validate.Struct(v))
}

// validateVar checks a single value and reports failures under field.
func validateVar(field string, value interface{}, tag string) error {
	if err := validate.Var(value, tag); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]FieldError, len(verrs))
			for i, fe := range verrs {
				fields[i] = FieldError{Field: field, Error: field + strings.TrimPrefix(fe.Translate(translator), fe.Field())}
			}
			return &ValidationError{Fields: fields}
		}
		return err
	}
	return nil
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make([]FieldError, len(verrs))
	for i, fe := range verrs {
		fields[i] = FieldError{Field: fe.Field(), Error: fe.Translate(translator)}
	}
	return &ValidationError{Fields: fields}
}

// moduleStructValidation rejects a deadline that precedes the start date.
func moduleStructValidation(sl validator.StructLevel) {
	m := sl.Current().Interface().(NewModule)
	if m.StartDate != nil && m.EndDate != nil && m.EndDate.Before(*m.StartDate) {
		sl.ReportError(m.EndDate, "end_date", "EndDate", endDateTag, "")
	}
}
