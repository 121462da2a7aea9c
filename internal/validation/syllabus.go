// Package validation checks user-submitted payloads before any write.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strconv"

	"studyhub/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("notblank", validators.NotBlank); err != nil {
		panic(err)
	}
	// A `label` tag names the field in messages.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if label := f.Tag.Get("label"); label != "" {
			return label
		}
		return f.Name
	})
	return v
}

// Struct validates the `validate` tags of v and reports the first failing
// field as a validation error.
func Struct(v any) error {
	fe, err := firstFieldError(validate.Struct(v))
	if fe == nil {
		return err
	}
	return models.NewValidationError(fieldMessage(fe))
}

func firstFieldError(err error) (validator.FieldError, error) {
	if err == nil {
		return nil, nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return nil, err
	}
	return verrs[0], nil
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "notblank":
		return fe.Field() + " is required"
	case "max":
		return fmt.Sprintf("%s too long (max %s characters)", fe.Field(), fe.Param())
	case "min":
		return fmt.Sprintf("%s must have at least %s entries", fe.Field(), fe.Param())
	default:
		return fe.Field() + " is invalid"
	}
}

var topicPath = regexp.MustCompile(`Topics\[(\d+)\](?:\.SubTopics\[(\d+)\])?`)

// ValidateSyllabus rejects the whole syllabus unless it has at least one
// topic, every topic has a non-blank title and at least one subtopic, and
// every subtopic has a non-blank title.
func ValidateSyllabus(in models.SyllabusInput) error {
	fe, err := firstFieldError(validate.Struct(in))
	if fe == nil {
		return err
	}
	return models.NewValidationError(syllabusMessage(in, fe))
}

// syllabusMessage names the offending topic or subtopic by position, read
// from the field namespace (e.g. SyllabusInput.Topics[1].SubTopics[0].Title).
func syllabusMessage(in models.SyllabusInput, fe validator.FieldError) string {
	m := topicPath.FindStringSubmatch(fe.Namespace())
	if m == nil {
		return "Syllabus must contain at least one topic"
	}
	ti, _ := strconv.Atoi(m[1])
	title := in.Topics[ti].Title

	switch {
	case m[2] != "":
		si, _ := strconv.Atoi(m[2])
		return fmt.Sprintf("Subtopic %d of topic %q must have a title", si+1, title)
	case fe.Field() == "SubTopics":
		return fmt.Sprintf("Topic %q must contain at least one subtopic", title)
	default:
		return fmt.Sprintf("Topic %d must have a title", ti+1)
	}
}
