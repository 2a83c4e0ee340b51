package handler

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

var (
	validatorOnce sync.Once
	validate      *validator.Validate
)

// field.tag -> message shown to clients
var fieldMessages = map[string]string{
	"number.required":            "Account number is required.",
	"number.len":                 "Account number must have exactly 6 characters.",
	"balance.required":           "Account balance is required.",
	"balance.nonnegative_amount": "The account balance cannot be negative.",
	"fromAccount.required":       "Account number is required.",
	"toAccount.required":         "Account number is required.",
	"amount.required":            "Transaction amount is required.",
	"amount.positive_amount":     "The transaction amount cannot be negative or zero.",
	"passwordUser.required":      "Owner password is required.",
	"email.required":             "A valid email is required.",
	"email.email":                "A valid email is required.",
	"password.required":          "Password is required.",
	"role.oneof":                 "Role must be USER or ADMIN.",
}

// ValidationError aggregates every field violation of one request body.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return "Validation errors found"
}

func getValidator() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		_ = v.RegisterValidation("positive_amount", positiveAmount)
		_ = v.RegisterValidation("nonnegative_amount", nonNegativeAmount)
		validate = v
	})
	return validate
}

func parseDecimalField(fl validator.FieldLevel) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(fl.Field().String())
	return d, err == nil
}

func positiveAmount(fl validator.FieldLevel) bool {
	d, ok := parseDecimalField(fl)
	return ok && d.IsPositive()
}

func nonNegativeAmount(fl validator.FieldLevel) bool {
	d, ok := parseDecimalField(fl)
	return ok && !d.IsNegative()
}

// parseBodyAndValidate decodes the JSON body into dst and validates it.
func parseBodyAndValidate(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	return validateStruct(dst)
}

func validateStruct(s any) error {
	err := getValidator().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	out := &ValidationError{Errors: make([]string, 0, len(fieldErrs))}
	for _, fe := range fieldErrs {
		out.Errors = append(out.Errors, fieldMessage(fe))
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	if msg, ok := fieldMessages[fe.Field()+"."+fe.Tag()]; ok {
		return msg
	}
	return fmt.Sprintf("%s is invalid.", fe.Field())
}
