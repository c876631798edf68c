package utils

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	panRegex    = regexp.MustCompile(`^[A-Z]{5}[0-9]{4}[A-Z]$`)
	mobileRegex = regexp.MustCompile(`^[6-9][0-9]{9}$`)
	gstinRegex  = regexp.MustCompile(`^[0-9]{2}[A-Z]{5}[0-9]{4}[A-Z][1-9A-Z]Z[0-9A-Z]$`)
	controlRune = regexp.MustCompile(`[\x00-\x1f\x7f]`)
)

// NewValidator returns a validator with the excise field rules registered:
// pan, mobile and gstin
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("pan", matchString(panRegex))
	_ = v.RegisterValidation("mobile", matchString(mobileRegex))
	_ = v.RegisterValidation("gstin", matchString(gstinRegex))
	return v
}

func matchString(re *regexp.Regexp) validator.Func {
	return func(fl validator.FieldLevel) bool {
		s, ok := fl.Field().Interface().(string)
		return ok && re.MatchString(s)
	}
}

// ValidateFields checks each value against its rule (validator tag syntax).
// Values without a rule are accepted. The result maps field name to a
// message and is empty when everything passed.
func ValidateFields(v *validator.Validate, values map[string]any, rules map[string]string) map[string]string {
	problems := map[string]string{}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, field := range keys {
		rule, ok := rules[field]
		if !ok || rule == "" {
			continue
		}
		if msg := checkField(v, values[field], rule); msg != "" {
			problems[field] = msg
		}
	}
	return problems
}

const invalidType = "invalid type"

// sizeTags compare numbers or lengths and panic on other kinds
var sizeTags = map[string]bool{
	"min": true, "max": true, "len": true,
	"gt": true, "gte": true, "lt": true, "lte": true,
}

func checkField(v *validator.Validate, value any, rule string) (msg string) {
	defer func() {
		if r := recover(); r != nil {
			msg = invalidType
		}
	}()
	if !fitsRule(value, rule) {
		return invalidType
	}
	if err := v.Var(value, rule); err != nil {
		return describe(err)
	}
	return ""
}

// fitsRule reports whether value is a scalar the rule can be applied to.
// Nil is left to the rule itself.
func fitsRule(value any, rule string) bool {
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Invalid, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	case reflect.Bool:
		for _, part := range strings.Split(rule, ",") {
			tag, _, _ := strings.Cut(part, "=")
			if sizeTags[tag] {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}

	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("failed %s=%s", fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("failed %s", fe.Tag()))
		}
	}
	return strings.Join(parts, ", ")
}

// SanitizeString removes control characters from free text such as remarks
func SanitizeString(s string) string {
	return strings.TrimSpace(controlRune.ReplaceAllString(s, ""))
}
