package validation

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strconv"

	"github.com/openloop/accounts/internal/repository"
)

// Rule checks a single field value against the rule's arguments.
// Absent values always yield a skipped verdict so that required-ness
// stays the job of a separate rule.
type Rule func(field string, value any, args []string) (Verdict, error)

type ruleEntry struct {
	fn      Rule
	message string
}

// Registry maps rule names to predicate functions. Rules are
// registered explicitly at construction, there is no runtime
// method lookup.
type Registry struct {
	rules  map[string]ruleEntry
	lookup repository.LookupRepository
}

func NewRegistry(lookup repository.LookupRepository) *Registry {
	r := &Registry{
		rules:  make(map[string]ruleEntry),
		lookup: lookup,
	}

	r.register("exist", r.existRule, "{{field}} is not exists")
	r.register("objectId", objectIDRule, "{{field}} is not valid ObjectID")
	r.register("digit", digitRule, "{{field}} is not valid digit")
	r.register("numeric", numericRule, "{{field}} is not valid numeric")
	r.register("length", lengthRule, "{{field}} is not valid length")
	r.register("minValue", minValueRule, "{{field}} is not valid minValue")
	r.register("maxValue", maxValueRule, "{{field}} is not valid maxValue")

	return r
}

func (r *Registry) register(name string, fn Rule, message string) {
	r.rules[name] = ruleEntry{fn: fn, message: message}
}

// Validate runs the named rule against value. The returned error is
// reserved for configuration and storage failures; validation
// outcomes are always expressed through the Verdict.
func (r *Registry) Validate(rule, field string, value any, args []string) (Verdict, error) {
	entry, ok := r.rules[rule]
	if !ok {
		return Verdict{}, &ConfigurationError{Rule: rule, Reason: "unknown rule"}
	}

	verdict, err := entry.fn(field, value, args)
	if err != nil {
		return Verdict{}, err
	}
	if verdict.Status == StatusRejected && verdict.Message == "" {
		verdict = rejected(field, entry.message)
	}
	return verdict, nil
}

// absent mirrors the falsiness test of the source pipeline: nil,
// empty string, numeric zero and false all skip the rule.
func absent(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case bool:
		return !v
	case int:
		return v == 0
	case int64:
		return v == 0
	case float64:
		return v == 0
	case json.Number:
		f, err := v.Float64()
		return err == nil && f == 0
	}
	return false
}

// existRule asserts the value does NOT already exist in the named
// collection; despite the name it is used for uniqueness checks.
// args: [collection, field?, scopeField?, scopeValue?]. The database
// field defaults to the validated field's own name.
func (r *Registry) existRule(field string, value any, args []string) (Verdict, error) {
	if absent(value) {
		return skipped(), nil
	}
	if len(args) == 0 || args[0] == "" {
		return Verdict{}, &ConfigurationError{Rule: "exist", Reason: "collection name is required"}
	}

	collection := args[0]
	column := field
	if len(args) > 1 && args[1] != "" {
		column = args[1]
	}

	var scope []repository.Filter
	if len(args) > 3 && args[2] != "" && args[3] != "" {
		scope = append(scope, repository.Filter{Field: args[2], Value: args[3]})
	}

	exists, err := r.lookup.ExistsWhere(collection, column, value, scope...)
	if err != nil {
		return Verdict{}, err
	}
	if exists {
		return Verdict{Status: StatusRejected}, nil
	}
	return valid(), nil
}

var digitPattern = regexp.MustCompile(`^\d+`)

func digitRule(field string, value any, args []string) (Verdict, error) {
	if absent(value) {
		return skipped(), nil
	}
	if digitPattern.MatchString(fmt.Sprint(value)) {
		return valid(), nil
	}
	return Verdict{Status: StatusRejected}, nil
}

func numericRule(field string, value any, args []string) (Verdict, error) {
	if absent(value) {
		return skipped(), nil
	}
	switch value.(type) {
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, json.Number:
		return valid(), nil
	}
	return Verdict{Status: StatusRejected}, nil
}

func lengthRule(field string, value any, args []string) (Verdict, error) {
	if absent(value) {
		return skipped(), nil
	}
	if len(args) == 0 {
		return Verdict{}, &ConfigurationError{Rule: "length", Reason: "expected length argument is required"}
	}
	want, err := strconv.Atoi(args[0])
	if err != nil {
		return Verdict{}, &ConfigurationError{Rule: "length", Reason: "length argument must be an integer"}
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.String, reflect.Slice, reflect.Array, reflect.Map:
		if rv.Len() == want {
			return valid(), nil
		}
	}
	return Verdict{Status: StatusRejected}, nil
}

// objectIDRule accepts 24-character hex identifiers that mix at least
// one letter a-f with at least one digit. All-digit and all-letter
// strings of the right length are rejected on purpose, matching the
// historical behavior callers depend on.
func objectIDRule(field string, value any, args []string) (Verdict, error) {
	if absent(value) {
		return skipped(), nil
	}

	s, ok := value.(string)
	if !ok {
		return Verdict{Status: StatusRejected}, nil
	}
	if len(s) != 24 {
		return Verdict{Status: StatusRejected}, nil
	}

	hasLetter := false
	hasDigit := false
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
			hasDigit = true
		case c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
			hasLetter = true
		default:
			return Verdict{Status: StatusRejected}, nil
		}
	}
	if hasLetter && hasDigit {
		return valid(), nil
	}
	return Verdict{Status: StatusRejected}, nil
}

func minValueRule(field string, value any, args []string) (Verdict, error) {
	return compareRule("minValue", value, args, func(v, bound float64) bool { return v >= bound })
}

func maxValueRule(field string, value any, args []string) (Verdict, error) {
	return compareRule("maxValue", value, args, func(v, bound float64) bool { return v <= bound })
}

func compareRule(name string, value any, args []string, cmp func(v, bound float64) bool) (Verdict, error) {
	if absent(value) {
		return skipped(), nil
	}
	if len(args) == 0 {
		return Verdict{}, &ConfigurationError{Rule: name, Reason: "bound argument is required"}
	}
	bound, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return Verdict{}, &ConfigurationError{Rule: name, Reason: "bound argument must be numeric"}
	}

	v, ok := toFloat(value)
	if !ok {
		return Verdict{Status: StatusRejected}, nil
	}
	if cmp(v, bound) {
		return valid(), nil
	}
	return Verdict{Status: StatusRejected}, nil
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	}
	return 0, false
}
