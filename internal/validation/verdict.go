package validation

import (
	"strings"
)

type Status int

const (
	// StatusValid means the value passed the rule.
	StatusValid Status = iota
	// StatusSkipped means the value was absent; a separate required
	// rule is responsible for empty values.
	StatusSkipped
	// StatusRejected means the value failed the rule.
	StatusRejected
)

// Verdict is the outcome of running a single rule against a value.
type Verdict struct {
	Status  Status
	Field   string
	Message string
}

func valid() Verdict {
	return Verdict{Status: StatusValid}
}

func skipped() Verdict {
	return Verdict{Status: StatusSkipped}
}

func rejected(field, template string) Verdict {
	return Verdict{
		Status:  StatusRejected,
		Field:   field,
		Message: strings.ReplaceAll(template, "{{field}}", field),
	}
}

// ConfigurationError reports a rule invoked with unusable arguments,
// e.g. the exist rule without a collection name. It is a caller bug,
// not a validation failure.
type ConfigurationError struct {
	Rule   string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "validation rule " + e.Rule + ": " + e.Reason
}
