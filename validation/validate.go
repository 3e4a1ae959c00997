package validation

import "sort"

// Failure identifies the first field that failed validation.
type Failure struct {
	Field string
	Rule  string
}

// Validate applies rules to fields in sorted field order and returns the
// first failure. A field missing from fields fails unless its rule is
// optional.
func Validate(fields map[string]string, rules map[string]Rule) (Failure, bool) {
	if len(rules) == 0 {
		return Failure{}, true
	}

	names := make([]string, 0, len(rules))
	for name := range rules {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		rule := rules[name]
		value, present := fields[name]
		if !present || value == "" {
			if rule.Optional && rule.Kind != KindRequired {
				continue
			}
			return Failure{Field: name, Rule: rule.Name()}, false
		}
		if !rule.Check(value) {
			return Failure{Field: name, Rule: rule.Name()}, false
		}
	}
	return Failure{}, true
}

// ValidateRules checks a rule map for configuration errors.
func ValidateRules(rules map[string]Rule) error {
	names := make([]string, 0, len(rules))
	for name := range rules {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := rules[name].Validate(); err != nil {
			return &FieldError{Field: name, Err: err}
		}
	}
	return nil
}

// FieldError attributes a rule configuration error to its field.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return "field " + e.Field + ": " + e.Err.Error()
}

func (e *FieldError) Unwrap() error {
	return e.Err
}
