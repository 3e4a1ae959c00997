package validation

import (
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"unicode"
)

// Kind names a built-in field check.
type Kind string

const (
	KindRequired         Kind = "required"
	KindEmail            Kind = "email"
	KindAccountNumber    Kind = "account_number"
	KindRoutingNumber    Kind = "routing_number"
	KindAmount           Kind = "amount"
	KindUsername         Kind = "username"
	KindPasswordStrength Kind = "password_strength"
	KindCurrency         Kind = "currency"
	KindPhone            Kind = "phone"
	KindPattern          Kind = "pattern"
)

// ErrUnknownKind is returned by Rule.Validate for an unsupported kind.
var ErrUnknownKind = errors.New("unknown validation kind")

var (
	emailRegex    = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	accountRegex  = regexp.MustCompile(`^[0-9]{8,17}$`)
	routingRegex  = regexp.MustCompile(`^[0-9]{9}$`)
	amountRegex   = regexp.MustCompile(`^[0-9]{1,13}(\.[0-9]{1,2})?$`)
	usernameRegex = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_.-]{2,31}$`)
	currencyRegex = regexp.MustCompile(`^[A-Z]{3}$`)
	phoneRegex    = regexp.MustCompile(`^\+[1-9][0-9]{7,14}$`)

	patterns sync.Map // string -> *regexp.Regexp
)

const minPasswordLength = 12

// Rule is one field constraint. Optional fields pass when absent or empty.
type Rule struct {
	Kind     Kind   `yaml:"kind" json:"kind"`
	Optional bool   `yaml:"optional" json:"optional,omitempty"`
	Pattern  string `yaml:"pattern" json:"pattern,omitempty"`
	// MaxAmount bounds KindAmount when positive.
	MaxAmount float64 `yaml:"max_amount" json:"max_amount,omitempty"`
}

// Name is the rule identifier reported on failure.
func (r Rule) Name() string {
	return string(r.Kind)
}

// Validate reports configuration errors: unknown kinds and bad patterns.
func (r Rule) Validate() error {
	switch r.Kind {
	case KindRequired, KindEmail, KindAccountNumber, KindRoutingNumber, KindAmount,
		KindUsername, KindPasswordStrength, KindCurrency, KindPhone:
		return nil
	case KindPattern:
		if r.Pattern == "" {
			return errors.New("pattern rule requires a pattern")
		}
		_, err := compile(r.Pattern)
		return err
	}
	return fmt.Errorf("%w: %q", ErrUnknownKind, r.Kind)
}

// Check reports whether value satisfies r. Presence and optionality are
// handled by Validate; Check sees the raw value.
func (r Rule) Check(value string) bool {
	switch r.Kind {
	case KindRequired:
		return strings.TrimSpace(value) != ""
	case KindEmail:
		return CheckEmail(value)
	case KindAccountNumber:
		return accountRegex.MatchString(value)
	case KindRoutingNumber:
		return CheckRoutingNumber(value)
	case KindAmount:
		return CheckAmount(value, r.MaxAmount)
	case KindUsername:
		return usernameRegex.MatchString(value)
	case KindPasswordStrength:
		return CheckPasswordStrength(value)
	case KindCurrency:
		return currencyRegex.MatchString(value)
	case KindPhone:
		return phoneRegex.MatchString(value)
	case KindPattern:
		re, err := compile(r.Pattern)
		if err != nil {
			return false
		}
		return re.MatchString(value)
	}
	return false
}

// CheckEmail accepts a bare RFC 5322 address with a dotted domain.
func CheckEmail(email string) bool {
	if email == "" {
		return false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return false
	}
	return emailRegex.MatchString(strings.ToLower(email))
}

// CheckRoutingNumber validates a nine-digit ABA routing number, including
// its 3-7-1 checksum.
func CheckRoutingNumber(v string) bool {
	if !routingRegex.MatchString(v) {
		return false
	}
	weights := [9]int{3, 7, 1, 3, 7, 1, 3, 7, 1}
	sum := 0
	for i := 0; i < 9; i++ {
		sum += int(v[i]-'0') * weights[i]
	}
	return sum%10 == 0
}

// CheckAmount accepts a positive decimal with at most two fraction digits,
// bounded by max when max > 0.
func CheckAmount(v string, max float64) bool {
	if !amountRegex.MatchString(v) {
		return false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return false
	}
	return max <= 0 || f <= max
}

// CheckPasswordStrength requires 12 or more characters mixing upper case,
// lower case, digits and symbols.
func CheckPasswordStrength(password string) bool {
	if len([]rune(password)) < minPasswordLength {
		return false
	}
	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			special = true
		}
	}
	return upper && lower && digit && special
}

func compile(pattern string) (*regexp.Regexp, error) {
	if re, ok := patterns.Load(pattern); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	patterns.Store(pattern, re)
	return re, nil
}
