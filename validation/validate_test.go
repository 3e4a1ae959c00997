package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuleChecks(t *testing.T) {
	tests := []struct {
		rule  Rule
		value string
		want  bool
	}{
		{Rule{Kind: KindEmail}, "ops@bank.example", true},
		{Rule{Kind: KindEmail}, "Ops <ops@bank.example>", false},
		{Rule{Kind: KindEmail}, "ops@localhost", false},
		{Rule{Kind: KindAccountNumber}, "12345678", true},
		{Rule{Kind: KindAccountNumber}, "1234567", false},
		{Rule{Kind: KindAccountNumber}, "12345678a", false},
		{Rule{Kind: KindRoutingNumber}, "021000021", true},
		{Rule{Kind: KindRoutingNumber}, "011000015", true},
		{Rule{Kind: KindRoutingNumber}, "021000022", false},
		{Rule{Kind: KindRoutingNumber}, "02100002", false},
		{Rule{Kind: KindAmount}, "1250.50", true},
		{Rule{Kind: KindAmount}, "0", false},
		{Rule{Kind: KindAmount}, "-5", false},
		{Rule{Kind: KindAmount}, "1.999", false},
		{Rule{Kind: KindAmount, MaxAmount: 1000}, "1000.01", false},
		{Rule{Kind: KindAmount, MaxAmount: 1000}, "1000", true},
		{Rule{Kind: KindUsername}, "treasury.ops", true},
		{Rule{Kind: KindUsername}, "1abc", false},
		{Rule{Kind: KindUsername}, "ab", false},
		{Rule{Kind: KindPasswordStrength}, "Correct-Horse-9", true},
		{Rule{Kind: KindPasswordStrength}, "short1!A", false},
		{Rule{Kind: KindPasswordStrength}, "alllowercase-123", false},
		{Rule{Kind: KindCurrency}, "USD", true},
		{Rule{Kind: KindCurrency}, "usd", false},
		{Rule{Kind: KindPhone}, "+14155550123", true},
		{Rule{Kind: KindPhone}, "4155550123", false},
		{Rule{Kind: KindRequired}, "  ", false},
		{Rule{Kind: KindPattern, Pattern: `^W-[0-9]+$`}, "W-42", true},
		{Rule{Kind: KindPattern, Pattern: `^W-[0-9]+$`}, "X-42", false},
		{Rule{Kind: "nope"}, "x", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.rule.Check(tt.value), "%s(%q)", tt.rule.Kind, tt.value)
	}
}

func TestValidateSortedFirstFailure(t *testing.T) {
	rules := map[string]Rule{
		"routing": {Kind: KindRoutingNumber},
		"amount":  {Kind: KindAmount},
		"email":   {Kind: KindEmail},
	}
	fields := map[string]string{
		"routing": "bad",
		"amount":  "bad",
		"email":   "bad",
	}

	for i := 0; i < 20; i++ {
		fail, ok := Validate(fields, rules)
		require.False(t, ok)
		assert.Equal(t, Failure{Field: "amount", Rule: "amount"}, fail)
	}
}

func TestValidateOptionalAndMissing(t *testing.T) {
	rules := map[string]Rule{
		"memo":  {Kind: KindPattern, Pattern: `^[a-z ]+$`, Optional: true},
		"email": {Kind: KindEmail},
	}

	_, ok := Validate(map[string]string{"email": "a@b.co"}, rules)
	assert.True(t, ok, "absent optional field passes")

	fail, ok := Validate(map[string]string{"memo": "hi"}, rules)
	assert.False(t, ok)
	assert.Equal(t, "email", fail.Field)

	fail, ok = Validate(map[string]string{"email": "a@b.co", "memo": "HI"}, rules)
	assert.False(t, ok)
	assert.Equal(t, Failure{Field: "memo", Rule: "pattern"}, fail)

	_, ok = Validate(nil, nil)
	assert.True(t, ok)
}

func TestValidateRules(t *testing.T) {
	require.NoError(t, ValidateRules(map[string]Rule{"a": {Kind: KindEmail}}))

	err := ValidateRules(map[string]Rule{"a": {Kind: "bogus"}})
	assert.True(t, errors.Is(err, ErrUnknownKind))
	var fe *FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "a", fe.Field)

	assert.Error(t, ValidateRules(map[string]Rule{"p": {Kind: KindPattern, Pattern: "("}}))
	assert.Error(t, ValidateRules(map[string]Rule{"p": {Kind: KindPattern}}))
}
