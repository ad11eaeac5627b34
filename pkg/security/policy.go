package security

import (
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/jwalitptl/fitness-api/pkg/errors"
)

// RuleID identifies a single password requirement.
type RuleID string

const (
	RuleRequired  RuleID = "required"
	RuleMinLength RuleID = "min_length"
	RuleUppercase RuleID = "has_uppercase"
	RuleLowercase RuleID = "has_lowercase"
	RuleDigit     RuleID = "has_digit"
	RuleSpecial   RuleID = "has_special"
)

const (
	DefaultMinLength = 8

	// SpecialCharacters is the complete set accepted by the special character rule.
	SpecialCharacters = `!@#$%^&*()_+-=[]{};'"\|,.<>/?`

	requiredMessage = "Password is required"
)

// evaluationOrder is the order violations are reported in, whatever order the
// config lists its rules.
var evaluationOrder = []RuleID{RuleMinLength, RuleUppercase, RuleLowercase, RuleDigit, RuleSpecial}

// DefaultRules returns every optional rule in evaluation order.
func DefaultRules() []RuleID {
	return slices.Clone(evaluationOrder)
}

// PolicyConfig holds the tunable parameters of a password policy.
type PolicyConfig struct {
	MinLength int      `json:"min_length" mapstructure:"min_length" validate:"min=1"`
	Rules     []RuleID `json:"rules" mapstructure:"rules" validate:"dive,oneof=min_length has_uppercase has_lowercase has_digit has_special"`
}

// DefaultPolicyConfig returns the policy applied when nothing is configured.
func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		MinLength: DefaultMinLength,
		Rules:     DefaultRules(),
	}
}

func (c PolicyConfig) clone() PolicyConfig {
	c.Rules = slices.Clone(c.Rules)
	return c
}

func (c PolicyConfig) enabled(id RuleID) bool {
	return slices.Contains(c.Rules, id)
}

// PolicyRule is a named predicate over a candidate password.
type PolicyRule struct {
	ID RuleID
	// Requirement is the hint text, e.g. "at least one uppercase letter".
	Requirement string
	// Message is the violation text reported when Check fails.
	Message string
	Check   func(string) bool
}

func newRule(id RuleID, verb, requirement string, check func(string) bool) PolicyRule {
	return PolicyRule{
		ID:          id,
		Requirement: requirement,
		Message:     fmt.Sprintf("Password must %s %s", verb, requirement),
		Check:       check,
	}
}

// ValidationResult is the verdict for one candidate.
type ValidationResult struct {
	Valid      bool     `json:"valid"`
	Violations []string `json:"violations"`
}

// Err returns nil for a valid result, otherwise a validation error carrying
// every violation.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return apperrors.Validation("password does not meet policy", slices.Clone(r.Violations))
}

// PolicyValidator evaluates candidates against an immutable PolicyConfig.
// It holds no mutable state and is safe for concurrent use.
type PolicyValidator struct {
	cfg   PolicyConfig
	rules []PolicyRule
}

var configValidate = validator.New()

// NewPolicyValidator validates cfg and builds its rule list.
func NewPolicyValidator(cfg PolicyConfig) (*PolicyValidator, error) {
	if err := configValidate.Struct(cfg); err != nil {
		return nil, configError(err)
	}

	cfg = cfg.clone()
	rules := make([]PolicyRule, 0, len(evaluationOrder))
	for _, id := range evaluationOrder {
		if !cfg.enabled(id) {
			continue
		}
		rules = append(rules, buildRule(id, cfg.MinLength))
	}

	return &PolicyValidator{cfg: cfg, rules: rules}, nil
}

func buildRule(id RuleID, minLength int) PolicyRule {
	switch id {
	case RuleMinLength:
		return newRule(id, "be", fmt.Sprintf("at least %d characters long", minLength), func(s string) bool {
			return utf8.RuneCountInString(s) >= minLength
		})
	case RuleUppercase:
		return newRule(id, "contain", "at least one uppercase letter", containsRange('A', 'Z'))
	case RuleLowercase:
		return newRule(id, "contain", "at least one lowercase letter", containsRange('a', 'z'))
	case RuleDigit:
		return newRule(id, "contain", "at least one number", containsRange('0', '9'))
	default:
		return newRule(RuleSpecial, "contain", "at least one special character", func(s string) bool {
			return strings.ContainsAny(s, SpecialCharacters)
		})
	}
}

// containsRange reports whether any rune of s falls in [lo, hi]. Only ASCII
// ranges are used, so letters outside A-Z and a-z never satisfy a case rule.
func containsRange(lo, hi rune) func(string) bool {
	return func(s string) bool {
		for _, r := range s {
			if r >= lo && r <= hi {
				return true
			}
		}
		return false
	}
}

func configError(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return apperrors.Validation("invalid password policy", []string{err.Error()})
	}
	details := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, fmt.Sprintf("%s failed %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
	}
	return apperrors.Validation("invalid password policy", details)
}

// Validate evaluates every enabled rule and reports all violations in
// evaluation order. An empty candidate short-circuits with a single
// "Password is required" violation. The candidate is not trimmed.
func (v *PolicyValidator) Validate(candidate string) ValidationResult {
	result, _ := v.Evaluate(candidate)
	return result
}

// Evaluate is Validate that also returns the IDs of the failed rules.
func (v *PolicyValidator) Evaluate(candidate string) (ValidationResult, []RuleID) {
	if candidate == "" {
		return ValidationResult{Violations: []string{requiredMessage}}, []RuleID{RuleRequired}
	}

	violations := []string{}
	var failed []RuleID
	for _, rule := range v.rules {
		if !rule.Check(candidate) {
			violations = append(violations, rule.Message)
			failed = append(failed, rule.ID)
		}
	}

	return ValidationResult{
		Valid:      len(violations) == 0,
		Violations: violations,
	}, failed
}

func (v *PolicyValidator) IsValid(candidate string) bool {
	return v.Validate(candidate).Valid
}

// DescribeRequirements returns the requirement phrases of the enabled rules in
// evaluation order. Each phrase is the tail of the matching violation message.
func (v *PolicyValidator) DescribeRequirements() []string {
	reqs := make([]string, len(v.rules))
	for i, rule := range v.rules {
		reqs[i] = rule.Requirement
	}
	return reqs
}

// Rules returns the enabled rules in evaluation order.
func (v *PolicyValidator) Rules() []PolicyRule {
	return slices.Clone(v.rules)
}

func (v *PolicyValidator) Config() PolicyConfig {
	return v.cfg.clone()
}

// Candidate normalizes a decoded request value into a candidate password.
// Absent and non-string values become "", which Validate reports as
// "Password is required" rather than as a type error.
func Candidate(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case *string:
		if s != nil {
			return *s
		}
	}
	return ""
}
