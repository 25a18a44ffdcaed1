package watches

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/frostdev-ops/pma-watch-bridge/internal/database/models"
)

// thresholdOperators in match order; two-character operators first
var thresholdOperators = []string{">=", "<=", ">", "<"}

// Condition is a parsed watch condition ready to be stored
type Condition struct {
	RuleType  string
	FromState *string
	ToState   *string
	Operator  *string
	Threshold *string
}

// ParseCondition understands "from -> to", "<op> <number>" and "any" (or nothing).
// Plain rules and threshold rules store "any" as their from and to states.
func ParseCondition(raw string) (Condition, error) {
	raw = strings.TrimSpace(raw)

	cond := Condition{
		RuleType:  models.RuleTypeAny,
		FromState: models.StringPtr(models.AnyState),
		ToState:   models.StringPtr(models.AnyState),
	}

	if raw == "" || strings.EqualFold(raw, models.AnyState) {
		return cond, nil
	}

	if strings.Contains(raw, "->") {
		parts := strings.SplitN(raw, "->", 2)
		from := strings.TrimSpace(parts[0])
		to := strings.TrimSpace(parts[1])
		if from == "" || to == "" {
			return Condition{}, fmt.Errorf("%w: %q needs a state on both sides of ->", ErrInvalidCondition, raw)
		}
		cond.RuleType = models.RuleTypeStateChange
		cond.FromState = models.StringPtr(from)
		cond.ToState = models.StringPtr(to)
		return cond, nil
	}

	for _, op := range thresholdOperators {
		if !strings.Contains(raw, op) {
			continue
		}
		parts := strings.Split(raw, op)
		if len(parts) != 2 {
			continue
		}
		threshold := strings.TrimSpace(parts[1])
		if _, err := strconv.ParseFloat(threshold, 64); err != nil {
			return Condition{}, fmt.Errorf("%w: threshold %q is not a number", ErrInvalidCondition, threshold)
		}
		cond.RuleType = models.RuleTypeThreshold
		cond.Operator = models.StringPtr(op)
		cond.Threshold = models.StringPtr(threshold)
		return cond, nil
	}

	return Condition{}, fmt.Errorf("%w: %q", ErrInvalidCondition, raw)
}

// Describe renders a stored rule for listings
func Describe(rule *models.WatchRule) string {
	switch rule.EffectiveRuleType() {
	case models.RuleTypeStateChange:
		return fmt.Sprintf("%s → %s", orStar(rule.FromState), orStar(rule.ToState))
	case models.RuleTypeThreshold:
		return fmt.Sprintf("%s %s", models.StringValue(rule.Operator), models.StringValue(rule.Threshold))
	case models.RuleTypeAny:
		return "any state change"
	default:
		return "(unknown rule)"
	}
}

func orStar(s *string) string {
	if s == nil || *s == "" {
		return "*"
	}
	return *s
}
