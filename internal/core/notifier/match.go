package notifier

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/frostdev-ops/pma-watch-bridge/internal/adapters/homeassistant"
	"github.com/frostdev-ops/pma-watch-bridge/internal/database/models"
	"github.com/sirupsen/logrus"
)

// brightnessScale is the range of the light brightness attribute
const brightnessScale = 255.0

type matchKind int

const (
	matchNone matchKind = iota
	matchRule
	matchBrightness
)

func (k matchKind) String() string {
	switch k {
	case matchRule:
		return "rule"
	case matchBrightness:
		return "brightness"
	default:
		return "none"
	}
}

type matchResult struct {
	kind              matchKind
	brightnessPercent int
}

// evaluate decides whether one watcher should hear about a transition.
// The brightness check only runs when the rule itself did not match.
func (e *Engine) evaluate(rule *models.WatchRule, t homeassistant.Transition, log *logrus.Entry) matchResult {
	if matchesRule(rule, t, log) {
		return matchResult{kind: matchRule}
	}

	if pct, ok := e.brightnessChanged(t); ok {
		return matchResult{kind: matchBrightness, brightnessPercent: pct}
	}

	return matchResult{kind: matchNone}
}

func matchesRule(rule *models.WatchRule, t homeassistant.Transition, log *logrus.Entry) bool {
	switch rule.EffectiveRuleType() {
	case models.RuleTypeAny:
		return !sameState(t.OldState, t.NewState)

	case models.RuleTypeStateChange:
		return stateMatches(rule.FromState, t.OldState) && stateMatches(rule.ToState, t.NewState)

	case models.RuleTypeThreshold:
		value, err := parseNumber(models.StringValue(t.NewState))
		if err != nil {
			log.WithField("new_state", models.StringValue(t.NewState)).Warn("Could not evaluate threshold: state is not numeric")
			return false
		}
		threshold, err := parseNumber(models.StringValue(rule.Threshold))
		if err != nil {
			log.WithField("threshold", models.StringValue(rule.Threshold)).Warn("Could not evaluate threshold: threshold is not numeric")
			return false
		}
		return compare(models.StringValue(rule.Operator), value, threshold)

	default:
		log.WithField("rule_type", rule.RuleType).Warn("Unknown rule type")
		return false
	}
}

func sameState(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// stateMatches applies a from/to pattern; "any" matches every state
func stateMatches(pattern, state *string) bool {
	if pattern != nil && *pattern == models.AnyState {
		return true
	}
	return sameState(pattern, state)
}

func parseNumber(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) {
		return 0, strconv.ErrSyntax
	}
	return v, nil
}

func compare(operator string, value, threshold float64) bool {
	switch operator {
	case ">=":
		return value >= threshold
	case "<=":
		return value <= threshold
	case ">":
		return value > threshold
	case "<":
		return value < threshold
	default:
		return false
	}
}

// brightnessChanged reports a large enough brightness move on a light, with
// the new brightness as a percentage.
func (e *Engine) brightnessChanged(t homeassistant.Transition) (int, bool) {
	if !e.brightness.Enabled || !strings.HasPrefix(t.EntityID, "light.") {
		return 0, false
	}

	oldValue, ok := numericAttr(t.OldAttributes, "brightness")
	if !ok {
		return 0, false
	}
	newValue, ok := numericAttr(t.NewAttributes, "brightness")
	if !ok {
		return 0, false
	}

	delta := math.Abs(newValue - oldValue)
	if e.brightness.MinPercent > 0 {
		if delta*100/brightnessScale < e.brightness.MinPercent {
			return 0, false
		}
	} else if delta < e.brightness.MinDeltaSteps || delta == 0 {
		return 0, false
	}

	return int(math.Round(newValue * 100 / brightnessScale)), true
}

func numericAttr(attrs map[string]interface{}, key string) (float64, bool) {
	switch v := attrs[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := parseNumber(v)
		return f, err == nil
	default:
		return 0, false
	}
}
