package notifier

import (
	"fmt"
	"strings"
)

// TimestampLayout formats the {timestamp} placeholder
const TimestampLayout = "2006-01-02 15:04:05"

// UnknownState stands in for a state that was not known before or after a change
const UnknownState = "unknown"

// Placeholders understood in custom messages
const (
	PlaceholderOldState    = "{old_state}"
	PlaceholderNewState    = "{new_state}"
	PlaceholderDisplayName = "{display_name}"
	PlaceholderEntityID    = "{entity_id}"
	PlaceholderTimestamp   = "{timestamp}"
)

type renderView struct {
	entityID    string
	displayName string
	oldState    string
	newState    string
	timestamp   string
}

// render fills the custom template, or the default message for the match kind.
// Replacement is literal; there is no escaping.
func render(template *string, result matchResult, view renderView) string {
	var message string
	switch {
	case template != nil && *template != "":
		message = *template
	case result.kind == matchBrightness:
		message = fmt.Sprintf("`%s` brightness changed to %d%%", view.displayName, result.brightnessPercent)
	default:
		message = fmt.Sprintf("`%s` changed to `%s`", view.displayName, view.newState)
	}

	return strings.NewReplacer(
		PlaceholderOldState, view.oldState,
		PlaceholderNewState, view.newState,
		PlaceholderDisplayName, view.displayName,
		PlaceholderEntityID, view.entityID,
		PlaceholderTimestamp, view.timestamp,
	).Replace(message)
}
