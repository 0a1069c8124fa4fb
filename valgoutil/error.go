package valgoutil

import (
	"slices"
	"strings"

	"github.com/cohesivestack/valgo"
)

// GetDetails flattens a validation error into "name: message, message" lines
// sorted by field name.
func GetDetails(err *valgo.Error) []string {
	if err == nil || err.Errors() == nil {
		return []string{}
	}

	details := make([]string, 0, len(err.Errors()))
	for name, v := range err.Errors() {
		messages := slices.Clone(v.Messages())
		slices.Sort(messages)
		details = append(details, name+": "+strings.Join(messages, ", "))
	}
	slices.Sort(details)

	return details
}
