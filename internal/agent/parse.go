package agent

import (
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/praxis-sh/praxis/api/schemas"
)

var jsonFast = jsoniter.ConfigCompatibleWithStandardLibrary

const actionMarker = "ACTION:"

// ParseActions extracts action directives from model output. A directive is a
// line of the form
//
//	ACTION: action_type {"param": "value"}
//
// with the JSON params optional. Everything that is not a directive is
// returned as the prose remainder. Malformed directives are dropped rather
// than guessed at.
func ParseActions(text string) ([]schemas.ActionRequest, string) {
	var actions []schemas.ActionRequest
	var prose []string

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, actionMarker) {
			prose = append(prose, line)
			continue
		}

		directive := strings.TrimSpace(strings.TrimPrefix(trimmed, actionMarker))
		if directive == "" {
			continue
		}

		actionType := directive
		params := map[string]any{}
		if idx := strings.IndexAny(directive, " \t{"); idx >= 0 {
			actionType = strings.TrimSpace(directive[:idx])
			rest := strings.TrimSpace(directive[idx:])
			if rest != "" {
				if err := jsonFast.Unmarshal([]byte(rest), &params); err != nil {
					continue
				}
			}
		}
		if actionType == "" {
			continue
		}
		actions = append(actions, schemas.ActionRequest{Type: actionType, Params: params})
	}

	return actions, strings.TrimSpace(strings.Join(prose, "\n"))
}
