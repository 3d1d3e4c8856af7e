package commands

import (
	"encoding/json"
	"fmt"
	"strings"
)

// parseVariables parses name=value pairs. A value that is valid JSON is used
// as such, anything else is taken as a string.
func parseVariables(raw []string) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	variables := make(map[string]any, len(raw))
	for _, pair := range raw {
		name, rawValue, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid variable %q: expected name=value", pair)
		}
		if _, exists := variables[name]; exists {
			return nil, fmt.Errorf("variable %q given more than once", name)
		}

		var value any
		if err := json.Unmarshal([]byte(rawValue), &value); err != nil {
			value = rawValue
		}
		variables[name] = value
	}
	return variables, nil
}
