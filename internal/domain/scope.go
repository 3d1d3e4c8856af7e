package domain

import (
	"fmt"
)

type MetricScope string

const (
	ScopeNode        MetricScope = "node"
	ScopeSocket      MetricScope = "socket"
	ScopeAccelerator MetricScope = "accelerator"
	ScopeCore        MetricScope = "core"
	ScopeHWThread    MetricScope = "hwthread"
)

var scopeGranularity = map[MetricScope]int{
	ScopeNode:        10,
	ScopeSocket:      5,
	ScopeAccelerator: 5,
	ScopeCore:        2,
	ScopeHWThread:    1,
}

func pickScope(scopes []MetricScope, better func(candidate, current int) bool) (MetricScope, error) {
	if len(scopes) == 0 {
		return "", fmt.Errorf("%w: no scopes given", ErrUnknownScope)
	}

	picked := scopes[0]
	pickedGranularity, ok := scopeGranularity[picked]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownScope, picked)
	}

	for _, scope := range scopes[1:] {
		granularity, ok := scopeGranularity[scope]
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrUnknownScope, scope)
		}
		if better(granularity, pickedGranularity) {
			picked = scope
			pickedGranularity = granularity
		}
	}

	return picked, nil
}

// MaxScope returns the coarsest of the given scopes. Ties keep the first one.
func MaxScope(scopes []MetricScope) (MetricScope, error) {
	return pickScope(scopes, func(candidate, current int) bool { return candidate > current })
}

// MinScope returns the finest of the given scopes. Ties keep the first one.
func MinScope(scopes []MetricScope) (MetricScope, error) {
	return pickScope(scopes, func(candidate, current int) bool { return candidate < current })
}

func ParseScope(raw string) (MetricScope, error) {
	scope := MetricScope(raw)
	if _, ok := scopeGranularity[scope]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownScope, raw)
	}
	return scope, nil
}
