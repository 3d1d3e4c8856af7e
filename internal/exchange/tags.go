package exchange

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
	"unicode"
)

// Root mutation fields starting with one of these change the membership of a
// collection, so list queries over the returned types are stale as well
var collectionVerbs = []string{"create", "add", "insert", "delete", "remove"}

// Root mutation fields like addTagsToJob name the type they change after one
// of these
var targetConnectors = []string{"To", "From", "On", "For"}

func decodePayload(data json.RawMessage) (any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	var payload any
	err := decoder.Decode(&payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode result data: %w", err)
	}
	return payload, nil
}

func idString(value any) (string, bool) {
	switch id := value.(type) {
	case string:
		return id, id != ""
	case json.Number:
		return id.String(), true
	default:
		return "", false
	}
}

func typename(object map[string]any) (string, bool) {
	name, ok := object[typenameField].(string)
	return name, ok && name != ""
}

func EntityTag(typeName, id string) string {
	return typeName + ":" + id
}

// visitTyped calls visit for every object carrying a __typename
func visitTyped(node any, visit func(typeName string, id string, hasID bool)) {
	switch v := node.(type) {
	case map[string]any:
		if name, ok := typename(v); ok {
			id, hasID := idString(v["id"])
			visit(name, id, hasID)
		}
		for _, child := range v {
			visitTyped(child, visit)
		}
	case []any:
		for _, child := range v {
			visitTyped(child, visit)
		}
	}
}

// ExtractTypeTags returns the tags a cached query result depends on.
//
// Every object with a __typename contributes its bare type tag ("Job"), and
// objects that also carry an id contribute an entity tag ("Job:42"). The
// result is sorted and free of duplicates.
func ExtractTypeTags(data json.RawMessage) ([]string, error) {
	payload, err := decodePayload(data)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	visitTyped(payload, func(typeName, id string, hasID bool) {
		seen[typeName] = struct{}{}
		if hasID {
			seen[EntityTag(typeName, id)] = struct{}{}
		}
	})

	return slices.Sorted(maps.Keys(seen)), nil
}

func isCollectionField(field string) bool {
	lower := strings.ToLower(field)
	for _, verb := range collectionVerbs {
		if strings.HasPrefix(lower, verb) {
			return true
		}
	}
	return false
}

// targetType returns the type a root field like addTagsToJob or
// removeTagsFromJob acts on. The result of such a field does not necessarily
// contain that type.
func targetType(field string) (string, bool) {
	start := -1
	for _, connector := range targetConnectors {
		i := strings.LastIndex(field, connector)
		if i > 0 && i+len(connector) > start {
			start = i + len(connector)
		}
	}
	if start < 0 || start >= len(field) {
		return "", false
	}

	typeName := field[start:]
	if !unicode.IsUpper(rune(typeName[0])) {
		return "", false
	}
	return typeName, true
}

// ExtractInvalidationTags returns the tags a mutation result invalidates.
//
// Objects with an id invalidate their entity tag only, so updating Job:2
// leaves cached queries over Job:1 alone. Objects without an id are not
// specific enough and invalidate their bare type tag. Root fields that
// create or delete entities (see collectionVerbs) also invalidate the bare
// type tags of everything they return. Root fields naming a target type
// (addTagsToJob) invalidate that type as well.
func ExtractInvalidationTags(data json.RawMessage) ([]string, error) {
	payload, err := decodePayload(data)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	visitor := func(collection bool) func(string, string, bool) {
		return func(typeName, id string, hasID bool) {
			if !hasID || collection {
				seen[typeName] = struct{}{}
			}
			if hasID {
				seen[EntityTag(typeName, id)] = struct{}{}
			}
		}
	}

	root, ok := payload.(map[string]any)
	if !ok {
		visitTyped(payload, visitor(false))
		return slices.Sorted(maps.Keys(seen)), nil
	}

	for field, value := range root {
		visitTyped(value, visitor(isCollectionField(field)))
		if typeName, ok := targetType(field); ok {
			seen[typeName] = struct{}{}
		}
	}

	return slices.Sorted(maps.Keys(seen)), nil
}
