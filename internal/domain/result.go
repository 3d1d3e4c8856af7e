package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

type GraphQLErrorLocation struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

type GraphQLError struct {
	Message    string                 `json:"message"`
	Path       []any                  `json:"path,omitempty"`
	Locations  []GraphQLErrorLocation `json:"locations,omitempty"`
	Extensions map[string]any         `json:"extensions,omitempty"`
}

func (e GraphQLError) Error() string {
	if len(e.Path) == 0 {
		return e.Message
	}

	parts := make([]string, 0, len(e.Path))
	for _, p := range e.Path {
		parts = append(parts, fmt.Sprint(p))
	}
	return fmt.Sprintf("%s (path: %s)", e.Message, strings.Join(parts, "."))
}

// Result is the terminal outcome of a GraphQL operation that reached the
// server. Transport failures are reported as errors instead.
type Result struct {
	Data   json.RawMessage `json:"data,omitempty"`
	Errors []GraphQLError  `json:"errors,omitempty"`
}

var jsonNull = []byte("null")

func (r Result) HasData() bool {
	trimmed := bytes.TrimSpace(r.Data)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, jsonNull)
}

// Partial data is data accompanied by GraphQL errors
func (r Result) IsPartial() bool {
	return r.HasData() && len(r.Errors) > 0
}

// Err joins the GraphQL errors of the result, or returns nil if there are none
func (r Result) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}

	errs := make([]error, 0, len(r.Errors))
	for _, e := range r.Errors {
		errs = append(errs, e)
	}
	return errors.Join(errs...)
}

// Decode unmarshals the data of the result into target
func (r Result) Decode(target any) error {
	if !r.HasData() {
		return fmt.Errorf("%w: result has no data", ErrNoData)
	}
	err := json.Unmarshal(r.Data, target)
	if err != nil {
		return fmt.Errorf("failed to decode result data: %w", err)
	}
	return nil
}
