package domain

import "fmt"

type OperationKind int

const (
	KindQuery OperationKind = iota
	KindMutation
	KindSubscription
)

func (k OperationKind) String() string {
	switch k {
	case KindQuery:
		return "query"
	case KindMutation:
		return "mutation"
	case KindSubscription:
		return "subscription"
	default:
		return fmt.Sprintf("<invalid operation kind>(%d)", int(k))
	}
}

// Operation is a single GraphQL request as issued by a caller.
//
// Variables are compared by value when deriving cache keys, so the order of
// object keys is irrelevant.
type Operation struct {
	Kind      OperationKind
	Document  string
	Variables map[string]any
	// Name is the GraphQL operation name. Optional.
	Name string
}

func NewQuery(document string, variables map[string]any) Operation {
	return Operation{Kind: KindQuery, Document: document, Variables: variables}
}

func NewMutation(document string, variables map[string]any) Operation {
	return Operation{Kind: KindMutation, Document: document, Variables: variables}
}

func NewSubscription(document string, variables map[string]any) Operation {
	return Operation{Kind: KindSubscription, Document: document, Variables: variables}
}
