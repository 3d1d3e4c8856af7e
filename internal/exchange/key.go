package exchange

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/ClusterCockpit/cc-frontend/internal/domain"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"
	"github.com/vektah/gqlparser/v2/parser"
)

const typenameField = "__typename"

var rootTypes = map[string]bool{
	"Query":        true,
	"Mutation":     true,
	"Subscription": true,
}

type preparedDocument struct {
	document string
	// Names of the operations in document order. Anonymous operations are "".
	names []string
}

// Parse the document, add __typename to every non-root selection set and
// print it in canonical form
func prepareDocument(document string) (preparedDocument, error) {
	doc, err := parser.ParseQuery(&ast.Source{Name: "operation", Input: document})
	if err != nil {
		return preparedDocument{}, fmt.Errorf("%w: failed to parse document: %w", domain.ErrUncacheable, err)
	}
	if doc == nil || len(doc.Operations) == 0 {
		return preparedDocument{}, fmt.Errorf("%w: document contains no operations", domain.ErrUncacheable)
	}

	names := make([]string, 0, len(doc.Operations))
	for _, operation := range doc.Operations {
		operation.SelectionSet = addTypename(operation.SelectionSet, false)
		names = append(names, operation.Name)
	}
	for _, fragment := range doc.Fragments {
		fragment.SelectionSet = addTypename(fragment.SelectionSet, !rootTypes[fragment.TypeCondition])
	}

	var buf bytes.Buffer
	formatter.NewFormatter(&buf).FormatQueryDocument(doc)

	return preparedDocument{
		document: buf.String(),
		names:    names,
	}, nil
}

func isTypenameField(field *ast.Field) bool {
	return field.Alias == typenameField && field.Name == typenameField && len(field.Directives) == 0
}

// addTypename makes __typename the last selection of every selection set
// that should carry one, wherever the document had it before
func addTypename(set ast.SelectionSet, includeSelf bool) ast.SelectionSet {
	normalized := make(ast.SelectionSet, 0, len(set)+1)
	for _, selection := range set {
		switch s := selection.(type) {
		case *ast.Field:
			if includeSelf && isTypenameField(s) {
				continue
			}
			if len(s.SelectionSet) > 0 {
				s.SelectionSet = addTypename(s.SelectionSet, true)
			}
		case *ast.InlineFragment:
			// The enclosing selection set carries the typename
			s.SelectionSet = addTypename(s.SelectionSet, false)
		}
		normalized = append(normalized, selection)
	}

	if includeSelf {
		normalized = append(normalized, &ast.Field{Alias: typenameField, Name: typenameField})
	}
	return normalized
}

// encoding/json sorts map keys, so the output does not depend on the order
// the variables were inserted in
func canonicalVariables(variables map[string]any) (string, error) {
	if len(variables) == 0 {
		return "{}", nil
	}

	data, err := json.Marshal(variables)
	if err != nil {
		return "", fmt.Errorf("%w: failed to marshal variables: %w", domain.ErrUncacheable, err)
	}
	return string(data), nil
}

func hashKey(kind domain.OperationKind, name, document, variables string) string {
	h := sha256.New()
	h.Write([]byte(kind.String()))
	h.Write([]byte{0})
	h.Write([]byte(name))
	h.Write([]byte{0})
	h.Write([]byte(document))
	h.Write([]byte{0})
	h.Write([]byte(variables))
	return hex.EncodeToString(h.Sum(nil))
}

func prepare(op domain.Operation, prepareFunc func(string) (preparedDocument, error)) (domain.Operation, string, error) {
	if op.Kind == domain.KindSubscription {
		return op, "", fmt.Errorf("%w: subscriptions bypass the cache", domain.ErrUncacheable)
	}

	prepared, err := prepareFunc(op.Document)
	if err != nil {
		return op, "", err
	}

	name, err := operationName(op.Name, prepared.names)
	if err != nil {
		return op, "", err
	}

	variables, err := canonicalVariables(op.Variables)
	if err != nil {
		return op, "", err
	}

	op.Document = prepared.document
	op.Name = name

	return op, hashKey(op.Kind, name, prepared.document, variables), nil
}

// operationName resolves the operation the server will run. The name selects
// the result, so it has to be part of the key.
func operationName(requested string, names []string) (string, error) {
	switch {
	case requested != "":
		if !slices.Contains(names, requested) {
			return "", fmt.Errorf("%w: document has no operation named %q", domain.ErrUncacheable, requested)
		}
		return requested, nil
	case len(names) > 1:
		return "", fmt.Errorf("%w: document has %d operations and no operation name", domain.ErrUncacheable, len(names))
	default:
		return names[0], nil
	}
}

// DeriveKey returns the cache key of an operation.
//
// Documents that only differ in formatting, comments or an explicit
// __typename selection yield the same key. The operation name is part of the
// key, so each operation of a document is cached separately. Subscriptions and malformed
// operations return an error wrapping domain.ErrUncacheable.
func DeriveKey(op domain.Operation) (string, error) {
	_, key, err := prepare(op, prepareDocument)
	return key, err
}

// Keyer derives cache keys like DeriveKey, memoizing the document preparation
type Keyer struct {
	documents *lru.Cache[string, preparedDocument]
}

// NewKeyer creates a Keyer remembering up to size prepared documents.
// A size of zero disables the memo.
func NewKeyer(size int) (*Keyer, error) {
	if size < 0 {
		return nil, fmt.Errorf("%w: document cache size must not be negative (got %d)", domain.ErrInvalidConfig, size)
	}
	if size == 0 {
		return &Keyer{}, nil
	}

	documents, err := lru.New[string, preparedDocument](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create document cache: %w", err)
	}
	return &Keyer{documents: documents}, nil
}

func (k *Keyer) prepareDocument(document string) (preparedDocument, error) {
	if k.documents == nil {
		return prepareDocument(document)
	}

	if prepared, ok := k.documents.Get(document); ok {
		return prepared, nil
	}

	prepared, err := prepareDocument(document)
	if err != nil {
		return preparedDocument{}, err
	}
	k.documents.Add(document, prepared)
	return prepared, nil
}

// Prepare returns the operation with its document in canonical form together
// with its cache key. On error the operation is returned unchanged.
func (k *Keyer) Prepare(op domain.Operation) (domain.Operation, string, error) {
	return prepare(op, k.prepareDocument)
}
