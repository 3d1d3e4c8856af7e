package exchange

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPrepareDocument(t *testing.T) {
	t.Parallel()

	t.Run("typename injection", func(t *testing.T) {
		t.Parallel()

		prepared, err := prepareDocument(`
			query Jobs {
				jobs {
					items {
						id
						... on Job { cluster }
						...JobTags
					}
					count
				}
			}

			fragment JobTags on Job { tags { id } }
		`)
		require.NoError(t, err)
		require.Equal(t, []string{"Jobs"}, prepared.names)

		// jobs, items, JobTags and tags. Not the root or the inline fragment.
		require.Equal(t, 4, strings.Count(prepared.document, typenameField))
	})

	t.Run("root fragments are left alone", func(t *testing.T) {
		t.Parallel()

		prepared, err := prepareDocument(`
			query { ...Root }
			fragment Root on Query { clusters { name } }
		`)
		require.NoError(t, err)
		require.Equal(t, []string{""}, prepared.names)
		require.Equal(t, 1, strings.Count(prepared.document, typenameField))
	})

	t.Run("existing typename is not duplicated", func(t *testing.T) {
		t.Parallel()

		prepared, err := prepareDocument(`{ job(id: "1") { __typename id } }`)
		require.NoError(t, err)
		require.Equal(t, 1, strings.Count(prepared.document, typenameField))
	})

	t.Run("typename position is normalized", func(t *testing.T) {
		t.Parallel()

		first, err := prepareDocument(`{ job(id: "1") { __typename id tags { __typename name } } }`)
		require.NoError(t, err)
		last, err := prepareDocument(`{ job(id: "1") { id tags { name __typename } __typename } }`)
		require.NoError(t, err)
		missing, err := prepareDocument(`{ job(id: "1") { id tags { name } } }`)
		require.NoError(t, err)

		require.Equal(t, missing.document, first.document)
		require.Equal(t, missing.document, last.document)
	})

	t.Run("typename with directives is kept", func(t *testing.T) {
		t.Parallel()

		prepared, err := prepareDocument(`{ job(id: "1") { __typename @include(if: true) id } }`)
		require.NoError(t, err)
		require.Equal(t, 2, strings.Count(prepared.document, typenameField))
	})

	t.Run("operation names", func(t *testing.T) {
		t.Parallel()

		prepared, err := prepareDocument(`query A { jobs { count } } query B { clusters { name } }`)
		require.NoError(t, err)
		require.Equal(t, []string{"A", "B"}, prepared.names)
	})

	t.Run("aliased typename still gets the real one", func(t *testing.T) {
		t.Parallel()

		prepared, err := prepareDocument(`{ job(id: "1") { kind: __typename id } }`)
		require.NoError(t, err)
		require.Equal(t, 2, strings.Count(prepared.document, typenameField))
	})
}

func TestCanonicalVariables(t *testing.T) {
	t.Parallel()

	got, err := canonicalVariables(map[string]any{"b": 1, "a": map[string]any{"d": true, "c": nil}})
	require.NoError(t, err)
	require.Equal(t, `{"a":{"c":null,"d":true},"b":1}`, got)

	got, err = canonicalVariables(nil)
	require.NoError(t, err)
	require.Equal(t, "{}", got)
}
