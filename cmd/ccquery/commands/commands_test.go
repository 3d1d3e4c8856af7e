package commands_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ClusterCockpit/cc-frontend/cmd/ccquery/commands"
	"github.com/ClusterCockpit/cc-frontend/internal/client"
	"github.com/ClusterCockpit/cc-frontend/internal/domain"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	backendURL string
}

func (c testConfig) BackendURL() string         { return c.backendURL }
func (c testConfig) GraphQLURL() string         { return c.backendURL + "/query" }
func (c testConfig) JWT() string                { return "" }
func (c testConfig) CacheTTL() time.Duration    { return time.Minute }
func (c testConfig) CacheMaxSize() int          { return 10 }
func (c testConfig) HTTPTimeout() time.Duration { return 5 * time.Second }
func (c testConfig) RetryAttempts() int         { return 1 }
func (c testConfig) RateLimitPerSecond() int    { return 0 }
func (c testConfig) RateLimitBurst() int        { return 0 }

type backend struct {
	graphqlRequests atomic.Int32
	metricsRequests atomic.Int32
}

func (b *backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if id, ok := strings.CutPrefix(r.URL.Path, "/api/jobs/metrics/"); ok {
		b.metricsRequests.Add(1)
		_, _ = fmt.Fprintf(w, `{"data": {"job": %s, "metrics": %q}}`, id, r.URL.Query()["metric"])
		return
	}

	b.graphqlRequests.Add(1)

	var req struct {
		OperationName string         `json:"operationName"`
		Variables     map[string]any `json:"variables"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	switch req.OperationName {
	case "SessionInit":
		_, _ = w.Write([]byte(`{"data": {
			"clusters": [{"name": "fritz", "metricConfig": [], "partitions": []}],
			"tags": [
				{"id": "1", "name": "io-stall", "type": "bug"},
				{"id": "2", "name": "short", "type": "runtime"}
			]
		}}`))
	case "Job":
		_, _ = fmt.Fprintf(w, `{"data": {"job": {"__typename": "Job", "id": "%v"}}}`, req.Variables["id"])
	case "Broken":
		_, _ = w.Write([]byte(`{"data": null, "errors": [{"message": "broken"}]}`))
	default:
		_, _ = w.Write([]byte(`{"errors": [{"message": "unknown operation"}]}`))
	}
}

func runCLI(t *testing.T, args ...string) (string, string, *backend, error) {
	t.Helper()

	b := &backend{}
	server := httptest.NewServer(b)
	t.Cleanup(server.Close)

	c, err := client.New(testConfig{backendURL: server.URL}, client.WithHTTPClient(server.Client()))
	require.NoError(t, err)
	t.Cleanup(c.Close)

	var out, errOut bytes.Buffer
	cli := commands.New(c)
	cli.SetArgs(args)
	cli.SetOutput(&out, &errOut)

	err = cli.Execute(t.Context())
	return out.String(), errOut.String(), b, err
}

func TestQueryCmd(t *testing.T) {
	t.Parallel()

	const document = `query Job($id: ID!) { job(id: $id) { id } }`

	t.Run("repeated query shares one request", func(t *testing.T) {
		t.Parallel()

		out, errOut, b, err := runCLI(t, "query", document, "--var", "id=7", "--repeat", "8", "--stats")
		require.NoError(t, err)
		require.Equal(t, int32(1), b.graphqlRequests.Load())

		var result domain.Result
		require.NoError(t, json.Unmarshal([]byte(out), &result))
		require.JSONEq(t, `{"job": {"__typename": "Job", "id": "7"}}`, string(result.Data))

		require.Contains(t, errOut, `"Size": 1`)
	})

	t.Run("document from file", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "job.graphql")
		require.NoError(t, os.WriteFile(path, []byte(document), 0o644))

		out, _, _, err := runCLI(t, "query", "@"+path, "--var", "id=8")
		require.NoError(t, err)
		require.Contains(t, out, `"id": "8"`)
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()

		_, _, b, err := runCLI(t, "query", "@"+filepath.Join(t.TempDir(), "missing.graphql"))
		require.Error(t, err)
		require.Equal(t, int32(0), b.graphqlRequests.Load())
	})

	t.Run("errors without data fail", func(t *testing.T) {
		t.Parallel()

		out, _, _, err := runCLI(t, "query", `query Broken { job { id } }`)
		require.ErrorContains(t, err, "broken")
		require.Contains(t, out, `"message": "broken"`)
	})

	t.Run("invalid repeat", func(t *testing.T) {
		t.Parallel()

		_, _, b, err := runCLI(t, "query", document, "--repeat", "0")
		require.Error(t, err)
		require.Equal(t, int32(0), b.graphqlRequests.Load())
	})

	t.Run("mutation", func(t *testing.T) {
		t.Parallel()

		_, _, _, err := runCLI(t, "mutate", `mutation Unknown { stopJob { id } }`)
		require.ErrorContains(t, err, "unknown operation")
	})
}

func TestInitCmd(t *testing.T) {
	t.Parallel()

	t.Run("all tags", func(t *testing.T) {
		t.Parallel()

		out, _, b, err := runCLI(t, "init")
		require.NoError(t, err)
		require.Equal(t, int32(1), b.graphqlRequests.Load())

		var output struct {
			Clusters []domain.Cluster `json:"clusters"`
			Tags     []domain.Tag     `json:"tags"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &output))
		require.Len(t, output.Clusters, 1)
		require.Equal(t, "fritz", output.Clusters[0].Name)
		require.Len(t, output.Tags, 2)
	})

	t.Run("tag search", func(t *testing.T) {
		t.Parallel()

		out, _, _, err := runCLI(t, "init", "--tags", "bug:")
		require.NoError(t, err)
		require.Contains(t, out, "io-stall")
		require.NotContains(t, out, "short")
	})
}

func TestMetricsCmd(t *testing.T) {
	t.Parallel()

	t.Run("several jobs", func(t *testing.T) {
		t.Parallel()

		out, _, b, err := runCLI(t, "metrics", "1", "2", "1", "--metric", "flops_any", "--scope", "node")
		require.NoError(t, err)
		require.Equal(t, int32(2), b.metricsRequests.Load())

		var output map[string]json.RawMessage
		require.NoError(t, json.Unmarshal([]byte(out), &output))
		require.Len(t, output, 2)
		require.JSONEq(t, `{"job": 2, "metrics": ["flops_any"]}`, string(output["2"]))
	})

	t.Run("invalid job id", func(t *testing.T) {
		t.Parallel()

		_, _, b, err := runCLI(t, "metrics", "abc")
		require.Error(t, err)
		require.Equal(t, int32(0), b.metricsRequests.Load())
	})

	t.Run("invalid scope", func(t *testing.T) {
		t.Parallel()

		_, _, _, err := runCLI(t, "metrics", "1", "--scope", "rack")
		require.ErrorIs(t, err, domain.ErrUnknownScope)
	})
}
