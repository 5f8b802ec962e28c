package cmd

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"golang.org/x/oauth2"

	"rivwidthcloud/internal/domain"
	"rivwidthcloud/internal/metrics"
)

// remoteRuntime returns a runtime whose credentials are counted test tokens.
func remoteRuntime(issued *atomic.Int32) *runtime {
	rt := defaultRuntime()
	rt.tokenSource = func(context.Context) (oauth2.TokenSource, error) {
		issued.Add(1)
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "test-token"}), nil
	}
	return rt
}

func execute(t *testing.T, rt *runtime, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCommand(rt)
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

// exportService answers table exports, failing the first calls with statuses.
func exportService(t *testing.T, statuses ...int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(calls.Add(1))
		w.Header().Set("Content-Type", "application/json")
		if n <= len(statuses) {
			w.WriteHeader(statuses[n-1])
			_, _ = w.Write([]byte(`{"error":{"code":401,"message":"Request had invalid authentication credentials."}}`))
			return
		}
		_, _ = w.Write([]byte(`{"name":"projects/my-project/operations/OP1"}`))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func writeConfig(t *testing.T, endpoint string) string {
	t.Helper()
	content := strings.Join([]string{
		"earthengine:",
		"  endpoint: " + endpoint,
		"  project: my-project",
		"  requests_per_second: 1000",
		"  burst: 10",
		"  max_tries: 1",
		"  timeout: 5s",
	}, "\n")
	path := filepath.Join(t.TempDir(), "rwc.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestBatch_RemoteSessionInitializedOnce(t *testing.T) {
	srv, calls := exportService(t)
	var issued atomic.Int32
	metricsFile := filepath.Join(t.TempDir(), "rwc.prom")
	input := writeInput(t, "landsat_id\nLC08_A\nLC08_B\nLC08_C\n")

	out, err := execute(t, remoteRuntime(&issued), "--config", writeConfig(t, srv.URL), "--metrics-file", metricsFile, "batch", input, "-m", "2")
	require.NoError(t, err)

	assert.Len(t, confirmations(out), 3)
	assert.EqualValues(t, 3, calls.Load())
	assert.EqualValues(t, 1, issued.Load())

	data, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "rwc_session_renewals_total 0")
}

func TestBatch_RemoteRenewsExpiredSession(t *testing.T) {
	srv, calls := exportService(t, http.StatusUnauthorized)
	var issued atomic.Int32
	metricsFile := filepath.Join(t.TempDir(), "rwc.prom")
	input := writeInput(t, "landsat_id\nLC08_A\n")

	out, err := execute(t, remoteRuntime(&issued), "--config", writeConfig(t, srv.URL), "--metrics-file", metricsFile, "batch", input)
	require.NoError(t, err)

	assert.Equal(t, []string{"LC08_A will be exported to the root of Google Drive as csv file"}, confirmations(out))
	assert.EqualValues(t, 2, calls.Load())
	assert.EqualValues(t, 2, issued.Load())

	data, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "rwc_session_renewals_total 1")
}

func newSubmitterRuntime(t *testing.T, rt *runtime) *runtime {
	rt.opts = &globalOptions{}
	rt.config = &domain.Config{
		EarthEngine: domain.EarthEngineConfig{Endpoint: "http://127.0.0.1:0", RequestsPerSecond: 1, Burst: 1, MaxTries: 1},
		Export:      domain.ExportConfig{Destination: domain.DestinationDrive},
	}
	rt.logger = zaptest.NewLogger(t, zaptest.Level(zap.WarnLevel))
	rt.metrics = metrics.New()
	return rt
}

func TestSubmitter_InitializesSessionThroughGuard(t *testing.T) {
	var issued atomic.Int32
	rt := newSubmitterRuntime(t, remoteRuntime(&issued))

	submit, guard, err := rt.submitter(context.Background(), &bytes.Buffer{})
	require.NoError(t, err)
	require.NotNil(t, submit)

	assert.EqualValues(t, 1, guard.Generation())
	assert.EqualValues(t, 1, issued.Load())
	assert.Zero(t, testutil.ToFloat64(rt.metrics.SessionRenewals))

	require.NoError(t, guard.Renew(context.Background(), guard.Generation()))
	assert.EqualValues(t, 2, guard.Generation())
	assert.Equal(t, 1.0, testutil.ToFloat64(rt.metrics.SessionRenewals))
}

func TestSubmitter_CredentialsUnavailable(t *testing.T) {
	rt := newSubmitterRuntime(t, defaultRuntime())
	rt.tokenSource = func(context.Context) (oauth2.TokenSource, error) {
		return nil, errors.New("could not find default credentials")
	}

	_, _, err := rt.submitter(context.Background(), &bytes.Buffer{})
	assert.ErrorContains(t, err, "initialize earth engine session: could not find default credentials")
}

type fakeTaskReader struct {
	tasks    []domain.TaskSpec
	rejected []domain.TaskOutcome
	path     string
}

func (f *fakeTaskReader) ReadAll(path string, mode domain.Mode, params *domain.Parameters) ([]domain.TaskSpec, []domain.TaskOutcome, error) {
	f.path = path
	for i := range f.tasks {
		f.tasks[i].Mode = mode
		f.tasks[i].Params = params
	}
	return f.tasks, f.rejected, nil
}

func TestBatch_ReadsTasksThroughReader(t *testing.T) {
	reader := &fakeTaskReader{
		tasks: []domain.TaskSpec{{Index: 0, Identifier: "LC08_A"}, {Index: 2, Identifier: "LC08_C"}},
		rejected: []domain.TaskOutcome{{
			Task:     domain.TaskSpec{Index: 1, Identifier: "LC08_B"},
			Status:   domain.StatusFailed,
			Detail:   "landsat_id is empty",
			Rejected: true,
		}},
	}
	rt := defaultRuntime()
	rt.taskReader = func(*zap.Logger) domain.TaskReader { return reader }

	out, err := execute(t, rt, "--dry-run", "--fail-on-error", "batch", "tasks.csv")
	assert.ErrorContains(t, err, "1 of 3 tasks failed")
	assert.Equal(t, "tasks.csv", reader.path)
	assert.ElementsMatch(t, []string{
		"LC08_A will be exported to the root of Google Drive as csv file",
		"LC08_C will be exported to the root of Google Drive as csv file",
	}, confirmations(out))
}

type fakeExportLister struct {
	objects []domain.ExportObject
	bucket  string
	prefix  string
	closed  bool
}

func (f *fakeExportLister) List(_ context.Context, bucket, prefix string) ([]domain.ExportObject, error) {
	f.bucket, f.prefix = bucket, prefix
	return f.objects, nil
}

func (f *fakeExportLister) Close() error {
	f.closed = true
	return nil
}

func TestExports_ListsObjects(t *testing.T) {
	updated := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	lister := &fakeExportLister{objects: []domain.ExportObject{
		{Name: "widths/LC08_A.csv", Size: 1024, Updated: updated},
		{Name: "widths/LC08_B.csv", Size: 20, Updated: updated},
	}}
	rt := defaultRuntime()
	rt.exportLister = func(context.Context, *zap.Logger) (domain.ExportLister, error) { return lister, nil }

	out, err := execute(t, rt, "exports", "rivers", "widths/")
	require.NoError(t, err)

	assert.Equal(t, "rivers", lister.bucket)
	assert.Equal(t, "widths/", lister.prefix)
	assert.True(t, lister.closed)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"NAME", "SIZE", "UPDATED"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"widths/LC08_A.csv", "1024", "2024-03-01T12:00:00Z"}, strings.Fields(lines[1]))
}

func TestExports_ListerUnavailable(t *testing.T) {
	rt := defaultRuntime()
	rt.exportLister = func(context.Context, *zap.Logger) (domain.ExportLister, error) {
		return nil, errors.New("storage client: no credentials")
	}

	_, err := execute(t, rt, "exports", "rivers")
	assert.ErrorContains(t, err, "no credentials")
}
