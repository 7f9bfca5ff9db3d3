package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hexmodal/marathon/pkg/labels"
	"github.com/hexmodal/marathon/pkg/ledger"
	"github.com/hexmodal/marathon/pkg/logging"
	"github.com/hexmodal/marathon/pkg/robot"
	"github.com/hexmodal/marathon/pkg/status"
	"github.com/hexmodal/marathon/pkg/verify"
)

// fakeRunner scripts run dispatch outcomes.
type fakeRunner struct {
	mu       sync.Mutex
	requests []robot.Request
	result   bool
	err      error
	running  bool
	started  chan struct{}
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{result: true, started: make(chan struct{}, 8)}
}

func (f *fakeRunner) RunMarathon(req robot.Request) (bool, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	f.started <- struct{}{}
	return f.result, f.err
}

func (f *fakeRunner) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeRunner) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

// fakeVerifier returns canned statuses.
type fakeVerifier struct {
	results map[string]string
}

func (f *fakeVerifier) VerifySerials(_ context.Context, list []string, _ verify.Credentials) map[string]string {
	out := make(map[string]string, len(list))
	for _, s := range list {
		if status, ok := f.results[s]; ok {
			out[s] = status
		} else {
			out[s] = "NOT FOUND"
		}
	}
	return out
}

// fakeStream records emitted events; the websocket path is untested here.
type fakeStream struct {
	mu     sync.Mutex
	events []status.Event
}

func (f *fakeStream) Emit(message string, severity status.Severity) {
	f.mu.Lock()
	f.events = append(f.events, status.Event{Message: message, Type: severity})
	f.mu.Unlock()
}

func (f *fakeStream) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusSwitchingProtocols)
}

func (f *fakeStream) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	for i, e := range f.events {
		out[i] = e.Message
	}
	return out
}

type fixture struct {
	srv    *httptest.Server
	runner *fakeRunner
	ledger *ledger.Ledger
	stream *fakeStream
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	runner := newFakeRunner()
	l, err := ledger.New(t.TempDir())
	require.NoError(t, err)
	stream := &fakeStream{}
	logger, _ := logging.NewLogger("server-test")
	t.Cleanup(func() { logger.Close() })

	verifier := &fakeVerifier{results: map[string]string{"HEX-P-001": "PASS"}}
	s := New(runner, l, labels.NewRenderer("https://dashboard.hexmodal.com"), verifier, stream, logger)

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, runner: runner, ledger: l, stream: stream}
}

func (f *fixture) postJSON(t *testing.T, path string, body interface{}) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(f.srv.URL+path, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestDetectProduct(t *testing.T) {
	f := newFixture(t)

	resp := f.postJSON(t, "/api/detect-product", map[string]string{"serial": "HEX-P-001"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	decodeBody(t, resp, &body)
	assert.Equal(t, "HEX-P", body["product"])

	resp = f.postJSON(t, "/api/detect-product", map[string]string{"serial": "ZZZ-001"})
	decodeBody(t, resp, &body)
	assert.Equal(t, "", body["product"])
}

func TestValidateSerials(t *testing.T) {
	f := newFixture(t)

	resp := f.postJSON(t, "/api/validate-serials", map[string]string{
		"serials": "HEX-P-001\nHEX-P-001\na*b\n",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Valid      []string `json:"valid"`
		Duplicates []string `json:"duplicates"`
		Invalid    []struct {
			Serial string `json:"serial"`
			Reason string `json:"reason"`
		} `json:"invalid"`
	}
	decodeBody(t, resp, &body)
	assert.Equal(t, []string{"HEX-P-001"}, body.Valid)
	assert.Equal(t, []string{"HEX-P-001"}, body.Duplicates)
	require.Len(t, body.Invalid, 1)
	assert.Equal(t, "a*b", body.Invalid[0].Serial)
}

func TestGenerateLabels(t *testing.T) {
	f := newFixture(t)

	resp := f.postJSON(t, "/api/generate-labels", map[string][]string{
		"serials": {"HEX-P-001", "HEX-P-002"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Labels []struct {
			Serial string `json:"serial"`
			Image  string `json:"image"`
		} `json:"labels"`
	}
	decodeBody(t, resp, &body)
	require.Len(t, body.Labels, 2)
	assert.Equal(t, "HEX-P-001", body.Labels[0].Serial)

	raw, err := base64.StdEncoding.DecodeString(body.Labels[0].Image)
	require.NoError(t, err)
	_, err = png.Decode(bytes.NewReader(raw))
	assert.NoError(t, err)
}

func TestDownloadLabelsPDF(t *testing.T) {
	f := newFixture(t)

	resp := f.postJSON(t, "/api/download-labels-pdf", map[string][]string{"serials": {}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = f.postJSON(t, "/api/download-labels-pdf", map[string][]string{
		"serials": {"HEX-P-001"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	defer resp.Body.Close()

	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "attachment")
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "labels_")

	buf := new(bytes.Buffer)
	_, err := buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF")))
}

func TestVerifySerials(t *testing.T) {
	f := newFixture(t)

	resp := f.postJSON(t, "/api/verify-serials", map[string]string{
		"serials":        "HEX-P-001\nHEX-P-002",
		"session_cookie": "sess",
		"csrf_token":     "csrf",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Results map[string]string `json:"results"`
		Summary verify.Summary    `json:"summary"`
	}
	decodeBody(t, resp, &body)
	assert.Equal(t, "PASS", body.Results["HEX-P-001"])
	assert.Equal(t, "NOT FOUND", body.Results["HEX-P-002"])
	assert.Equal(t, verify.Summary{Total: 2, Passed: 1, Failed: 1}, body.Summary)

	assert.Contains(t, strings.Join(f.stream.messages(), "|"), "Verifying 2 serials")
}

func TestVerifySerialsEmpty(t *testing.T) {
	f := newFixture(t)

	resp := f.postJSON(t, "/api/verify-serials", map[string]string{"serials": "  \n "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func marathonBody(overrides map[string]string) map[string]string {
	body := map[string]string{
		"serials":       "HEX-P-001\nHEX-P-002",
		"product":       "",
		"odoo_email":    "op@example.com",
		"odoo_password": "secret",
	}
	for k, v := range overrides {
		body[k] = v
	}
	return body
}

func TestMarathonDispatch(t *testing.T) {
	f := newFixture(t)

	resp := f.postJSON(t, "/api/marathon", marathonBody(nil))
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var body struct {
		Status  string `json:"status"`
		Count   int    `json:"count"`
		Product string `json:"product"`
	}
	decodeBody(t, resp, &body)
	assert.Equal(t, "started", body.Status)
	assert.Equal(t, 2, body.Count)
	// Product detected from the first serial.
	assert.Equal(t, "HEX-P", body.Product)

	select {
	case <-f.runner.started:
	case <-time.After(time.Second):
		t.Fatal("run never dispatched")
	}

	// The completed run lands in the ledger.
	require.Eventually(t, func() bool {
		return len(f.ledger.History(0)) == 1
	}, time.Second, 10*time.Millisecond)

	entry := f.ledger.History(0)[0]
	assert.Equal(t, "HEX-P", entry.Product)
	assert.True(t, entry.Success)
	assert.Equal(t, []string{"HEX-P-001", "HEX-P-002"}, entry.Serials)
}

func TestMarathonRequiresCredentials(t *testing.T) {
	f := newFixture(t)

	resp := f.postJSON(t, "/api/marathon", marathonBody(map[string]string{"odoo_password": ""}))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
	assert.Equal(t, 0, f.runner.requestCount())
}

func TestMarathonNoValidSerials(t *testing.T) {
	f := newFixture(t)

	resp := f.postJSON(t, "/api/marathon", marathonBody(map[string]string{"serials": "  \n  "}))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestMarathonUndetectableProduct(t *testing.T) {
	f := newFixture(t)

	resp := f.postJSON(t, "/api/marathon", marathonBody(map[string]string{"serials": "ZZZ-001"}))
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body map[string]string
	decodeBody(t, resp, &body)
	assert.Contains(t, body["error"], "Could not detect product")
}

func TestMarathonBusy(t *testing.T) {
	f := newFixture(t)
	f.runner.running = true

	resp := f.postJSON(t, "/api/marathon", marathonBody(nil))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
	assert.Equal(t, 0, f.runner.requestCount())
	assert.Empty(t, f.ledger.History(0))
}

func TestMarathonRejectedRunNotRecorded(t *testing.T) {
	f := newFixture(t)
	// The runner loses the start race after the busy pre-check passed.
	f.runner.err = robot.ErrBusy

	resp := f.postJSON(t, "/api/marathon", marathonBody(nil))
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()

	select {
	case <-f.runner.started:
	case <-time.After(time.Second):
		t.Fatal("run never dispatched")
	}

	// Give the dispatch goroutine a moment, then confirm nothing landed.
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, f.ledger.History(0))
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ledger.Record([]string{"SN001"}, "HEX-P", true))

	resp, err := http.Get(f.srv.URL + "/api/stats")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Today ledger.DayStats   `json:"today"`
		All   ledger.Statistics `json:"all"`
	}
	decodeBody(t, resp, &body)
	assert.Equal(t, 1, body.Today.Batches)
	assert.Equal(t, 1, body.All.TotalBatches)
}

func TestHistoryPageSize(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < historyPageSize+5; i++ {
		require.NoError(t, f.ledger.Record([]string{"SN001"}, "HEX-P", true))
	}

	resp, err := http.Get(f.srv.URL + "/api/history")
	require.NoError(t, err)

	var body []ledger.Batch
	decodeBody(t, resp, &body)
	assert.Len(t, body, historyPageSize)
}

func TestDevices(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.srv.URL + "/api/devices")
	require.NoError(t, err)

	var body struct {
		Devices []string `json:"devices"`
	}
	decodeBody(t, resp, &body)
	assert.NotEmpty(t, body.Devices)
	assert.Contains(t, body.Devices, "HEX-P")
}
