package sign

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"amo-signer/internal/auth"
	"amo-signer/internal/client"
	"amo-signer/internal/models"
	"amo-signer/internal/testutil"

	"github.com/opencontainers/go-digest"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testGUID       = "@simple-addon"
	testVersion    = "1.0.0"
	testUploadPath = "/addons/@simple-addon/versions/1.0.0/"
	testStatusPath = "/addons/@simple-addon/versions/1.0.0/status/"
	testFilePath   = "/files/some-signed-file-1.2.3.xpi"
	testSignedBody = "signed-package-bytes"
	testXPIPath    = "/work/simple-addon.xpi"
	testOutDir     = "/downloads"
)

// fakeAMO serves queued status responses and records every request it sees
type fakeAMO struct {
	t *testing.T

	mu           sync.Mutex
	uploadStatus int
	uploadBody   string
	statuses     []string
	files        map[string]string
	requests     []string
	uploads      []string
	authHeaders  []string
}

func newFakeAMO(t *testing.T) (*fakeAMO, *httptest.Server) {
	t.Helper()

	amo := &fakeAMO{t: t, uploadStatus: http.StatusAccepted, files: map[string]string{testFilePath: testSignedBody}}
	server := httptest.NewServer(http.HandlerFunc(amo.handle))
	t.Cleanup(server.Close)
	amo.uploadBody = `{"url": "` + server.URL + testStatusPath + `"}`
	return amo, server
}

func (a *fakeAMO) handle(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.requests = append(a.requests, r.Method+" "+r.URL.Path)
	a.authHeaders = append(a.authHeaders, r.Header.Get("Authorization"))

	switch {
	case r.Method == http.MethodPut && r.URL.Path == testUploadPath:
		file, header, err := r.FormFile("upload")
		if !assert.NoError(a.t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(file)
		a.uploads = append(a.uploads, header.Filename+":"+string(data))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(a.uploadStatus)
		_, _ = w.Write([]byte(a.uploadBody))
	case r.Method == http.MethodGet && r.URL.Path == testStatusPath:
		if len(a.statuses) == 0 {
			a.t.Errorf("unexpected status request")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		body := a.statuses[0]
		if len(a.statuses) > 1 {
			a.statuses = a.statuses[1:]
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	case r.Method == http.MethodGet:
		content, ok := a.files[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte("no such file"))
			return
		}
		_, _ = w.Write([]byte(content))
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (a *fakeAMO) count(prefix string) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := 0
	for _, r := range a.requests {
		if strings.HasPrefix(r, prefix) {
			n++
		}
	}
	return n
}

func statusJSON(t *testing.T, status map[string]any) string {
	t.Helper()
	data, err := json.Marshal(status)
	require.NoError(t, err)
	return string(data)
}

func signedStatus(t *testing.T, serverURL string, overrides map[string]any) string {
	t.Helper()
	status := map[string]any{
		"active":         true,
		"processed":      true,
		"valid":          true,
		"reviewed":       true,
		"validation_url": serverURL + "/validation/",
		"files": []map[string]any{
			{"signed": true, "download_url": serverURL + testFilePath},
		},
	}
	for k, v := range overrides {
		status[k] = v
	}
	return statusJSON(t, status)
}

// fakeTimers fires interval timers immediately and holds the rest until the test fires them
type fakeTimers struct {
	interval  time.Duration
	hold      bool
	mu        sync.Mutex
	all       []*fakeTimer
	scheduled chan *fakeTimer
}

type fakeTimer struct {
	d     time.Duration
	f     func()
	mu    sync.Mutex
	stops int
	fired bool
}

func newFakeTimers(interval time.Duration) *fakeTimers {
	return &fakeTimers{interval: interval, scheduled: make(chan *fakeTimer, 100)}
}

func (ft *fakeTimers) AfterFunc(d time.Duration, f func()) Timer {
	timer := &fakeTimer{d: d, f: f}
	ft.mu.Lock()
	ft.all = append(ft.all, timer)
	ft.mu.Unlock()
	ft.scheduled <- timer
	if d == ft.interval && !ft.hold {
		timer.Fire()
	}
	return timer
}

func (ft *fakeTimers) timers() []*fakeTimer {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return append([]*fakeTimer(nil), ft.all...)
}

func (t *fakeTimer) Fire() {
	t.mu.Lock()
	if t.fired {
		t.mu.Unlock()
		return
	}
	t.fired = true
	t.mu.Unlock()
	t.f()
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stops++
	return !t.fired
}

func (t *fakeTimer) Stops() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stops
}

type countingProgress struct {
	mu       sync.Mutex
	animated int
	finished int
}

func (p *countingProgress) Animate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.animated++
}

func (p *countingProgress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finished++
}

const (
	testInterval = time.Millisecond
	testTimeout  = time.Hour
)

func newTestSigner(t *testing.T, serverURL string, opts ...Option) (*Signer, afero.Fs, *fakeTimers) {
	t.Helper()

	fs := testutil.MemFS(t, map[string]string{testXPIPath: "PK-unsigned-package"})
	require.NoError(t, fs.MkdirAll(testOutDir, 0o755))
	timers := newFakeTimers(testInterval)

	api := client.NewClient(serverURL, auth.Credentials{APIKey: "user:12345", APISecret: "some-secret"})
	base := []Option{
		WithFs(fs),
		WithTimers(timers),
		WithDownloadDir(testOutDir),
		WithStatusCheckInterval(testInterval),
		WithStatusCheckTimeout(testTimeout),
	}
	return NewSigner(api, append(base, opts...)...), fs, timers
}

func testRequest() models.SignRequest {
	return models.SignRequest{GUID: testGUID, Version: testVersion, XPIPath: testXPIPath}
}

func TestNewSigner_Defaults(t *testing.T) {
	s := NewSigner(nil)

	assert.Equal(t, DefaultStatusCheckInterval, s.statusCheckInterval)
	assert.Equal(t, DefaultStatusCheckTimeout, s.statusCheckTimeout)
	assert.IsType(t, RealTimers{}, s.timers)
	assert.IsType(t, noProgress{}, s.progress)
	assert.Empty(t, s.downloadDir)
}

func TestSign_Success(t *testing.T) {
	amo, server := newFakeAMO(t)
	amo.statuses = []string{signedStatus(t, server.URL, nil)}
	signer, fs, _ := newTestSigner(t, server.URL)

	result, err := signer.Sign(context.Background(), testRequest())
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, []string{testOutDir + "/some-signed-file-1.2.3.xpi"}, result.DownloadedFiles)
	require.Len(t, result.Files, 1)
	assert.Equal(t, digest.FromString(testSignedBody).String(), result.Files[0].Digest)
	assert.Equal(t, int64(len(testSignedBody)), result.Files[0].Size)
	assert.Equal(t, testSignedBody, testutil.ReadFile(t, fs, testOutDir+"/some-signed-file-1.2.3.xpi"))

	assert.Equal(t, []string{"simple-addon.xpi:PK-unsigned-package"}, amo.uploads)
	assert.Equal(t, 1, amo.count("PUT "))
	assert.Equal(t, 1, amo.count("GET "+testStatusPath))
	for _, h := range amo.authHeaders {
		assert.True(t, strings.HasPrefix(h, "JWT "), "every request carries a JWT: %q", h)
	}
}

func TestSign_VersionExists(t *testing.T) {
	amo, server := newFakeAMO(t)
	amo.uploadStatus = http.StatusConflict
	amo.uploadBody = `{"error": "Version already exists."}`
	signer, _, _ := newTestSigner(t, server.URL)

	result, err := signer.Sign(context.Background(), testRequest())
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Empty(t, result.DownloadedFiles)
	assert.Equal(t, 0, amo.count("GET "))
}

func TestSign_UploadRejected(t *testing.T) {
	amo, server := newFakeAMO(t)
	amo.uploadStatus = http.StatusBadRequest
	amo.uploadBody = `{"error": "Could not parse manifest"}`
	signer, _, _ := newTestSigner(t, server.URL)

	result, err := signer.Sign(context.Background(), testRequest())
	require.Error(t, err)

	assert.Nil(t, result)
	assert.True(t, client.IsBadResponse(err, http.StatusBadRequest))
	assert.Contains(t, err.Error(), "Could not parse manifest")
	assert.Equal(t, 0, amo.count("GET "))
}

func TestSign_UploadWithoutStatusURL(t *testing.T) {
	amo, server := newFakeAMO(t)
	amo.uploadBody = `{}`
	signer, _, _ := newTestSigner(t, server.URL)

	_, err := signer.Sign(context.Background(), testRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not include a status URL")
}

func TestSign_ValidationErrors(t *testing.T) {
	tests := []struct {
		name          string
		request       models.SignRequest
		expectedInErr string
	}{
		{
			name:          "missing guid",
			request:       models.SignRequest{Version: testVersion, XPIPath: testXPIPath},
			expectedInErr: "add-on id is required",
		},
		{
			name:          "missing package",
			request:       models.SignRequest{GUID: testGUID, Version: testVersion, XPIPath: "/work/missing.xpi"},
			expectedInErr: "not found or not readable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amo, server := newFakeAMO(t)
			signer, _, _ := newTestSigner(t, server.URL)

			_, err := signer.Sign(context.Background(), tt.request)
			require.Error(t, err)

			var validationErr *client.ValidationError
			assert.True(t, errors.As(err, &validationErr))
			assert.Contains(t, err.Error(), tt.expectedInErr)
			assert.Empty(t, amo.requests)
		})
	}
}

func TestSign_MissingCredentials(t *testing.T) {
	amo, server := newFakeAMO(t)
	fs := testutil.MemFS(t, map[string]string{testXPIPath: "PK"})
	signer := NewSigner(client.NewClient(server.URL, auth.Credentials{}), WithFs(fs))

	_, err := signer.Sign(context.Background(), testRequest())
	require.Error(t, err)

	assert.ErrorIs(t, err, auth.ErrMissingCredentials)
	assert.Empty(t, amo.requests)
}

func TestSubmit_ReturnsStatusURL(t *testing.T) {
	_, server := newFakeAMO(t)
	signer, _, _ := newTestSigner(t, server.URL)

	statusURL, err := signer.Submit(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, server.URL+testStatusPath, statusURL)
}

func TestSubmit_Conflict(t *testing.T) {
	amo, server := newFakeAMO(t)
	amo.uploadStatus = http.StatusConflict
	signer, _, _ := newTestSigner(t, server.URL)

	_, err := signer.Submit(context.Background(), testRequest())
	assert.ErrorIs(t, err, ErrVersionExists)
}
