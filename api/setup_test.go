package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/calendar"
	"github.com/warp/attendance-engine/imagestore"
	"github.com/warp/attendance-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var ist = time.FixedZone("IST", 5*3600+1800)

type stubFaces struct {
	mu        sync.Mutex
	verdict   attendance.Verdict
	err       error
	recognize string
}

func (f *stubFaces) Verify(context.Context, string, []byte, string) (attendance.Verdict, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.verdict, f.err
}

func (f *stubFaces) Recognize(context.Context, []byte) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recognize, f.recognize != "", f.err
}

type testServer struct {
	srv     *httptest.Server
	store   *sqlite.Store
	faces   *stubFaces
	handler *Handler
}

// newTestServer runs the full router on a sqlite :memory: store with the
// clock fixed at 10:00 IST on today.
func newTestServer(t *testing.T, today string) *testServer {
	t.Helper()

	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	d := calendar.MustParse(today)
	now := time.Date(d.Year(), d.Month(), d.Day(), 10, 0, 0, 0, ist)

	imageDir := t.TempDir()
	images, err := imagestore.NewLocal(imageDir, "/images")
	require.NoError(t, err)
	faces := &stubFaces{verdict: attendance.VerdictPresent}

	svc := attendance.NewService(store, attendance.Dependencies{
		Directory: store,
		Leaves:    store,
		Faces:     faces,
		Images:    images,
		Location:  ist,
		Timeout:   time.Second,
		Now:       func() time.Time { return now },
		Logger:    logger,
	})
	scheduler := NewWeekendScheduler(svc, store, logger)
	h := NewHandler(svc, store, images, scheduler, logger)

	srv := httptest.NewServer(NewRouter(h, RouterOptions{ImageDir: imageDir, ImagePrefix: "/images"}))
	t.Cleanup(srv.Close)

	return &testServer{srv: srv, store: store, faces: faces, handler: h}
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 128, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// multipartBody builds a form with the given fields and an optional file part.
func multipartBody(t *testing.T, fields map[string][]string, file []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, vs := range fields {
		for _, v := range vs {
			require.NoError(t, mw.WriteField(k, v))
		}
	}
	if file != nil {
		fw, err := mw.CreateFormFile("file", "face.png")
		require.NoError(t, err)
		_, err = fw.Write(file)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func (ts *testServer) do(t *testing.T, method, path, contentType string, body io.Reader) (int, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, ts.srv.URL+path, body)
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := ts.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func (ts *testServer) postJSON(t *testing.T, path string, v any) (int, []byte) {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return ts.do(t, http.MethodPost, path, "application/json", bytes.NewReader(b))
}

func (ts *testServer) get(t *testing.T, path string) (int, []byte) {
	t.Helper()
	return ts.do(t, http.MethodGet, path, "", nil)
}

func (ts *testServer) register(t *testing.T, id, joining string, offs ...string) (int, []byte) {
	t.Helper()
	body, ct := multipartBody(t, map[string][]string{
		"employeeId":  {id},
		"name":        {"Employee " + id},
		"joiningDate": {joining},
		"weeklyOffs":  offs,
	}, pngBytes(t, 64, 64))
	return ts.do(t, http.MethodPost, "/api/employees", ct, body)
}

func (ts *testServer) checkIn(t *testing.T, id string, extra map[string]string) (int, []byte) {
	t.Helper()
	fields := map[string][]string{"employeeId": {id}}
	for k, v := range extra {
		fields[k] = []string{v}
	}
	body, ct := multipartBody(t, fields, pngBytes(t, 32, 32))
	return ts.do(t, http.MethodPost, "/api/attendance/checkin", ct, body)
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}
