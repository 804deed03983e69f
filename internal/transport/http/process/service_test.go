package process

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"imalink-core-go/internal/domain/photo"
	"imalink-core-go/internal/domain/rawimage"
	"imalink-core-go/internal/platform/cache"
	"imalink-core-go/internal/platform/config"
	"imalink-core-go/internal/platform/logging"
	httptransport "imalink-core-go/internal/transport/http"
)

func newTestService(t *testing.T, records *cache.RecordCache) *httptransport.Router {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Raw.PoolSize = 1
	cfg.Raw.AcquireTimeout = 50 * time.Millisecond

	router, err := httptransport.Build(httptransport.Options{Config: cfg, Logger: logging.DefaultLogger})
	if err != nil {
		t.Fatalf("build router: %v", err)
	}
	pipeline := photo.NewPipeline(photo.Options{Config: cfg, Logger: logging.DefaultLogger})
	NewService(cfg, logging.DefaultLogger, pipeline, records).Register(router)
	return router
}

func encodeTestPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func encodeTestJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func multipartRequest(t *testing.T, filename string, data []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	fw.Write(data)
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/v1/process", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func jsonRequest(t *testing.T, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/process", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestProcess_MultipartUpload(t *testing.T) {
	router := newTestService(t, nil)

	rec := httptest.NewRecorder()
	router.Engine.ServeHTTP(rec, multipartRequest(t, "plain.png", encodeTestPNG(t, 800, 600), nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}

	var egg map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &egg); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}

	// Nullable fields must be present as explicit nulls.
	for _, field := range []string{
		"coldpreview_base64", "coldpreview_width", "coldpreview_height",
		"taken_at", "camera_make", "camera_model",
		"gps_latitude", "gps_longitude",
		"iso", "aperture", "shutter_speed", "focal_length",
		"lens_model", "lens_make",
	} {
		raw, present := egg[field]
		if !present {
			t.Errorf("field %s absent from response", field)
			continue
		}
		if string(raw) != "null" {
			t.Errorf("field %s: got %s, want null", field, raw)
		}
	}
	if string(egg["has_gps"]) != "false" {
		t.Errorf("has_gps: got %s", egg["has_gps"])
	}
	if string(egg["primary_filename"]) != `"plain.png"` {
		t.Errorf("primary_filename: got %s", egg["primary_filename"])
	}
	var hothash string
	json.Unmarshal(egg["hothash"], &hothash)
	if len(hothash) != 64 {
		t.Errorf("hothash: got %q", hothash)
	}
}

func TestProcess_MultipartWithColdpreview(t *testing.T) {
	router := newTestService(t, nil)

	rec := httptest.NewRecorder()
	router.Engine.ServeHTTP(rec, multipartRequest(t, "big.jpg", encodeTestJPEG(t, 1200, 900),
		map[string]string{"coldpreview_size": "400"}))

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var egg PhotoEgg
	if err := json.Unmarshal(rec.Body.Bytes(), &egg); err != nil {
		t.Fatal(err)
	}
	if egg.ColdpreviewBase64 == nil || egg.ColdpreviewWidth == nil || *egg.ColdpreviewWidth != 400 {
		t.Errorf("coldpreview: got %+v", egg)
	}
	if egg.HotpreviewWidth != 150 {
		t.Errorf("hotpreview width: got %d", egg.HotpreviewWidth)
	}
}

func TestProcess_JSONFilePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shot.jpg")
	if err := os.WriteFile(path, encodeTestJPEG(t, 640, 480), 0o644); err != nil {
		t.Fatal(err)
	}

	router := newTestService(t, nil)
	rec := httptest.NewRecorder()
	router.Engine.ServeHTTP(rec, jsonRequest(t, `{"file_path":"`+path+`"}`))

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var egg PhotoEgg
	json.Unmarshal(rec.Body.Bytes(), &egg)
	if egg.PrimaryFilename != "shot.jpg" {
		t.Errorf("primary_filename: got %q", egg.PrimaryFilename)
	}
	if egg.Width != 640 || egg.Height != 480 {
		t.Errorf("dimensions: got %dx%d", egg.Width, egg.Height)
	}
}

func TestProcess_ErrorStatuses(t *testing.T) {
	rawimage.Register(nil)
	router := newTestService(t, nil)

	cr2 := append([]byte{'I', 'I', 0x2A, 0x00, 0x10, 0x00, 0x00, 0x00, 'C', 'R', 0x02, 0x00}, make([]byte, 32)...)

	cases := []struct {
		name      string
		request   *http.Request
		status    int
		errorKind string
		contains  string
	}{
		{"missing file_path", jsonRequest(t, `{}`), http.StatusBadRequest, "invalid_parameter", ""},
		{"bad json", jsonRequest(t, `{`), http.StatusBadRequest, "invalid_parameter", ""},
		{"unreadable path", jsonRequest(t, `{"file_path":"/no/such/file.jpg"}`), http.StatusBadRequest, "invalid_parameter", ""},
		{"coldpreview too small", multipartRequest(t, "x.png", encodeTestPNG(t, 300, 300),
			map[string]string{"coldpreview_size": "100"}), http.StatusBadRequest, "invalid_parameter", ""},
		{"coldpreview zero", multipartRequest(t, "x.png", encodeTestPNG(t, 300, 300),
			map[string]string{"coldpreview_size": "0"}), http.StatusBadRequest, "invalid_parameter", "coldpreview_size"},
		{"coldpreview zero via json", jsonRequest(t, `{"file_path":"/no/such/file.jpg","coldpreview_size":0}`),
			http.StatusBadRequest, "invalid_parameter", "coldpreview_size"},
		{"coldpreview negative via json", jsonRequest(t, `{"file_path":"/no/such/file.jpg","coldpreview_size":-1}`),
			http.StatusBadRequest, "invalid_parameter", "coldpreview_size"},
		{"unsupported payload", multipartRequest(t, "doc.pdf", []byte("%PDF-1.4 nope"), nil),
			http.StatusUnsupportedMediaType, "unsupported_format", ""},
		{"raw without capability", multipartRequest(t, "shot.cr2", cr2, nil),
			http.StatusNotImplemented, "missing_capability", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.Engine.ServeHTTP(rec, tc.request)
			if rec.Code != tc.status {
				t.Fatalf("status %d, want %d (%s)", rec.Code, tc.status, rec.Body.String())
			}
			var resp ErrorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatal(err)
			}
			if resp.Error != tc.errorKind {
				t.Fatalf("error kind %q, want %q", resp.Error, tc.errorKind)
			}
			if tc.contains != "" && !strings.Contains(resp.Message, tc.contains) {
				t.Fatalf("message %q does not mention %q", resp.Message, tc.contains)
			}
		})
	}
}

func TestLivenessAndStatus(t *testing.T) {
	router := newTestService(t, nil)

	for _, path := range []string{"/", "/health", "/api/status"} {
		rec := httptest.NewRecorder()
		router.Engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status %d", path, rec.Code)
		}
	}
}

func TestProcess_CacheHit(t *testing.T) {
	mr := miniredis.RunT(t)
	records, err := cache.New(cache.Config{
		Addr:   mr.Addr(),
		Prefix: "test:egg:",
		TTL:    time.Minute,
	}, logging.DefaultLogger)
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	defer records.Close()

	router := newTestService(t, records)
	data := encodeTestPNG(t, 400, 300)

	first := httptest.NewRecorder()
	router.Engine.ServeHTTP(first, multipartRequest(t, "a.png", data, nil))
	if first.Code != http.StatusOK {
		t.Fatalf("first: status %d", first.Code)
	}

	second := httptest.NewRecorder()
	router.Engine.ServeHTTP(second, multipartRequest(t, "a.png", data, nil))
	if second.Code != http.StatusOK {
		t.Fatalf("second: status %d", second.Code)
	}
	if !bytes.Equal(first.Body.Bytes(), second.Body.Bytes()) {
		t.Fatal("cached response differs from the computed one")
	}
}
