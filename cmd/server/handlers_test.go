//go:build !js && !wasm
// +build !js,!wasm

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/himanishpuri/songid/internal/recognize"
	"github.com/himanishpuri/songid/internal/service"
	"github.com/himanishpuri/songid/internal/storage"
	"github.com/himanishpuri/songid/pkg/signature"
)

type fakeBackend struct {
	sig       *signature.Signature
	song      *recognize.Song
	err       error
	uploaded  []byte
	submitted *signature.Signature
	history   []storage.Recognition
	deleted   string
}

func (f *fakeBackend) SignatureFromFile(ctx context.Context, path string) (*signature.Signature, error) {
	f.uploaded, _ = os.ReadFile(path)
	return f.sig, f.err
}

func (f *fakeBackend) RecognizeFile(ctx context.Context, path string) (*recognize.Song, error) {
	f.uploaded, _ = os.ReadFile(path)
	return f.song, f.err
}

func (f *fakeBackend) RecognizeSignature(ctx context.Context, sig *signature.Signature) (*recognize.Song, error) {
	f.submitted = sig
	return f.song, f.err
}

func (f *fakeBackend) History(limit int) ([]storage.Recognition, error) {
	if limit > 0 && limit < len(f.history) {
		return f.history[:limit], nil
	}
	return f.history, nil
}

func (f *fakeBackend) HistoryCount() (int, error) { return len(f.history), nil }

func (f *fakeBackend) GetRecognition(id string) (*storage.Recognition, error) {
	for i := range f.history {
		if f.history[i].ID == id {
			return &f.history[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, id)
}

func (f *fakeBackend) DeleteRecognition(id string) error {
	if _, err := f.GetRecognition(id); err != nil {
		return err
	}
	f.deleted = id
	return nil
}

func (f *fakeBackend) ExportHistory(w io.Writer) error {
	_, err := io.WriteString(w, "id,title\nabc,Sandstorm\n")
	return err
}

func testSignature() *signature.Signature {
	return &signature.Signature{
		SampleRateHz:  signature.SampleRate,
		NumberSamples: 3 * signature.SampleRate,
		Peaks: map[signature.Band][]signature.FrequencyPeak{
			signature.Band520To1450: {
				{Band: signature.Band520To1450, FrameOffset: 10, Magnitude: 9000, CorrectedBin: 128 * 64},
				{Band: signature.Band520To1450, FrameOffset: 20, Magnitude: 9100, CorrectedBin: 129 * 64},
			},
		},
	}
}

func newTestServer(t *testing.T, backend *fakeBackend) http.Handler {
	t.Helper()
	s := NewServer(backend, &ServerConfig{
		DBPath:         "test.db",
		TempDir:        t.TempDir(),
		AllowedOrigins: []string{"*"},
	})
	return s.setupRoutes()
}

func multipartBody(t *testing.T, field, name string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(field, name)
	if err != nil {
		t.Fatalf("CreateFormFile failed: %v", err)
	}
	fw.Write(content)
	mw.Close()
	return &body, mw.FormDataContentType()
}

func do(t *testing.T, h http.Handler, req *http.Request, wantStatus int, out any) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != wantStatus {
		t.Fatalf("%s %s: status %d, expected %d (%s)", req.Method, req.URL.Path, rec.Code, wantStatus, rec.Body.String())
	}
	if out != nil {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("Response is not JSON: %v", err)
		}
	}
	return rec
}

func TestHealth(t *testing.T) {
	h := newTestServer(t, &fakeBackend{})

	var body map[string]string
	do(t, h, httptest.NewRequest(http.MethodGet, "/health", nil), http.StatusOK, &body)
	if body["status"] != "healthy" {
		t.Errorf("Unexpected health body %v", body)
	}

	var metrics MetricsResponse
	do(t, h, httptest.NewRequest(http.MethodGet, "/api/health/metrics", nil), http.StatusOK, &metrics)
	if metrics.SampleRate != signature.SampleRate || metrics.DatabasePath != "test.db" {
		t.Errorf("Unexpected metrics %+v", metrics)
	}
}

func TestSignatureUpload(t *testing.T) {
	backend := &fakeBackend{sig: testSignature()}
	h := newTestServer(t, backend)

	body, ctype := multipartBody(t, "audio", "clip.wav", []byte("RIFF....WAVE"))
	req := httptest.NewRequest(http.MethodPost, "/api/signature", body)
	req.Header.Set("Content-Type", ctype)

	var resp SignatureResponse
	do(t, h, req, http.StatusOK, &resp)

	if string(backend.uploaded) != "RIFF....WAVE" {
		t.Errorf("Upload not passed through: %q", backend.uploaded)
	}
	if resp.PeakCount != 2 || resp.DurationMs != 3000 {
		t.Errorf("Unexpected summary %+v", resp)
	}
	decoded, err := signature.DecodeURI(resp.URI)
	if err != nil {
		t.Fatalf("Returned URI does not decode: %v", err)
	}
	if !decoded.Equal(backend.sig) {
		t.Error("Returned URI differs from the signature")
	}
}

func TestSignatureUploadErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		field      string
		wantStatus int
	}{
		{"missing file", nil, "other", http.StatusBadRequest},
		{"silent", service.ErrSilent, "audio", http.StatusUnprocessableEntity},
		{"too short", fmt.Errorf("generating signature: %w", signature.ErrInputTooShort), "audio", http.StatusUnprocessableEntity},
		{"ffmpeg failure", fmt.Errorf("audio conversion failed"), "audio", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer(t, &fakeBackend{err: tt.err})
			body, ctype := multipartBody(t, tt.field, "clip.wav", []byte("x"))
			req := httptest.NewRequest(http.MethodPost, "/api/signature", body)
			req.Header.Set("Content-Type", ctype)

			var resp ErrorResponse
			do(t, h, req, tt.wantStatus, &resp)
			if resp.Code != tt.wantStatus {
				t.Errorf("Error body code %d", resp.Code)
			}
		})
	}
}

func TestDecode(t *testing.T) {
	h := newTestServer(t, &fakeBackend{})
	uri, err := signature.EncodeURI(testSignature())
	if err != nil {
		t.Fatalf("EncodeURI failed: %v", err)
	}

	reqBody, _ := json.Marshal(SignatureRequest{URI: uri})
	var resp SignatureResponse
	do(t, h, httptest.NewRequest(http.MethodPost, "/api/decode?peaks=true", bytes.NewReader(reqBody)), http.StatusOK, &resp)

	if len(resp.Bands) != 1 || resp.Bands[0].Count != 2 || len(resp.Bands[0].Peaks) != 2 {
		t.Fatalf("Unexpected bands %+v", resp.Bands)
	}
	if got := resp.Bands[0].Peaks[0].FrequencyHz; got != 1000 {
		t.Errorf("Peak frequency %v, expected 1000", got)
	}
}

func TestDecodeRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "uri="},
		{"empty uri", `{"uri": ""}`},
		{"wrong prefix", `{"uri": "data:text/plain;base64,AAAA"}`},
		{"corrupt", `{"uri": "` + signature.DataURIPrefix + `AAAAAAAA"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer(t, &fakeBackend{})
			do(t, h, httptest.NewRequest(http.MethodPost, "/api/decode", strings.NewReader(tt.body)), http.StatusBadRequest, nil)
		})
	}
}

func TestRecognizeSignature(t *testing.T) {
	offset := 12.5
	backend := &fakeBackend{song: &recognize.Song{
		TrackKey: "1", Title: "Sandstorm", Artist: "Darude", Offset: &offset,
		RecognizedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}}
	h := newTestServer(t, backend)

	uri, _ := signature.EncodeURI(testSignature())
	reqBody, _ := json.Marshal(SignatureRequest{URI: uri})

	var resp RecognizeResponse
	do(t, h, httptest.NewRequest(http.MethodPost, "/api/recognize/signature", bytes.NewReader(reqBody)), http.StatusOK, &resp)

	if !resp.Matched || resp.Song == nil || resp.Song.Title != "Sandstorm" {
		t.Fatalf("Unexpected response %+v", resp)
	}
	if resp.Song.OffsetSec == nil || *resp.Song.OffsetSec != 12.5 {
		t.Errorf("Offset lost: %v", resp.Song.OffsetSec)
	}
	if !backend.submitted.Equal(testSignature()) {
		t.Error("Backend received a different signature")
	}
}

func TestRecognizeNoMatch(t *testing.T) {
	h := newTestServer(t, &fakeBackend{err: recognize.ErrNoMatch})

	body, ctype := multipartBody(t, "audio", "clip.mp3", []byte("ID3"))
	req := httptest.NewRequest(http.MethodPost, "/api/recognize", body)
	req.Header.Set("Content-Type", ctype)

	var resp RecognizeResponse
	do(t, h, req, http.StatusOK, &resp)
	if resp.Matched || resp.Song != nil {
		t.Errorf("Expected no match, got %+v", resp)
	}
}

func TestHistoryEndpoints(t *testing.T) {
	backend := &fakeBackend{history: []storage.Recognition{
		{ID: "a", Title: "One", Artist: "X", Hits: 1},
		{ID: "b", Title: "Two", Artist: "Y", Hits: 3},
	}}
	h := newTestServer(t, backend)

	var list HistoryResponse
	do(t, h, httptest.NewRequest(http.MethodGet, "/api/history?limit=1", nil), http.StatusOK, &list)
	if list.Count != 1 || list.Recognitions[0].ID != "a" {
		t.Errorf("Unexpected history %+v", list)
	}
	do(t, h, httptest.NewRequest(http.MethodGet, "/api/history?limit=x", nil), http.StatusBadRequest, nil)

	var rec storage.Recognition
	do(t, h, httptest.NewRequest(http.MethodGet, "/api/history/b", nil), http.StatusOK, &rec)
	if rec.Title != "Two" || rec.Hits != 3 {
		t.Errorf("Unexpected recognition %+v", rec)
	}
	do(t, h, httptest.NewRequest(http.MethodGet, "/api/history/zzz", nil), http.StatusNotFound, nil)

	var del DeleteResponse
	do(t, h, httptest.NewRequest(http.MethodDelete, "/api/history/a", nil), http.StatusOK, &del)
	if del.ID != "a" || backend.deleted != "a" {
		t.Errorf("Unexpected delete %+v / %q", del, backend.deleted)
	}
	do(t, h, httptest.NewRequest(http.MethodDelete, "/api/history/zzz", nil), http.StatusNotFound, nil)

	out := do(t, h, httptest.NewRequest(http.MethodGet, "/api/history/export", nil), http.StatusOK, nil)
	if ct := out.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("Export content type %q", ct)
	}
	if !strings.Contains(out.Body.String(), "Sandstorm") {
		t.Errorf("Unexpected export %q", out.Body.String())
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h := newTestServer(t, &fakeBackend{})
	for _, target := range []string{"/api/signature", "/api/decode", "/api/recognize", "/api/recognize/signature"} {
		do(t, h, httptest.NewRequest(http.MethodGet, target, nil), http.StatusMethodNotAllowed, nil)
	}
	do(t, h, httptest.NewRequest(http.MethodPost, "/api/history", nil), http.StatusMethodNotAllowed, nil)
}

func TestCORS(t *testing.T) {
	s := NewServer(&fakeBackend{}, &ServerConfig{AllowedOrigins: []string{"https://app.example"}})
	h := s.setupRoutes()

	req := httptest.NewRequest(http.MethodOptions, "/api/decode", nil)
	req.Header.Set("Origin", "https://app.example")
	rec := do(t, h, req, http.StatusNoContent, nil)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Errorf("Allow-Origin %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = do(t, h, req, http.StatusOK, nil)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Unexpected Allow-Origin %q for disallowed origin", got)
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded", map[string]string{"X-Forwarded-For": "1.2.3.4, 10.0.0.1"}, "127.0.0.1:1", "1.2.3.4"},
		{"real ip", map[string]string{"X-Real-IP": "5.6.7.8"}, "127.0.0.1:1", "5.6.7.8"},
		{"remote", nil, "9.9.9.9:4000", "9.9.9.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := getClientIP(req); got != tt.want {
				t.Errorf("getClientIP = %q, expected %q", got, tt.want)
			}
		})
	}
}
