package gateway

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/haivivi/scribe/pkg/archive"
	"github.com/haivivi/scribe/pkg/sauc"
	"github.com/haivivi/scribe/pkg/store"
)

// stubRecognizer fakes the upstream speech engine.
type stubRecognizer struct {
	text  string
	snaps []string
	err   error
}

func (r *stubRecognizer) Stream(_ context.Context, _ iter.Seq[[]byte], _ bool) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if r.err != nil {
			yield("", r.err)
			return
		}
		for _, s := range r.snaps {
			if !yield(s, nil) {
				return
			}
		}
	}
}

func (r *stubRecognizer) Transcribe(_ context.Context, _ []byte, _ bool) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	return r.text, nil
}

func (r *stubRecognizer) Configured() bool { return true }

func newTestServer(t *testing.T, rec Recognizer) (*httptest.Server, *store.Store, *archive.Local) {
	t.Helper()
	st, err := store.Open(store.Options{InMemory: true})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	arch, err := archive.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("local archive: %v", err)
	}

	cfg := &Config{
		Listen:                     ":0",
		DataDir:                    t.TempDir(),
		TranscribeWSIdleTimeoutSec: 300,
	}
	srv := httptest.NewServer(New(Options{
		Config:     cfg,
		Recognizer: rec,
		Store:      st,
		Archive:    arch,
	}).Handler())
	t.Cleanup(srv.Close)
	return srv, st, arch
}

// wavBytes builds a minimal PCM WAV file.
func wavBytes(t *testing.T, rate, channels int, samples []int16) []byte {
	t.Helper()
	var data bytes.Buffer
	for _, s := range samples {
		binary.Write(&data, binary.LittleEndian, s)
	}
	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+data.Len()))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(rate))
	binary.Write(&buf, binary.LittleEndian, uint32(rate*channels*2))
	binary.Write(&buf, binary.LittleEndian, uint16(channels*2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(data.Len()))
	buf.Write(data.Bytes())
	return buf.Bytes()
}

func multipartUpload(t *testing.T, fields map[string]string, filename string, audio []byte) (io.Reader, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field %s: %v", k, err)
		}
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("audio", filename)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := fw.Write(audio); err != nil {
			t.Fatalf("write audio: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return &body, mw.FormDataContentType()
}

func decodeError(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body.Error
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(t, &stubRecognizer{})

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %q, want %q", body["status"], "ok")
	}
}

func TestTranscribeUpload(t *testing.T) {
	srv, st, arch := newTestServer(t, &stubRecognizer{text: "今天天气不错。"})

	audio := wavBytes(t, 16000, 1, make([]int16, 3200)) // 200ms of silence
	body, ctype := multipartUpload(t, nil, "meeting.wav", audio)
	resp, err := http.Post(srv.URL+"/api/v1/transcribe", ctype, body)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var got transcribeResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID == "" {
		t.Fatal("response has no record ID")
	}
	if got.Text != "今天天气不错。" {
		t.Errorf("text = %q", got.Text)
	}
	if got.Engine != EngineVolcengine {
		t.Errorf("engine = %q, want %q", got.Engine, EngineVolcengine)
	}
	if got.DurationMS != 200 {
		t.Errorf("duration_ms = %d, want 200", got.DurationMS)
	}

	rec, err := st.Get(context.Background(), got.ID)
	if err != nil {
		t.Fatalf("stored record: %v", err)
	}
	if rec.Text != got.Text || rec.AudioBytes != int64(len(audio)) {
		t.Errorf("record = %+v", rec)
	}

	rc, err := arch.Open(context.Background(), "uploads/"+got.ID+".wav")
	if err != nil {
		t.Fatalf("archived upload: %v", err)
	}
	defer rc.Close()
	saved, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read archived upload: %v", err)
	}
	if !bytes.Equal(saved, audio) {
		t.Errorf("archived %d bytes, want the %d-byte original", len(saved), len(audio))
	}
}

func TestTranscribeUploadRejects(t *testing.T) {
	audio := wavBytes(t, 16000, 1, make([]int16, 160))

	tests := []struct {
		name     string
		fields   map[string]string
		filename string
		audio    []byte
		wantMsg  string
	}{
		{
			name:     "unsupported engine",
			fields:   map[string]string{"engine": "whisper"},
			filename: "a.wav",
			audio:    audio,
			wantMsg:  "unsupported engine: whisper",
		},
		{
			name:    "missing file",
			wantMsg: "missing audio file",
		},
		{
			name:     "bad extension",
			filename: "a.mp3",
			audio:    audio,
			wantMsg:  "only WAV audio is supported",
		},
		{
			name:     "not wav content",
			filename: "a.wav",
			audio:    []byte("definitely not riff"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _, _ := newTestServer(t, &stubRecognizer{text: "x"})
			body, ctype := multipartUpload(t, tt.fields, tt.filename, tt.audio)
			resp, err := http.Post(srv.URL+"/api/v1/transcribe", ctype, body)
			if err != nil {
				t.Fatalf("POST: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", resp.StatusCode)
			}
			if msg := decodeError(t, resp); tt.wantMsg != "" && msg != tt.wantMsg {
				t.Errorf("error = %q, want %q", msg, tt.wantMsg)
			}
		})
	}
}

func TestTranscribeUploadUnconfigured(t *testing.T) {
	srv, _, _ := newTestServer(t, &stubRecognizer{err: sauc.ErrUnconfigured})

	audio := wavBytes(t, 16000, 1, make([]int16, 160))
	body, ctype := multipartUpload(t, nil, "a.wav", audio)
	resp, err := http.Post(srv.URL+"/api/v1/transcribe", ctype, body)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
}

func TestTranscribeUploadUpstreamError(t *testing.T) {
	srv, _, _ := newTestServer(t, &stubRecognizer{err: errors.New("engine exploded")})

	audio := wavBytes(t, 16000, 1, make([]int16, 160))
	body, ctype := multipartUpload(t, nil, "a.wav", audio)
	resp, err := http.Post(srv.URL+"/api/v1/transcribe", ctype, body)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", resp.StatusCode)
	}
}

func TestRecordsAPI(t *testing.T) {
	srv, st, _ := newTestServer(t, &stubRecognizer{})
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Minute)
	for i, text := range []string{"first", "second"} {
		rec := &store.Record{Engine: EngineVolcengine, Text: text, CreatedAt: base.Add(time.Duration(i) * time.Second)}
		if err := st.Put(ctx, rec); err != nil {
			t.Fatalf("seed record: %v", err)
		}
	}

	resp, err := http.Get(srv.URL + "/api/v1/transcriptions")
	if err != nil {
		t.Fatalf("GET list: %v", err)
	}
	var recs []*store.Record
	if err := json.NewDecoder(resp.Body).Decode(&recs); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	resp.Body.Close()
	if len(recs) != 2 {
		t.Fatalf("len(list) = %d, want 2", len(recs))
	}
	if recs[0].Text != "second" || recs[1].Text != "first" {
		t.Errorf("list order = %q, %q; want newest first", recs[0].Text, recs[1].Text)
	}

	id := recs[0].ID
	resp, err = http.Get(srv.URL + "/api/v1/transcriptions/" + id)
	if err != nil {
		t.Fatalf("GET record: %v", err)
	}
	var rec store.Record
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	resp.Body.Close()
	if rec.Text != "second" {
		t.Errorf("record text = %q, want %q", rec.Text, "second")
	}

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/v1/transcriptions/"+id, nil)
	if err != nil {
		t.Fatalf("build DELETE: %v", err)
	}
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("DELETE status = %d, want 204", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/api/v1/transcriptions/" + id)
	if err != nil {
		t.Fatalf("GET deleted record: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status after delete = %d, want 404", resp.StatusCode)
	}

	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("second DELETE: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("second DELETE status = %d, want 404", resp.StatusCode)
	}
}

func TestRecordsAPIEmptyList(t *testing.T) {
	srv, _, _ := newTestServer(t, &stubRecognizer{})

	resp, err := http.Get(srv.URL + "/api/v1/transcriptions")
	if err != nil {
		t.Fatalf("GET list: %v", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if got := string(bytes.TrimSpace(raw)); got != "[]" {
		t.Errorf("empty list body = %q, want []", got)
	}
}

func TestRecordsAPIBadLimit(t *testing.T) {
	srv, _, _ := newTestServer(t, &stubRecognizer{})

	resp, err := http.Get(srv.URL + "/api/v1/transcriptions?limit=soon")
	if err != nil {
		t.Fatalf("GET list: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}
