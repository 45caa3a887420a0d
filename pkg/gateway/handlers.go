package gateway

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/haivivi/scribe/pkg/sauc"
	"github.com/haivivi/scribe/pkg/store"
	"github.com/haivivi/scribe/pkg/wav"
)

const (
	// maxUploadBytes bounds a single WAV upload.
	maxUploadBytes = 64 << 20

	defaultListLimit = 50
	maxListLimit     = 500
)

// transcribeResponse is the upload path's reply.
type transcribeResponse struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	Engine     string `json:"engine"`
	DurationMS int64  `json:"duration_ms"`
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	engine := r.FormValue("engine")
	if engine == "" {
		engine = EngineVolcengine
	}
	if engine != EngineVolcengine {
		writeError(w, http.StatusBadRequest, "unsupported engine: "+engine)
		return
	}
	effect := parseBoolParam(r.FormValue("effect"))

	file, hdr, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing audio file")
		return
	}
	defer file.Close()

	name := strings.ToLower(hdr.Filename)
	if !strings.HasSuffix(name, ".wav") && !strings.HasSuffix(name, ".wave") {
		writeError(w, http.StatusBadRequest, "only WAV audio is supported")
		return
	}

	audio, err := wav.Decode(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	pcm, err := audio.Mono16k()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	text, err := s.rec.Transcribe(ctx, pcm, effect)
	if err != nil {
		if errors.Is(err, sauc.ErrUnconfigured) {
			writeError(w, http.StatusServiceUnavailable, "recognition engine is not configured")
			return
		}
		s.log.Warn("gateway: transcribe upload failed", "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	rec := &store.Record{
		Engine:     engine,
		Text:       text,
		AudioBytes: hdr.Size,
		DurationMS: wav.DurationMS(pcm),
	}
	if err := s.st.Put(ctx, rec); err != nil {
		s.log.Error("gateway: persist record", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to persist record")
		return
	}

	// Keep the original upload alongside the record. Losing the audio is
	// survivable, so a failed save only warns.
	if _, err := file.Seek(0, io.SeekStart); err == nil {
		if err := s.arch.Save(ctx, uploadPath(rec.ID), file); err != nil {
			s.log.Warn("gateway: archive upload", "id", rec.ID, "error", err)
		}
	}

	s.log.Info("gateway: transcribed upload",
		"id", rec.ID, "bytes", hdr.Size, "duration_ms", rec.DurationMS, "chars", len(text))
	writeJSON(w, http.StatusOK, transcribeResponse{
		ID:         rec.ID,
		Text:       rec.Text,
		Engine:     rec.Engine,
		DurationMS: rec.DurationMS,
	})
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad limit: "+v)
			return
		}
		limit = clampInt(n, 1, maxListLimit)
	}

	recs, err := s.st.List(r.Context(), limit)
	if err != nil {
		s.log.Error("gateway: list records", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list records")
		return
	}
	if recs == nil {
		recs = []*store.Record{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, err := s.st.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "record not found")
			return
		}
		s.log.Error("gateway: get record", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load record")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.st.Delete(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "record not found")
			return
		}
		s.log.Error("gateway: delete record", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete record")
		return
	}
	if err := s.arch.Remove(r.Context(), uploadPath(id)); err != nil {
		s.log.Warn("gateway: remove archived upload", "id", id, "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

func uploadPath(id string) string {
	return "uploads/" + id + ".wav"
}

// parseBoolParam follows the loose form the HTTP clients send: "1",
// "true", "yes" and "on" are true, anything else is false.
func parseBoolParam(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
