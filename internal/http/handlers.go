package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/hlog"

	"recorder-transcriber-service/internal/app"
	"recorder-transcriber-service/internal/models"
	"recorder-transcriber-service/internal/schema"
	"recorder-transcriber-service/internal/service/enhance"
	"recorder-transcriber-service/internal/service/session"
	"recorder-transcriber-service/internal/service/stt"
	"recorder-transcriber-service/internal/service/transcription"
	"recorder-transcriber-service/internal/storage"
)

type handlers struct {
	app *app.Application
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	st := h.app.Machine.Status()
	resp := models.StatusResponse{
		State:           st.State.String(),
		Generation:      st.Generation,
		LastRecordingID: st.LastRecordingID,
		LastError:       st.LastError,
		Subscribed:      h.app.Publisher.HasSubscriber(),
	}
	if !st.StartedAt.IsZero() {
		resp.StartedAt = &st.StartedAt
	}
	if !st.LastWakeAt.IsZero() {
		resp.LastWakeAt = &st.LastWakeAt
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) listenStatus(w http.ResponseWriter, r *http.Request) {
	state := h.app.Machine.State()
	writeJSON(w, http.StatusOK, models.ListenStatusResponse{
		IsListening: state.IsListening(),
		State:       state.String(),
	})
}

func (h *handlers) recordings(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, r, schema.ErrInvalid)
			return
		}
		limit = n
	}

	recs, err := h.app.Store.List(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]models.RecordingSummary, 0, len(recs))
	for _, rec := range recs {
		out = append(out, models.RecordingSummary{
			RecordingID:     rec.ID,
			Path:            rec.Path,
			Origin:          rec.Origin,
			CapturedAt:      rec.CapturedAt,
			DurationSeconds: rec.Duration.Seconds(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) startRecording(w http.ResponseWriter, r *http.Request) {
	s, err := h.app.Machine.BeginManualRecording()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.StartRecordingResponse{
		Status:             "recording",
		StartedAt:          s.StartedAt,
		MaxDurationSeconds: s.MaxDuration.Seconds(),
	})
}

func (h *handlers) stopRecording(w http.ResponseWriter, r *http.Request) {
	rec, err := h.app.Machine.EndManualRecording(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.RecordingResponse{
		RecordingID: rec.ID,
		Path:        rec.Path,
		CapturedAt:  rec.CapturedAt,
	})
}

func (h *handlers) transcribe(w http.ResponseWriter, r *http.Request) {
	var req models.TranscribeRequest
	if !h.decode(w, r, &req) {
		return
	}

	t, err := h.app.Transcription.Transcribe(r.Context(), req.RecordingID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.TranscriptResponse{
		RecordingID: t.RecordingID,
		Text:        t.Text,
		GeneratedAt: t.GeneratedAt,
	})
}

func (h *handlers) enhance(w http.ResponseWriter, r *http.Request) {
	var req models.EnhancementRequest
	if !h.decode(w, r, &req) {
		return
	}

	note, err := h.app.Transcription.Enhance(r.Context(), req.Text, req.RecordingID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.EnhancementResponse{
		Title:       note.Title,
		Body:        note.Body,
		Tags:        note.Tags,
		CreatedAt:   note.CreatedAt,
		RecordingID: note.RecordingID,
	})
}

// decode reads and validates a JSON body. On failure it writes the error
// response and returns false.
func (h *handlers) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Detail: "invalid JSON body: " + err.Error()})
		return false
	}
	if err := h.app.Validator.Validate(v); err != nil {
		writeError(w, r, err)
		return false
	}
	return true
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, transcription.ErrNoTranscript):
		return http.StatusNotFound
	case errors.Is(err, schema.ErrInvalid), errors.Is(err, enhance.ErrEmptyText):
		return http.StatusBadRequest
	case errors.Is(err, stt.ErrTranscriptionFailed), errors.Is(err, enhance.ErrEnhancementFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		hlog.FromRequest(r).Error().Err(err).Int("status", code).Msg("Request failed")
	}
	writeJSON(w, code, models.ErrorResponse{Detail: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
