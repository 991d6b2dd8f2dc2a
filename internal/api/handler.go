package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"sprachlupe/internal/app"
	"sprachlupe/internal/config"
	"sprachlupe/internal/llm"
	"sprachlupe/internal/logger"
	"sprachlupe/internal/models"
	"sprachlupe/internal/validation"
)

// maxUploadSize begrenzt Bild- und PDF-Uploads
const maxUploadSize = 20 << 20

// Handler verwaltet alle API-Endpunkte
type Handler struct {
	ctrl     *app.Controller
	provider llm.Provider
	config   *config.Config
	log      *logger.Logger
	upgrader websocket.Upgrader
}

// NewHandler erstellt einen neuen API-Handler
func NewHandler(ctrl *app.Controller, provider llm.Provider, cfg *config.Config, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.NewNop()
	}
	return &Handler{
		ctrl:     ctrl,
		provider: provider,
		config:   cfg,
		log:      log.With("component", "api"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Response-Helper
func jsonResponse(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func errorResponse(w http.ResponseWriter, message string, status int) {
	jsonResponse(w, map[string]string{"error": message}, status)
}

// appError übersetzt Fehler des Controllers in HTTP-Antworten
func (h *Handler) appError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrEmptyInput), errors.Is(err, app.ErrInvalidInput):
		errorResponse(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, app.ErrNotFound):
		errorResponse(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, app.ErrBusy), errors.Is(err, app.ErrInvalidState),
		errors.Is(err, app.ErrStale), errors.Is(err, app.ErrNoPreferences):
		errorResponse(w, err.Error(), http.StatusConflict)
	case errors.Is(err, app.ErrAnalysisFailed):
		errorResponse(w, app.ErrAnalysisFailed.Error(), http.StatusBadGateway)
	case errors.Is(err, app.ErrStoryFailed):
		errorResponse(w, app.ErrStoryFailed.Error(), http.StatusBadGateway)
	case errors.Is(err, app.ErrLessonFailed):
		errorResponse(w, app.ErrLessonFailed.Error(), http.StatusBadGateway)
	case errors.Is(err, app.ErrChatFailed):
		errorResponse(w, app.ErrChatFailed.Error(), http.StatusBadGateway)
	default:
		h.log.Error("Unerwarteter Fehler", "error", err)
		errorResponse(w, "interner Fehler", http.StatusInternalServerError)
	}
}

func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// decodeRequest liest den JSON-Body nach v und prüft dessen validate-Tags.
// Bei einem Fehler ist die Antwort bereits geschrieben.
func decodeRequest(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := decodeJSON(r, v); err != nil {
		errorResponse(w, "Ungültige Anfrage", http.StatusBadRequest)
		return false
	}
	if err := validation.Struct(v); err != nil {
		var verr *validation.Error
		if errors.As(err, &verr) {
			jsonResponse(w, map[string]interface{}{
				"error":  "Ungültige Anfrage",
				"fields": verr.Fields,
			}, http.StatusBadRequest)
			return false
		}
		errorResponse(w, "Ungültige Anfrage", http.StatusBadRequest)
		return false
	}
	return true
}

// readUpload liest die Datei aus dem Formularfeld "file"
func readUpload(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		return nil, err
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(file)
}

// === System Endpoints ===

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	jsonResponse(w, map[string]interface{}{
		"status":        "ok",
		"llm_available": h.provider.IsAvailable(ctx),
		"llm_provider":  h.provider.GetName(),
		"timestamp":     time.Now(),
	}, http.StatusOK)
}

func (h *Handler) GetModels(w http.ResponseWriter, r *http.Request) {
	available, err := h.provider.GetModels(r.Context())
	if err != nil {
		errorResponse(w, fmt.Sprintf("Konnte Modelle nicht abrufen: %v", err), http.StatusServiceUnavailable)
		return
	}

	jsonResponse(w, map[string]interface{}{
		"models":       available,
		"text_model":   h.config.TextModel,
		"image_model":  h.config.ImageModel,
		"speech_model": h.config.SpeechModel,
	}, http.StatusOK)
}

// === Zustand und Eingaben ===

func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, h.ctrl.Snapshot(), http.StatusOK)
}

func (h *Handler) SetView(w http.ResponseWriter, r *http.Request) {
	var req struct {
		View string `json:"view" validate:"oneof=analyze history favorites daily story"`
	}
	if !decodeRequest(w, r, &req) {
		return
	}
	if err := h.ctrl.SetView(app.View(req.View)); err != nil {
		h.appError(w, err)
		return
	}
	jsonResponse(w, h.ctrl.Snapshot(), http.StatusOK)
}

func (h *Handler) SetLanguages(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Source string `json:"source"`
		Target string `json:"target" validate:"notblank"`
	}
	if !decodeRequest(w, r, &req) {
		return
	}
	if err := h.ctrl.SetLanguages(req.Source, req.Target); err != nil {
		h.appError(w, err)
		return
	}
	jsonResponse(w, h.ctrl.Snapshot().Input, http.StatusOK)
}

func (h *Handler) SwapLanguages(w http.ResponseWriter, r *http.Request) {
	h.ctrl.SwapLanguages()
	jsonResponse(w, h.ctrl.Snapshot().Input, http.StatusOK)
}

func (h *Handler) SetDraft(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := decodeJSON(r, &req); err != nil {
		errorResponse(w, "Ungültige Anfrage", http.StatusBadRequest)
		return
	}
	h.ctrl.SetDraft(req.Text)
	jsonResponse(w, h.ctrl.Snapshot().Input, http.StatusOK)
}

func (h *Handler) UploadImage(w http.ResponseWriter, r *http.Request) {
	data, err := readUpload(w, r)
	if err != nil {
		errorResponse(w, "Keine Datei gefunden", http.StatusBadRequest)
		return
	}
	if err := h.ctrl.SetImage(data); err != nil {
		h.appError(w, err)
		return
	}
	jsonResponse(w, map[string]bool{"has_image": true}, http.StatusOK)
}

func (h *Handler) ClearImage(w http.ResponseWriter, r *http.Request) {
	h.ctrl.ClearImage()
	jsonResponse(w, map[string]bool{"has_image": false}, http.StatusOK)
}

// === Analyse ===

func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text *string `json:"text"`
	}
	if err := decodeJSON(r, &req); err != nil {
		errorResponse(w, "Ungültige Anfrage", http.StatusBadRequest)
		return
	}
	if req.Text != nil {
		h.ctrl.SetDraft(*req.Text)
	}

	item, err := h.ctrl.Analyze(r.Context())
	if err != nil {
		h.appError(w, err)
		return
	}
	jsonResponse(w, item, http.StatusCreated)
}

func (h *Handler) QuickLookup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Word string `json:"word" validate:"notblank"`
	}
	if !decodeRequest(w, r, &req) {
		return
	}

	item, err := h.ctrl.QuickLookup(r.Context(), req.Word)
	if err != nil {
		h.appError(w, err)
		return
	}
	jsonResponse(w, item, http.StatusCreated)
}

func (h *Handler) AnalyzeDocument(w http.ResponseWriter, r *http.Request) {
	data, err := readUpload(w, r)
	if err != nil {
		errorResponse(w, "Keine Datei gefunden", http.StatusBadRequest)
		return
	}

	item, err := h.ctrl.AnalyzeDocument(r.Context(), data)
	if err != nil {
		h.appError(w, err)
		return
	}
	jsonResponse(w, item, http.StatusCreated)
}

// === Verlauf ===

func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	items := h.ctrl.History()
	jsonResponse(w, map[string]interface{}{
		"items": items,
		"count": len(items),
	}, http.StatusOK)
}

func (h *Handler) GetFavorites(w http.ResponseWriter, r *http.Request) {
	items := h.ctrl.Favorites()
	if items == nil {
		items = []models.HistoryItem{}
	}
	jsonResponse(w, map[string]interface{}{
		"items": items,
		"count": len(items),
	}, http.StatusOK)
}

func (h *Handler) GetHistoryItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.ctrl.Item(mux.Vars(r)["id"])
	if err != nil {
		h.appError(w, err)
		return
	}
	jsonResponse(w, item, http.StatusOK)
}

func (h *Handler) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	item, err := h.ctrl.ToggleFavorite(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.appError(w, err)
		return
	}
	jsonResponse(w, item, http.StatusOK)
}

// GenerateImage liefert eine leere URL, wenn die Bilderzeugung nicht verfügbar war
func (h *Handler) GenerateImage(w http.ResponseWriter, r *http.Request) {
	url, err := h.ctrl.GenerateImage(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.appError(w, err)
		return
	}
	jsonResponse(w, map[string]string{"url": url}, http.StatusOK)
}

func (h *Handler) OpenQuickView(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"id" validate:"required"`
	}
	if !decodeRequest(w, r, &req) {
		return
	}
	if err := h.ctrl.OpenQuickView(req.ID); err != nil {
		h.appError(w, err)
		return
	}
	jsonResponse(w, h.ctrl.QuickView(), http.StatusOK)
}

func (h *Handler) CloseQuickView(w http.ResponseWriter, r *http.Request) {
	h.ctrl.CloseQuickView()
	w.WriteHeader(http.StatusNoContent)
}

// === Chat ===

func (h *Handler) StartChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ItemID string `json:"item_id" validate:"required"`
	}
	if !decodeRequest(w, r, &req) {
		return
	}
	if err := h.ctrl.StartChat(req.ItemID); err != nil {
		h.appError(w, err)
		return
	}
	jsonResponse(w, map[string]string{"item_id": req.ItemID}, http.StatusCreated)
}

func (h *Handler) EndChat(w http.ResponseWriter, r *http.Request) {
	h.ctrl.EndChat()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetChat(w http.ResponseWriter, r *http.Request) {
	msgs := h.ctrl.ChatMessages()
	if msgs == nil {
		msgs = []models.ChatMessage{}
	}
	jsonResponse(w, map[string]interface{}{"messages": msgs}, http.StatusOK)
}

func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string `json:"message" validate:"notblank"`
	}
	if !decodeRequest(w, r, &req) {
		return
	}

	reply, err := h.ctrl.SendChat(r.Context(), req.Message)
	if err != nil {
		h.appError(w, err)
		return
	}
	jsonResponse(w, reply, http.StatusOK)
}

// ChatSocket hält eine WebSocket-Verbindung für die laufende Chatsitzung offen.
// Jede eingehende Nachricht wird mit der Antwort des Tutors oder einem Fehler beantwortet.
func (h *Handler) ChatSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	for {
		var req struct {
			Message string `json:"message"`
		}
		if err := conn.ReadJSON(&req); err != nil {
			return
		}

		reply, err := h.ctrl.SendChat(r.Context(), req.Message)
		if err != nil {
			msg := err.Error()
			if errors.Is(err, app.ErrChatFailed) {
				msg = app.ErrChatFailed.Error()
			}
			if werr := conn.WriteJSON(map[string]string{"error": msg}); werr != nil {
				return
			}
			continue
		}
		if err := conn.WriteJSON(reply); err != nil {
			return
		}
	}
}

// === Geschichten ===

func (h *Handler) GenerateStory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Words []string `json:"words" validate:"max=50"`
		Theme string   `json:"theme" validate:"max=200"`
	}
	if !decodeRequest(w, r, &req) {
		return
	}

	story, err := h.ctrl.GenerateStory(r.Context(), req.Words, req.Theme)
	if err != nil {
		h.appError(w, err)
		return
	}
	jsonResponse(w, story, http.StatusOK)
}

func (h *Handler) ExitStory(w http.ResponseWriter, r *http.Request) {
	h.ctrl.ExitStory()
	w.WriteHeader(http.StatusNoContent)
}

// === Sprachausgabe ===

// Speak liefert die Sprachausgabe als WAV; 204, wenn sie nicht verfügbar ist
func (h *Handler) Speak(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text" validate:"notblank"`
	}
	if !decodeRequest(w, r, &req) {
		return
	}

	buf, err := h.ctrl.Speak(r.Context(), req.Text)
	if err != nil {
		h.appError(w, err)
		return
	}
	if buf == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	wav := buf.WAV()
	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Length", strconv.Itoa(len(wav)))
	w.WriteHeader(http.StatusOK)
	w.Write(wav)
}

func (h *Handler) StopSpeech(w http.ResponseWriter, r *http.Request) {
	h.ctrl.StopSpeech()
	w.WriteHeader(http.StatusNoContent)
}

// === Tageslektion ===

func (h *Handler) GetLesson(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, map[string]interface{}{
		"lesson":               h.ctrl.Lesson(),
		"preferences":          h.ctrl.Preferences(),
		"explanation_language": h.ctrl.ExplanationLanguage(),
	}, http.StatusOK)
}

func (h *Handler) SavePreferences(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Level     string `json:"level" validate:"oneof=A1 A2 B1 B2 C1 C2"`
		DailyGoal int    `json:"daily_goal" validate:"gt=0"`
	}
	if !decodeRequest(w, r, &req) {
		return
	}

	prefs, err := h.ctrl.SavePreferences(r.Context(), models.Level(req.Level), req.DailyGoal)
	if err != nil {
		h.appError(w, err)
		return
	}
	jsonResponse(w, prefs, http.StatusOK)
}

func (h *Handler) EditPreferences(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.EditPreferences(); err != nil {
		h.appError(w, err)
		return
	}
	jsonResponse(w, h.ctrl.Lesson(), http.StatusOK)
}

func (h *Handler) StartLesson(w http.ResponseWriter, r *http.Request) {
	p, err := h.ctrl.StartLesson(r.Context())
	if err != nil {
		h.appError(w, err)
		return
	}
	jsonResponse(w, p, http.StatusOK)
}

func (h *Handler) SelectOption(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Option *int `json:"option" validate:"required,gte=0"`
	}
	if !decodeRequest(w, r, &req) {
		return
	}

	p, err := h.ctrl.SelectOption(*req.Option)
	if err != nil {
		h.appError(w, err)
		return
	}
	jsonResponse(w, p, http.StatusOK)
}

func (h *Handler) NextItem(w http.ResponseWriter, r *http.Request) {
	p, err := h.ctrl.NextItem(r.Context())
	if err != nil {
		h.appError(w, err)
		return
	}
	jsonResponse(w, p, http.StatusOK)
}

func (h *Handler) AcknowledgeSummary(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.AcknowledgeSummary(); err != nil {
		h.appError(w, err)
		return
	}
	jsonResponse(w, h.ctrl.Lesson(), http.StatusOK)
}

func (h *Handler) SaveLessonItem(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		errorResponse(w, "Ungültiger Index", http.StatusBadRequest)
		return
	}

	item, err := h.ctrl.SaveLessonItem(r.Context(), index)
	if err != nil {
		h.appError(w, err)
		return
	}
	jsonResponse(w, item, http.StatusCreated)
}

func (h *Handler) SetExplanationLanguage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Language string `json:"language" validate:"notblank"`
	}
	if !decodeRequest(w, r, &req) {
		return
	}
	if err := h.ctrl.SetExplanationLanguage(r.Context(), req.Language); err != nil {
		h.appError(w, err)
		return
	}
	jsonResponse(w, map[string]string{"explanation_language": h.ctrl.ExplanationLanguage()}, http.StatusOK)
}
