package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

// NewRouter erstellt den HTTP-Router mit allen Endpoints
func NewRouter(h *Handler, staticPath string) http.Handler {
	r := mux.NewRouter()

	// API-Version
	api := r.PathPrefix("/api/v1").Subrouter()

	// System
	api.HandleFunc("/health", h.HealthCheck).Methods("GET")
	api.HandleFunc("/models", h.GetModels).Methods("GET")
	api.HandleFunc("/state", h.GetState).Methods("GET")

	// Eingaben
	api.HandleFunc("/view", h.SetView).Methods("PUT")
	api.HandleFunc("/languages", h.SetLanguages).Methods("PUT")
	api.HandleFunc("/languages/swap", h.SwapLanguages).Methods("POST")
	api.HandleFunc("/draft", h.SetDraft).Methods("PUT")
	api.HandleFunc("/image", h.UploadImage).Methods("POST")
	api.HandleFunc("/image", h.ClearImage).Methods("DELETE")

	// Analyse
	api.HandleFunc("/analyze", h.Analyze).Methods("POST")
	api.HandleFunc("/lookup", h.QuickLookup).Methods("POST")
	api.HandleFunc("/documents", h.AnalyzeDocument).Methods("POST")

	// Verlauf
	api.HandleFunc("/history", h.GetHistory).Methods("GET")
	api.HandleFunc("/favorites", h.GetFavorites).Methods("GET")
	api.HandleFunc("/history/{id}", h.GetHistoryItem).Methods("GET")
	api.HandleFunc("/history/{id}/favorite", h.ToggleFavorite).Methods("POST")
	api.HandleFunc("/history/{id}/image", h.GenerateImage).Methods("POST")
	api.HandleFunc("/quickview", h.OpenQuickView).Methods("PUT")
	api.HandleFunc("/quickview", h.CloseQuickView).Methods("DELETE")

	// Chat
	api.HandleFunc("/chat", h.GetChat).Methods("GET")
	api.HandleFunc("/chat", h.Chat).Methods("POST")
	api.HandleFunc("/chat/session", h.StartChat).Methods("POST")
	api.HandleFunc("/chat/session", h.EndChat).Methods("DELETE")
	api.HandleFunc("/chat/ws", h.ChatSocket).Methods("GET")

	// Geschichten und Sprachausgabe
	api.HandleFunc("/story", h.GenerateStory).Methods("POST")
	api.HandleFunc("/story", h.ExitStory).Methods("DELETE")
	api.HandleFunc("/speech", h.Speak).Methods("POST")
	api.HandleFunc("/speech", h.StopSpeech).Methods("DELETE")

	// Tageslektion
	api.HandleFunc("/daily", h.GetLesson).Methods("GET")
	api.HandleFunc("/daily/preferences", h.SavePreferences).Methods("PUT")
	api.HandleFunc("/daily/preferences/edit", h.EditPreferences).Methods("POST")
	api.HandleFunc("/daily/start", h.StartLesson).Methods("POST")
	api.HandleFunc("/daily/select", h.SelectOption).Methods("POST")
	api.HandleFunc("/daily/next", h.NextItem).Methods("POST")
	api.HandleFunc("/daily/acknowledge", h.AcknowledgeSummary).Methods("POST")
	api.HandleFunc("/daily/items/{index:[0-9]+}/save", h.SaveLessonItem).Methods("POST")
	api.HandleFunc("/daily/explanation-language", h.SetExplanationLanguage).Methods("PUT")

	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Statische Dateien (Frontend)
	r.PathPrefix("/").Handler(http.FileServer(http.Dir(staticPath)))

	// CORS für lokale Entwicklung
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})

	return c.Handler(r)
}
