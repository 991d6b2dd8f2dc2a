package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"sprachlupe/internal/logger"
	"sprachlupe/internal/models"
)

// Schlüssel der gespeicherten Werte
const (
	KeyHistory             = "sprachlupe.history"
	KeyPreferences         = "sprachlupe.preferences"
	KeyExplanationLanguage = "sprachlupe.explanationLanguage"
)

// DefaultExplanationLanguage gilt, solange nichts gespeichert ist
const DefaultExplanationLanguage = "English"

// WriteErrorHandler wird bei jedem fehlgeschlagenen Schreibvorgang aufgerufen
type WriteErrorHandler func(key string, err error)

// Store bietet typisierte Lese- und Schreibzugriffe auf den KV-Speicher.
// Lesefehler und kaputte Werte führen zu Standardwerten.
type Store struct {
	kv      KV
	log     *logger.Logger
	onWrite WriteErrorHandler
}

// NewStore erstellt einen Store; onWriteError darf nil sein
func NewStore(kv KV, log *logger.Logger, onWriteError WriteErrorHandler) *Store {
	if log == nil {
		log = logger.NewNop()
	}
	return &Store{kv: kv, log: log.With("component", "store"), onWrite: onWriteError}
}

// LoadHistory lädt den Verlauf, neueste Einträge zuerst
func (s *Store) LoadHistory(ctx context.Context) []models.HistoryItem {
	var items []models.HistoryItem
	if !s.load(ctx, KeyHistory, &items) {
		return []models.HistoryItem{}
	}
	if items == nil {
		items = []models.HistoryItem{}
	}
	return items
}

// SaveHistory überschreibt den gesamten Verlauf
func (s *Store) SaveHistory(ctx context.Context, items []models.HistoryItem) error {
	return s.save(ctx, KeyHistory, items)
}

// LoadPreferences liefert nil, wenn keine gültigen Einstellungen gespeichert sind
func (s *Store) LoadPreferences(ctx context.Context) *models.UserPreferences {
	var prefs models.UserPreferences
	if !s.load(ctx, KeyPreferences, &prefs) {
		return nil
	}
	if err := prefs.Validate(); err != nil {
		s.log.Warn("Gespeicherte Einstellungen ungültig, ignoriere sie", "error", err)
		return nil
	}
	return &prefs
}

func (s *Store) SavePreferences(ctx context.Context, prefs models.UserPreferences) error {
	return s.save(ctx, KeyPreferences, prefs)
}

func (s *Store) LoadExplanationLanguage(ctx context.Context) string {
	var lang string
	if !s.load(ctx, KeyExplanationLanguage, &lang) || lang == "" {
		return DefaultExplanationLanguage
	}
	return lang
}

func (s *Store) SaveExplanationLanguage(ctx context.Context, lang string) error {
	return s.save(ctx, KeyExplanationLanguage, lang)
}

func (s *Store) load(ctx context.Context, key string, out interface{}) bool {
	raw, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		s.log.Warn("Lesen fehlgeschlagen, verwende Standardwert", "key", key, "error", err)
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		s.log.Warn("Gespeicherter Wert nicht lesbar, verwende Standardwert", "key", key, "error", err)
		return false
	}
	return true
}

func (s *Store) save(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err == nil {
		err = s.kv.Set(ctx, key, string(data))
	}
	if err != nil {
		err = fmt.Errorf("speichern von %s: %w", key, err)
		if s.onWrite != nil {
			s.onWrite(key, err)
		}
		return err
	}
	return nil
}
