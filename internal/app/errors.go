package app

import "errors"

var (
	ErrEmptyInput    = errors.New("keine Eingabe")
	ErrBusy          = errors.New("anfrage läuft bereits")
	ErrNotFound      = errors.New("eintrag nicht gefunden")
	ErrInvalidState  = errors.New("aktion im aktuellen Zustand nicht möglich")
	ErrInvalidInput  = errors.New("ungültige Eingabe")
	ErrNoPreferences = errors.New("keine Lerneinstellungen gespeichert")

	// ErrStale: das Ergebnis gehört zu einem inzwischen verlassenen Ablauf und wurde verworfen
	ErrStale = errors.New("ergebnis verworfen, ablauf wurde beendet")
)

// Fehler, die dem Nutzer als einzelne Meldung angezeigt werden
var (
	ErrAnalysisFailed = errors.New("analysis failed")
	ErrStoryFailed    = errors.New("story generation failed")
	ErrLessonFailed   = errors.New("lesson generation failed")
	ErrChatFailed     = errors.New("chat failed")
)
