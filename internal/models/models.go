package models

import (
	"fmt"
	"time"

	"sprachlupe/internal/validation"
)

// WordBreakdown beschreibt ein einzelnes Wort einer Analyse oder Lektion
type WordBreakdown struct {
	Word         string `json:"word"`
	PartOfSpeech string `json:"partOfSpeech"`
	IPA          string `json:"ipa"`
	Definition   string `json:"definition"`
	Etymology    string `json:"etymology"`
}

// LearningAnalysis ist das Ergebnis einer Textanalyse durch das Sprachmodell
type LearningAnalysis struct {
	OriginalText    string          `json:"originalText"`
	Translation     string          `json:"translation"`
	Breakdown       []WordBreakdown `json:"breakdown"`
	Examples        []string        `json:"examples"`
	GrammarNotes    string          `json:"grammarNotes"`
	VisualAidPrompt string          `json:"visualAidPrompt"`
}

// HistoryItem ist ein gespeicherter Verlaufseintrag
type HistoryItem struct {
	ID                string           `json:"id"`
	Timestamp         time.Time        `json:"timestamp"`
	Data              LearningAnalysis `json:"data"`
	IsFavorite        bool             `json:"isFavorite"`
	GeneratedImageURL string           `json:"generatedImageUrl,omitempty"`
}

// ChatRole ist die Rolle innerhalb eines Tutor-Chats
type ChatRole string

const (
	RoleUser  ChatRole = "user"
	RoleModel ChatRole = "model"
)

// ChatMessage repräsentiert eine Nachricht im Tutor-Chat
type ChatMessage struct {
	ID        string    `json:"id"`
	Role      ChatRole  `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// StoryResponse ist eine generierte Kurzgeschichte
type StoryResponse struct {
	Title          string `json:"title"`
	Content        string `json:"content"`
	EnglishContent string `json:"englishContent"`
}

// LessonItemType unterscheidet die Varianten eines Lektionseintrags
type LessonItemType string

const (
	LessonSentence   LessonItemType = "sentence"
	LessonVocabulary LessonItemType = "vocabulary"
)

// DailyLessonItem ist ein Eintrag der Tageslektion.
// Satz-Einträge nutzen GrammarFocus und KeyWords, Vokabel-Einträge
// Definition, ContextSentence, Options und CorrectOptionIndex.
type DailyLessonItem struct {
	ID          string         `json:"id"`
	Type        LessonItemType `json:"type" validate:"oneof=sentence vocabulary"`
	Content     string         `json:"content" validate:"notblank"`
	Translation string         `json:"translation"`

	GrammarFocus string          `json:"grammarFocus,omitempty"`
	KeyWords     []WordBreakdown `json:"keyWords,omitempty"`

	Definition         string   `json:"definition,omitempty"`
	ContextSentence    string   `json:"contextSentence,omitempty"`
	Options            []string `json:"options,omitempty"`
	CorrectOptionIndex *int     `json:"correctOptionIndex,omitempty"`
}

// Validate prüft Variante und Inhalt per Tags, den Antwortindex gegen die Optionen
func (i *DailyLessonItem) Validate() error {
	if err := validation.Struct(i); err != nil {
		return err
	}
	if i.Type == LessonVocabulary && i.CorrectOptionIndex != nil && len(i.Options) > 0 {
		idx := *i.CorrectOptionIndex
		if idx < 0 || idx >= len(i.Options) {
			return fmt.Errorf("correctOptionIndex %d außerhalb von %d Optionen", idx, len(i.Options))
		}
	}
	return nil
}

// IsCorrect meldet, ob option die richtige Antwort eines Vokabel-Eintrags ist
func (i *DailyLessonItem) IsCorrect(option int) bool {
	return i.CorrectOptionIndex != nil && *i.CorrectOptionIndex == option
}

// Level ist eine der sechs GER-Stufen
type Level string

const (
	LevelA1 Level = "A1"
	LevelA2 Level = "A2"
	LevelB1 Level = "B1"
	LevelB2 Level = "B2"
	LevelC1 Level = "C1"
	LevelC2 Level = "C2"
)

// Levels in aufsteigender Reihenfolge
var Levels = []Level{LevelA1, LevelA2, LevelB1, LevelB2, LevelC1, LevelC2}

// Rank gibt die Ordnungszahl der Stufe zurück, -1 wenn unbekannt
func (l Level) Rank() int {
	for i, lv := range Levels {
		if lv == l {
			return i
		}
	}
	return -1
}

func (l Level) Valid() bool {
	return l.Rank() >= 0
}

// DateLayout ist das Format von UserPreferences.LastStudyDate
const DateLayout = "2006-01-02"

// UserPreferences enthält die Lerneinstellungen des Nutzers
type UserPreferences struct {
	Level         Level  `json:"level" validate:"oneof=A1 A2 B1 B2 C1 C2"`
	DailyGoal     int    `json:"dailyGoal" validate:"gt=0"`
	LastStudyDate string `json:"lastStudyDate,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Streak        int    `json:"streak" validate:"gte=0"`
}

// Validate prüft Stufe, Tagesziel, Serie und Datumsformat
func (p *UserPreferences) Validate() error {
	return validation.Struct(p)
}

// RecordStudy aktualisiert Serie und Lerndatum für einen abgeschlossenen Lerntag
func (p *UserPreferences) RecordStudy(now time.Time) {
	today := now.Format(DateLayout)
	if p.LastStudyDate == today {
		return
	}
	yesterday := now.AddDate(0, 0, -1).Format(DateLayout)
	if p.LastStudyDate == yesterday {
		p.Streak++
	} else {
		p.Streak = 1
	}
	p.LastStudyDate = today
}
