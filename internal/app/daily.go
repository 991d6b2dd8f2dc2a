package app

import (
	"context"
	"fmt"
	"strings"

	"sprachlupe/internal/llm"
	"sprachlupe/internal/models"
)

// DailyState ist der Zustand der Tageslektion
type DailyState string

const (
	DailyNoPreferences DailyState = "no-preferences"
	DailyDashboard     DailyState = "dashboard"
	DailyInSession     DailyState = "in-session"
	DailySummary       DailyState = "summary"
)

// MaxLessonTopics begrenzt die Verlaufseinträge, die als Themenanregung dienen
const MaxLessonTopics = llm.MaxPreviousTopics

type dailySession struct {
	state    DailyState
	gen      uint64
	items    []models.DailyLessonItem
	index    int
	selected *int
	correct  int
	answered int
	saved    map[string]bool
}

// LessonProgress ist die Sicht auf die laufende Tageslektion
type LessonProgress struct {
	State    DailyState               `json:"state"`
	Items    []models.DailyLessonItem `json:"items,omitempty"`
	Index    int                      `json:"index"`
	Current  *models.DailyLessonItem  `json:"current,omitempty"`
	Selected *int                     `json:"selected,omitempty"`
	Correct  int                      `json:"correct"`
	Answered int                      `json:"answered"`
}

// Preferences liefert eine Kopie der Lerneinstellungen oder nil
func (c *Controller) Preferences() *models.UserPreferences {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.prefs == nil {
		return nil
	}
	p := *c.prefs
	return &p
}

// SavePreferences legt Stufe und Tagesziel fest und wechselt zum Dashboard.
// Serie und letztes Lerndatum bleiben erhalten.
func (c *Controller) SavePreferences(ctx context.Context, level models.Level, dailyGoal int) (*models.UserPreferences, error) {
	c.mu.Lock()
	if c.daily.state != DailyNoPreferences {
		c.mu.Unlock()
		return nil, ErrInvalidState
	}
	prefs := models.UserPreferences{Level: level, DailyGoal: dailyGoal}
	if c.prefs != nil {
		prefs.LastStudyDate, prefs.Streak = c.prefs.LastStudyDate, c.prefs.Streak
	}
	if err := prefs.Validate(); err != nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	c.prefs = &prefs
	c.daily.state = DailyDashboard
	c.mu.Unlock()

	if err := c.store.SavePreferences(context.WithoutCancel(ctx), prefs); err != nil {
		c.log.Warn("Einstellungen konnten nicht gespeichert werden", "error", err)
	}
	return &prefs, nil
}

// EditPreferences kehrt vom Dashboard zur Einstellungsmaske zurück
func (c *Controller) EditPreferences() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.daily.state {
	case DailyDashboard, DailyNoPreferences:
		c.daily.state = DailyNoPreferences
		return nil
	}
	return ErrInvalidState
}

// StartLesson lädt eine neue Lektion mit den gespeicherten Einstellungen
func (c *Controller) StartLesson(ctx context.Context) (*LessonProgress, error) {
	c.mu.Lock()
	if c.prefs == nil {
		c.mu.Unlock()
		return nil, ErrNoPreferences
	}
	if c.daily.state != DailyDashboard {
		c.mu.Unlock()
		return nil, ErrInvalidState
	}
	prefs := *c.prefs
	lang := c.explainLang
	var topics []string
	for _, it := range c.history {
		if len(topics) == MaxLessonTopics {
			break
		}
		topics = append(topics, it.Data.OriginalText)
	}
	c.mu.Unlock()

	if err := c.begin(FlowLesson); err != nil {
		return nil, err
	}
	defer c.end(FlowLesson)

	c.mu.Lock()
	c.daily.gen++
	gen := c.daily.gen
	c.mu.Unlock()

	items, err := c.gateway.GenerateDailyLesson(ctx, prefs.Level, prefs.DailyGoal, topics, lang)
	if err != nil {
		c.log.Warn("Tageslektion fehlgeschlagen", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrLessonFailed, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.daily.gen != gen || c.daily.state != DailyDashboard {
		return nil, ErrStale
	}
	c.daily = dailySession{
		state: DailyInSession,
		gen:   gen,
		items: items,
		saved: make(map[string]bool),
	}
	c.log.Info("Tageslektion gestartet", "items", len(items), "level", prefs.Level)
	return c.progressLocked(), nil
}

// SelectOption wählt eine Antwort für den aktuellen Vokabel-Eintrag.
// Die erste Wahl ist endgültig, weitere Aufrufe ändern nichts.
func (c *Controller) SelectOption(option int) (*LessonProgress, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.daily.state != DailyInSession {
		return nil, ErrInvalidState
	}
	item := &c.daily.items[c.daily.index]
	if item.Type != models.LessonVocabulary {
		return nil, ErrInvalidState
	}
	if option < 0 || option >= len(item.Options) {
		return nil, fmt.Errorf("%w: option %d", ErrInvalidInput, option)
	}
	if c.daily.selected != nil {
		return c.progressLocked(), nil
	}
	c.daily.selected = &option
	c.daily.answered++
	if item.IsCorrect(option) {
		c.daily.correct++
	}
	return c.progressLocked(), nil
}

// NextItem geht zum nächsten Eintrag; nach dem letzten folgt die Zusammenfassung
func (c *Controller) NextItem(ctx context.Context) (*LessonProgress, error) {
	c.mu.Lock()
	if c.daily.state != DailyInSession {
		c.mu.Unlock()
		return nil, ErrInvalidState
	}
	c.daily.selected = nil
	if c.daily.index+1 < len(c.daily.items) {
		c.daily.index++
		p := c.progressLocked()
		c.mu.Unlock()
		return p, nil
	}

	c.daily.state = DailySummary
	var prefs models.UserPreferences
	if c.prefs != nil {
		c.prefs.RecordStudy(c.now())
		prefs = *c.prefs
	}
	p := c.progressLocked()
	c.mu.Unlock()

	if prefs.Level != "" {
		if err := c.store.SavePreferences(context.WithoutCancel(ctx), prefs); err != nil {
			c.log.Warn("Einstellungen konnten nicht gespeichert werden", "error", err)
		}
		c.log.Info("Tageslektion abgeschlossen", "streak", prefs.Streak)
	}
	return p, nil
}

// AcknowledgeSummary verwirft die abgeschlossene Lektion und kehrt zum Dashboard zurück
func (c *Controller) AcknowledgeSummary() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.daily.state != DailySummary {
		return ErrInvalidState
	}
	c.daily = dailySession{state: DailyDashboard, gen: c.daily.gen + 1}
	return nil
}

// Lesson liefert den aktuellen Stand der Tageslektion
func (c *Controller) Lesson() *LessonProgress {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.progressLocked()
}

func (c *Controller) progressLocked() *LessonProgress {
	p := &LessonProgress{
		State:    c.daily.state,
		Index:    c.daily.index,
		Correct:  c.daily.correct,
		Answered: c.daily.answered,
	}
	if len(c.daily.items) > 0 {
		p.Items = append([]models.DailyLessonItem(nil), c.daily.items...)
	}
	if c.daily.state == DailyInSession {
		item := c.daily.items[c.daily.index]
		p.Current = &item
	}
	if c.daily.selected != nil {
		s := *c.daily.selected
		p.Selected = &s
	}
	return p
}

// SaveLessonItem analysiert einen Eintrag der Lektion und legt ihn im Verlauf ab.
// Jeder Eintrag wird höchstens einmal gespeichert.
func (c *Controller) SaveLessonItem(ctx context.Context, index int) (*models.HistoryItem, error) {
	c.mu.Lock()
	if c.daily.state != DailyInSession && c.daily.state != DailySummary {
		c.mu.Unlock()
		return nil, ErrInvalidState
	}
	if index < 0 || index >= len(c.daily.items) {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: eintrag %d", ErrInvalidInput, index)
	}
	item := c.daily.items[index]
	if c.daily.saved[item.ID] {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: eintrag bereits gespeichert", ErrInvalidState)
	}
	target := c.explainLang
	c.mu.Unlock()

	text := strings.TrimSpace(item.Content)
	if text == "" {
		return nil, ErrEmptyInput
	}
	if err := c.begin(FlowStudySave); err != nil {
		return nil, err
	}
	defer c.end(FlowStudySave)

	saved, err := c.analyze(ctx, llm.ContentInput{Text: text}, llm.AutoDetect, target)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.daily.saved != nil {
		c.daily.saved[item.ID] = true
	}
	c.mu.Unlock()
	return saved, nil
}

// ExplanationLanguage liefert die Sprache für Übersetzungen in Lektionen
func (c *Controller) ExplanationLanguage() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.explainLang
}

func (c *Controller) SetExplanationLanguage(ctx context.Context, lang string) error {
	lang = strings.TrimSpace(lang)
	if lang == "" || lang == llm.AutoDetect {
		return fmt.Errorf("%w: sprache %q", ErrInvalidInput, lang)
	}
	c.mu.Lock()
	c.explainLang = lang
	c.mu.Unlock()

	if err := c.store.SaveExplanationLanguage(context.WithoutCancel(ctx), lang); err != nil {
		c.log.Warn("Erklärungssprache konnte nicht gespeichert werden", "error", err)
	}
	return nil
}
