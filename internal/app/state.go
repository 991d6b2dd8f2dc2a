package app

import "sprachlupe/internal/models"

// Snapshot ist der vollständige Zustand für die Oberfläche
type Snapshot struct {
	View                View                    `json:"view"`
	Input               Input                   `json:"input"`
	HasImage            bool                    `json:"hasImage"`
	Busy                map[Flow]bool           `json:"busy"`
	ImagePending        []string                `json:"imagePending"`
	History             []models.HistoryItem    `json:"history"`
	Active              *models.HistoryItem     `json:"active,omitempty"`
	QuickView           *models.HistoryItem     `json:"quickView,omitempty"`
	Chat                []models.ChatMessage    `json:"chat,omitempty"`
	ChatItemID          string                  `json:"chatItemId,omitempty"`
	Story               *models.StoryResponse   `json:"story,omitempty"`
	Lesson              *LessonProgress         `json:"lesson"`
	Preferences         *models.UserPreferences `json:"preferences,omitempty"`
	ExplanationLanguage string                  `json:"explanationLanguage"`
	Playback            string                  `json:"playback"`
}

// Snapshot erstellt eine konsistente Kopie des gesamten Zustands
func (c *Controller) Snapshot() *Snapshot {
	playback := string(c.player.State())

	c.mu.Lock()
	defer c.mu.Unlock()

	s := &Snapshot{
		View:                c.view,
		Input:               c.input,
		HasImage:            c.input.PendingImage != "",
		Busy:                make(map[Flow]bool, len(c.busy)),
		ImagePending:        make([]string, 0, len(c.imagePending)),
		History:             append([]models.HistoryItem{}, c.history...),
		Active:              c.lookupLocked(c.activeID),
		QuickView:           c.lookupLocked(c.quickViewID),
		Story:               c.story,
		Lesson:              c.progressLocked(),
		ExplanationLanguage: c.explainLang,
		Playback:            playback,
	}
	for f, b := range c.busy {
		s.Busy[f] = b
	}
	for id := range c.imagePending {
		s.ImagePending = append(s.ImagePending, id)
	}
	if c.chat != nil {
		s.Chat = append([]models.ChatMessage{}, c.chat.messages...)
		s.ChatItemID = c.chat.itemID
	}
	if c.prefs != nil {
		p := *c.prefs
		s.Preferences = &p
	}
	return s
}
