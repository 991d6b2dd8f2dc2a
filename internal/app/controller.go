package app

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"sprachlupe/internal/audio"
	"sprachlupe/internal/llm"
	"sprachlupe/internal/logger"
	"sprachlupe/internal/models"
	"sprachlupe/internal/pdf"
)

// Gateway ist der Teil des KI-Gateways, den der Controller nutzt
type Gateway interface {
	AnalyzeContent(ctx context.Context, in llm.ContentInput, sourceLang, targetLang string) (*models.LearningAnalysis, error)
	GenerateMnemonicImage(ctx context.Context, prompt string) string
	SendChatMessage(ctx context.Context, history []models.ChatMessage, newMessage string, analysis *models.LearningAnalysis) (string, error)
	GenerateStoryFromWords(ctx context.Context, words []string, theme string) (*models.StoryResponse, error)
	GenerateTextToSpeech(ctx context.Context, text string) string
	GenerateDailyLesson(ctx context.Context, level models.Level, count int, previousTopics []string, explanationLanguage string) ([]models.DailyLessonItem, error)
}

// Persistence ist der lokale Speicher für Verlauf und Einstellungen
type Persistence interface {
	LoadHistory(ctx context.Context) []models.HistoryItem
	SaveHistory(ctx context.Context, items []models.HistoryItem) error
	LoadPreferences(ctx context.Context) *models.UserPreferences
	SavePreferences(ctx context.Context, prefs models.UserPreferences) error
	LoadExplanationLanguage(ctx context.Context) string
	SaveExplanationLanguage(ctx context.Context, lang string) error
}

// Speaker spielt dekodierte Sprachausgabe ab
type Speaker interface {
	Play(buf *audio.Buffer)
	Stop()
	State() audio.State
}

// View ist die aktive Ansicht der Oberfläche
type View string

const (
	ViewAnalyze   View = "analyze"
	ViewHistory   View = "history"
	ViewFavorites View = "favorites"
	ViewDaily     View = "daily"
	ViewStory     View = "story"
)

var views = map[View]bool{ViewAnalyze: true, ViewHistory: true, ViewFavorites: true, ViewDaily: true, ViewStory: true}

// Flow ist ein Einstiegspunkt, der höchstens eine laufende Anfrage haben darf
type Flow string

const (
	FlowAnalyze     Flow = "analyze"
	FlowQuickLookup Flow = "quickLookup"
	FlowStudySave   Flow = "studySave"
	FlowStory       Flow = "story"
	FlowLesson      Flow = "lesson"
	FlowChat        Flow = "chat"
	FlowSpeech      Flow = "speech"
)

// MaxStoryWords begrenzt die Vokabeln, die automatisch in eine Geschichte übernommen werden
const MaxStoryWords = 10

// Input ist der sitzungsbezogene Eingabezustand
type Input struct {
	SourceLang   string `json:"sourceLang"`
	TargetLang   string `json:"targetLang"`
	Draft        string `json:"draft"`
	PendingImage string `json:"-"` // data-URI
}

type chatSession struct {
	gen      uint64
	itemID   string
	messages []models.ChatMessage
}

// Options bündelt die Abhängigkeiten des Controllers
type Options struct {
	Gateway Gateway
	Store   Persistence
	Player  Speaker
	Parser  *pdf.Parser
	Log     *logger.Logger

	DefaultTargetLanguage string

	Now   func() time.Time
	NewID func() string
}

// Controller ist die einzige Quelle für Ansicht, Verlauf, laufende Anfragen und Eingaben
type Controller struct {
	gateway Gateway
	store   Persistence
	player  Speaker
	parser  *pdf.Parser
	log     *logger.Logger
	now     func() time.Time
	newID   func() string

	persistMu sync.Mutex

	mu           sync.Mutex
	view         View
	input        Input
	history      []models.HistoryItem
	activeID     string
	quickViewID  string
	busy         map[Flow]bool
	imagePending map[string]bool
	chat         *chatSession
	chatGen      uint64
	story        *models.StoryResponse
	storyGen     uint64
	daily        dailySession
	prefs        *models.UserPreferences
	explainLang  string
}

// New erstellt einen Controller und lädt Verlauf und Einstellungen aus dem Speicher
func New(ctx context.Context, opts Options) *Controller {
	c := &Controller{
		gateway:      opts.Gateway,
		store:        opts.Store,
		player:       opts.Player,
		parser:       opts.Parser,
		log:          opts.Log,
		now:          opts.Now,
		newID:        opts.NewID,
		view:         ViewAnalyze,
		busy:         make(map[Flow]bool),
		imagePending: make(map[string]bool),
	}
	if c.log == nil {
		c.log = logger.NewNop()
	}
	c.log = c.log.With("component", "controller")
	if c.now == nil {
		c.now = time.Now
	}
	if c.newID == nil {
		c.newID = func() string { return uuid.Must(uuid.NewV7()).String() }
	}
	if c.player == nil {
		c.player = audio.NewPlayer(audio.ClockSink{})
	}
	if c.parser == nil {
		c.parser = pdf.NewParser(0)
	}

	target := opts.DefaultTargetLanguage
	if target == "" {
		target = "English"
	}
	c.input = Input{SourceLang: llm.AutoDetect, TargetLang: target}

	c.history = c.store.LoadHistory(ctx)
	c.prefs = c.store.LoadPreferences(ctx)
	c.explainLang = c.store.LoadExplanationLanguage(ctx)
	c.daily.state = DailyNoPreferences
	if c.prefs != nil {
		c.daily.state = DailyDashboard
	}
	c.log.Info("Controller bereit", "history", len(c.history), "preferences", c.prefs != nil)
	return c
}

// --- Ansicht und Eingaben ---

func (c *Controller) SetView(v View) error {
	if !views[v] {
		return fmt.Errorf("%w: ansicht %q", ErrInvalidInput, v)
	}
	c.mu.Lock()
	c.view = v
	c.mu.Unlock()
	return nil
}

// SetLanguages setzt Ausgangs- und Zielsprache; die Zielsprache darf nicht "auto" sein
func (c *Controller) SetLanguages(source, target string) error {
	source, target = strings.TrimSpace(source), strings.TrimSpace(target)
	if source == "" {
		source = llm.AutoDetect
	}
	if target == "" || target == llm.AutoDetect {
		return fmt.Errorf("%w: zielsprache %q", ErrInvalidInput, target)
	}
	c.mu.Lock()
	c.input.SourceLang, c.input.TargetLang = source, target
	c.mu.Unlock()
	return nil
}

// SwapLanguages tauscht Ausgangs- und Zielsprache; bei automatischer Erkennung passiert nichts
func (c *Controller) SwapLanguages() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.input.SourceLang == llm.AutoDetect {
		return
	}
	c.input.SourceLang, c.input.TargetLang = c.input.TargetLang, c.input.SourceLang
}

func (c *Controller) SetDraft(text string) {
	c.mu.Lock()
	c.input.Draft = text
	c.mu.Unlock()
}

// SetImage übernimmt eine Bilddatei als ausstehende Eingabe (als data-URI)
func (c *Controller) SetImage(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: leeres Bild", ErrInvalidInput)
	}
	mime := mimetype.Detect(data)
	if !strings.HasPrefix(mime.String(), "image/") {
		return fmt.Errorf("%w: %s ist kein Bild", ErrInvalidInput, mime.String())
	}
	uri := "data:" + mime.String() + ";base64," + base64.StdEncoding.EncodeToString(data)
	return c.SetImageDataURI(uri)
}

// SetImageDataURI übernimmt ein bereits kodiertes Bild
func (c *Controller) SetImageDataURI(uri string) error {
	if _, err := llm.ParseDataURI(uri); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	c.mu.Lock()
	c.input.PendingImage = uri
	c.mu.Unlock()
	return nil
}

func (c *Controller) ClearImage() {
	c.mu.Lock()
	c.input.PendingImage = ""
	c.mu.Unlock()
}

// --- Laufende Anfragen ---

func (c *Controller) begin(f Flow) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy[f] {
		return ErrBusy
	}
	c.busy[f] = true
	return nil
}

func (c *Controller) end(f Flow) {
	c.mu.Lock()
	delete(c.busy, f)
	c.mu.Unlock()
}

// Busy meldet, ob im Ablauf f gerade eine Anfrage läuft
func (c *Controller) Busy(f Flow) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy[f]
}

// --- Analyse ---

// Analyze analysiert den Entwurf oder das ausstehende Bild (Bild hat Vorrang)
func (c *Controller) Analyze(ctx context.Context) (*models.HistoryItem, error) {
	c.mu.Lock()
	in := c.input
	c.mu.Unlock()

	var content llm.ContentInput
	switch {
	case in.PendingImage != "":
		img, err := llm.ParseDataURI(in.PendingImage)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		content.Image = img
	case strings.TrimSpace(in.Draft) != "":
		content.Text = in.Draft
	default:
		return nil, ErrEmptyInput
	}

	if err := c.begin(FlowAnalyze); err != nil {
		return nil, err
	}
	defer c.end(FlowAnalyze)

	item, err := c.analyze(ctx, content, in.SourceLang, in.TargetLang)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.activeID = item.ID
	c.mu.Unlock()
	return item, nil
}

// AnalyzeDocument übernimmt den Text eines PDFs als Entwurf und analysiert ihn
func (c *Controller) AnalyzeDocument(ctx context.Context, data []byte) (*models.HistoryItem, error) {
	doc, err := c.parser.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if doc.Truncated {
		c.log.Info("Dokument gekürzt", "pages", doc.PageCount, "chars", len([]rune(doc.Text)))
	}
	c.mu.Lock()
	c.input.Draft = doc.Text
	c.input.PendingImage = ""
	c.mu.Unlock()
	return c.Analyze(ctx)
}

// QuickLookup analysiert ein einzelnes Wort unabhängig von der Hauptanalyse und öffnet es in der Schnellansicht
func (c *Controller) QuickLookup(ctx context.Context, word string) (*models.HistoryItem, error) {
	word = strings.TrimSpace(word)
	if word == "" {
		return nil, ErrEmptyInput
	}
	if err := c.begin(FlowQuickLookup); err != nil {
		return nil, err
	}
	defer c.end(FlowQuickLookup)

	c.mu.Lock()
	source, target := c.input.SourceLang, c.input.TargetLang
	c.mu.Unlock()

	item, err := c.analyze(ctx, llm.ContentInput{Text: word}, source, target)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.quickViewID = item.ID
	c.mu.Unlock()
	return item, nil
}

func (c *Controller) analyze(ctx context.Context, in llm.ContentInput, source, target string) (*models.HistoryItem, error) {
	analysis, err := c.gateway.AnalyzeContent(ctx, in, source, target)
	if err != nil {
		c.log.Warn("Analyse fehlgeschlagen", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrAnalysisFailed, err)
	}
	return c.addHistory(ctx, analysis), nil
}

// addHistory stellt einen neuen Eintrag an den Anfang des Verlaufs und speichert ihn
func (c *Controller) addHistory(ctx context.Context, analysis *models.LearningAnalysis) *models.HistoryItem {
	c.mu.Lock()
	id := c.newID()
	for c.indexOf(id) >= 0 {
		id = c.newID()
	}
	item := models.HistoryItem{ID: id, Timestamp: c.now(), Data: *analysis}
	c.history = append([]models.HistoryItem{item}, c.history...)
	c.mu.Unlock()

	c.persistHistory(ctx)
	return &item
}

// persistHistory speichert immer den aktuellen Stand, damit der letzte Schreibvorgang der neueste ist
func (c *Controller) persistHistory(ctx context.Context) {
	c.persistMu.Lock()
	defer c.persistMu.Unlock()

	c.mu.Lock()
	snapshot := append([]models.HistoryItem(nil), c.history...)
	c.mu.Unlock()

	if err := c.store.SaveHistory(context.WithoutCancel(ctx), snapshot); err != nil {
		c.log.Warn("Verlauf konnte nicht gespeichert werden", "error", err)
	}
}

// indexOf erwartet gehaltenes c.mu
func (c *Controller) indexOf(id string) int {
	for i := range c.history {
		if c.history[i].ID == id {
			return i
		}
	}
	return -1
}

// --- Verlauf ---

// History liefert eine Kopie des Verlaufs, neueste Einträge zuerst
func (c *Controller) History() []models.HistoryItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.HistoryItem(nil), c.history...)
}

// Item liefert eine Kopie des Eintrags mit der angegebenen id
func (c *Controller) Item(id string) (*models.HistoryItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.indexOf(id)
	if i < 0 {
		return nil, ErrNotFound
	}
	item := c.history[i]
	return &item, nil
}

// Favorites liefert alle favorisierten Einträge
func (c *Controller) Favorites() []models.HistoryItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []models.HistoryItem
	for _, it := range c.history {
		if it.IsFavorite {
			out = append(out, it)
		}
	}
	return out
}

// ToggleFavorite schaltet den Favoritenstatus um; id und Zeitstempel bleiben unverändert
func (c *Controller) ToggleFavorite(ctx context.Context, id string) (*models.HistoryItem, error) {
	c.mu.Lock()
	i := c.indexOf(id)
	if i < 0 {
		c.mu.Unlock()
		return nil, ErrNotFound
	}
	c.history[i].IsFavorite = !c.history[i].IsFavorite
	item := c.history[i]
	c.mu.Unlock()

	c.persistHistory(ctx)
	return &item, nil
}

// GenerateImage erzeugt das Merkbild eines Eintrags. Ein vorhandenes Bild wird nie neu erzeugt.
// Schlägt die Erzeugung fehl, bleibt der Eintrag unverändert und die URL ist leer.
func (c *Controller) GenerateImage(ctx context.Context, id string) (string, error) {
	c.mu.Lock()
	i := c.indexOf(id)
	if i < 0 {
		c.mu.Unlock()
		return "", ErrNotFound
	}
	if url := c.history[i].GeneratedImageURL; url != "" {
		c.mu.Unlock()
		return url, nil
	}
	if c.imagePending[id] {
		c.mu.Unlock()
		return "", ErrBusy
	}
	c.imagePending[id] = true
	prompt := c.history[i].Data.VisualAidPrompt
	c.mu.Unlock()

	url := c.gateway.GenerateMnemonicImage(ctx, prompt)

	c.mu.Lock()
	delete(c.imagePending, id)
	if url == "" {
		c.mu.Unlock()
		return "", nil
	}
	i = c.indexOf(id)
	if i < 0 {
		c.mu.Unlock()
		return "", ErrNotFound
	}
	if existing := c.history[i].GeneratedImageURL; existing != "" {
		c.mu.Unlock()
		return existing, nil
	}
	c.history[i].GeneratedImageURL = url
	c.mu.Unlock()

	c.persistHistory(ctx)
	return url, nil
}

// OpenQuickView zeigt einen Eintrag in der Schnellansicht
func (c *Controller) OpenQuickView(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.indexOf(id) < 0 {
		return ErrNotFound
	}
	c.quickViewID = id
	return nil
}

func (c *Controller) CloseQuickView() {
	c.mu.Lock()
	c.quickViewID = ""
	c.mu.Unlock()
}

// QuickView liefert den Eintrag der Schnellansicht per Live-Lookup im Verlauf
func (c *Controller) QuickView() *models.HistoryItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lookupLocked(c.quickViewID)
}

// ActiveItem liefert das Ergebnis der letzten Hauptanalyse
func (c *Controller) ActiveItem() *models.HistoryItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lookupLocked(c.activeID)
}

func (c *Controller) lookupLocked(id string) *models.HistoryItem {
	if id == "" {
		return nil
	}
	i := c.indexOf(id)
	if i < 0 {
		return nil
	}
	item := c.history[i]
	return &item
}

// --- Tutor-Chat ---

// StartChat eröffnet eine neue Chatsitzung zum angegebenen Eintrag
func (c *Controller) StartChat(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.indexOf(id) < 0 {
		return ErrNotFound
	}
	c.chatGen++
	c.chat = &chatSession{gen: c.chatGen, itemID: id}
	return nil
}

// EndChat beendet die Chatsitzung; späte Antworten werden verworfen
func (c *Controller) EndChat() {
	c.mu.Lock()
	c.chat = nil
	c.chatGen++
	c.mu.Unlock()
}

// ChatMessages liefert den Verlauf der aktuellen Chatsitzung
func (c *Controller) ChatMessages() []models.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.chat == nil {
		return nil
	}
	return append([]models.ChatMessage(nil), c.chat.messages...)
}

// SendChat sendet eine Nachricht in der aktuellen Sitzung und liefert die Antwort des Tutors
func (c *Controller) SendChat(ctx context.Context, text string) (*models.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyInput
	}
	if err := c.begin(FlowChat); err != nil {
		return nil, err
	}
	defer c.end(FlowChat)

	c.mu.Lock()
	if c.chat == nil {
		c.mu.Unlock()
		return nil, ErrInvalidState
	}
	i := c.indexOf(c.chat.itemID)
	if i < 0 {
		c.mu.Unlock()
		return nil, ErrNotFound
	}
	analysis := c.history[i].Data
	gen := c.chat.gen
	prior := append([]models.ChatMessage(nil), c.chat.messages...)
	userID := c.newID()
	c.chat.messages = append(c.chat.messages, models.ChatMessage{
		ID: userID, Role: models.RoleUser, Text: text, Timestamp: c.now(),
	})
	c.mu.Unlock()

	reply, err := c.gateway.SendChatMessage(ctx, prior, text, &analysis)
	if err != nil {
		c.log.Warn("Chat fehlgeschlagen", "error", err)
		c.dropChatMessage(gen, userID)
		return nil, fmt.Errorf("%w: %w", ErrChatFailed, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.chat == nil || c.chat.gen != gen {
		return nil, ErrStale
	}
	msg := models.ChatMessage{ID: c.newID(), Role: models.RoleModel, Text: reply, Timestamp: c.now()}
	c.chat.messages = append(c.chat.messages, msg)
	return &msg, nil
}

// dropChatMessage entfernt eine unbeantwortete Nachricht wieder aus der Sitzung gen
func (c *Controller) dropChatMessage(gen uint64, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.chat == nil || c.chat.gen != gen {
		return
	}
	for i, m := range c.chat.messages {
		if m.ID == id {
			c.chat.messages = append(c.chat.messages[:i], c.chat.messages[i+1:]...)
			return
		}
	}
}

// --- Geschichten ---

// GenerateStory schreibt eine Geschichte aus words; ohne Wörter werden Favoriten,
// danach die neuesten Verlaufseinträge verwendet
func (c *Controller) GenerateStory(ctx context.Context, words []string, theme string) (*models.StoryResponse, error) {
	words = cleanWords(words)
	if len(words) == 0 {
		words = c.storyWords()
	}
	if len(words) == 0 {
		return nil, ErrEmptyInput
	}
	if err := c.begin(FlowStory); err != nil {
		return nil, err
	}
	defer c.end(FlowStory)

	c.mu.Lock()
	c.storyGen++
	gen := c.storyGen
	prevView := c.view
	c.view = ViewStory
	c.mu.Unlock()

	story, err := c.gateway.GenerateStoryFromWords(ctx, words, theme)
	if err != nil {
		c.mu.Lock()
		// nur zurückschalten, wenn niemand die Ansicht inzwischen gewechselt hat
		if c.storyGen == gen && c.view == ViewStory {
			c.view = prevView
		}
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %w", ErrStoryFailed, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.storyGen != gen {
		return nil, ErrStale
	}
	c.story = story
	return story, nil
}

// ExitStory verlässt den Geschichtenmodus und verwirft die Geschichte
func (c *Controller) ExitStory() {
	c.mu.Lock()
	c.story = nil
	c.storyGen++
	if c.view == ViewStory {
		c.view = ViewAnalyze
	}
	c.mu.Unlock()
	c.player.Stop()
}

func (c *Controller) Story() *models.StoryResponse {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.story
}

func (c *Controller) storyWords() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var favs, recent []string
	for _, it := range c.history {
		if it.IsFavorite {
			favs = append(favs, it.Data.OriginalText)
		} else {
			recent = append(recent, it.Data.OriginalText)
		}
	}
	words := cleanWords(append(favs, recent...))
	if len(words) > MaxStoryWords {
		words = words[:MaxStoryWords]
	}
	return words
}

func cleanWords(words []string) []string {
	seen := make(map[string]bool, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w == "" || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

// --- Sprachausgabe ---

// Speak erzeugt Sprachausgabe für text und spielt sie ab. Ist die Sprachausgabe nicht
// verfügbar, wird nil ohne Fehler geliefert und der Zustand bleibt unverändert.
func (c *Controller) Speak(ctx context.Context, text string) (*audio.Buffer, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}
	if err := c.begin(FlowSpeech); err != nil {
		return nil, err
	}
	defer c.end(FlowSpeech)

	b64 := c.gateway.GenerateTextToSpeech(ctx, text)
	if b64 == "" {
		return nil, nil
	}
	buf, err := audio.DecodePCM(b64)
	if err != nil {
		c.log.Warn("Audio nicht dekodierbar", "error", err)
		return nil, nil
	}
	c.player.Play(buf)
	return buf, nil
}

func (c *Controller) StopSpeech() {
	c.player.Stop()
}
