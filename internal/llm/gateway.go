package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"sprachlupe/internal/logger"
	"sprachlupe/internal/models"
)

// AutoDetect ist der Platzhalter für "Ausgangssprache automatisch erkennen"
const AutoDetect = "auto"

// MaxPreviousTopics begrenzt die Themen, die einer Tageslektion als Kontext mitgegeben werden
const MaxPreviousTopics = 10

// ChatFallback wird geliefert, wenn das Modell keinen Text zurückgibt
const ChatFallback = "Sorry, I couldn't come up with an answer to that. Could you rephrase your question?"

// Operationsnamen für Fehler, Logs und Metriken
const (
	OpAnalyze     = "analyze_content"
	OpImage       = "generate_image"
	OpChat        = "chat"
	OpStory       = "generate_story"
	OpSpeech      = "text_to_speech"
	OpDailyLesson = "daily_lesson"
)

// GatewayConfig legt Modelle und Stimme fest. Ein leeres TextModel nutzt das Standardmodell des Providers.
type GatewayConfig struct {
	TextModel   string
	ImageModel  string
	SpeechModel string
	Voice       string
}

// Gateway übersetzt Lernanfragen in Anfragen an den KI-Dienst und parst die Antworten
type Gateway struct {
	provider Provider
	cfg      GatewayConfig
	log      *logger.Logger
	newID    func() string
}

// NewGateway erstellt ein neues Gateway
func NewGateway(provider Provider, cfg GatewayConfig, log *logger.Logger) *Gateway {
	if cfg.Voice == "" {
		cfg.Voice = "Kore"
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Gateway{
		provider: provider,
		cfg:      cfg,
		log:      log.With("component", "gateway"),
		newID:    uuid.NewString,
	}
}

// ContentInput ist die Eingabe einer Analyse: entweder Text oder ein Bild
type ContentInput struct {
	Text  string
	Image *InlineData
}

// AnalyzeContent analysiert Text oder Bild und liefert eine strukturierte Lernanalyse
func (g *Gateway) AnalyzeContent(ctx context.Context, in ContentInput, sourceLang, targetLang string) (_ *models.LearningAnalysis, err error) {
	hasText := strings.TrimSpace(in.Text) != ""
	hasImage := in.Image != nil && in.Image.Data != ""
	if hasText == hasImage {
		return nil, newError(KindInvalidInput, OpAnalyze, errors.New("genau eine Eingabe (Text oder Bild) erforderlich"))
	}

	start := time.Now()
	defer func() { observe(OpAnalyze, start, err) }()

	source := sourceLang
	if source == "" || source == AutoDetect {
		source = "the language you detect"
	}

	var parts []Part
	if hasImage {
		parts = append(parts,
			Part{InlineData: in.Image},
			Part{Text: fmt.Sprintf(`Read the text visible in this image (written in %s) and analyze it for a language learner.
Use the transcribed text as originalText.
%s`, source, analysisInstructions(targetLang))},
		)
	} else {
		parts = append(parts, Part{Text: fmt.Sprintf(`Analyze the following text (written in %s) for a language learner.
%s

Text:
%s`, source, analysisInstructions(targetLang), in.Text)})
	}

	g.log.Debug("Sende Analyse", "image", hasImage, "source", sourceLang, "target", targetLang)

	var analysis models.LearningAnalysis
	err = g.generateJSON(ctx, OpAnalyze, &GenerateRequest{
		Contents: []Content{{Role: "user", Parts: parts}},
	}, analysisSchema(), &analysis)
	if err != nil {
		g.log.Warn("Analyse fehlgeschlagen", "error", err)
		return nil, err
	}
	return &analysis, nil
}

func analysisInstructions(targetLang string) string {
	return fmt.Sprintf(`- translation: a natural translation into %s
- breakdown: every meaningful word with its part of speech, IPA, contextual definition (in %s) and a short etymology
- examples: 3 short example sentences reusing the key vocabulary, each followed by its %s translation
- grammarNotes: concise notes (in %s) on the grammar used
- visualAidPrompt: a vivid, concrete scene description for a memorable illustration of the meaning`, targetLang, targetLang, targetLang, targetLang)
}

// GenerateMnemonicImage erzeugt ein quadratisches Merkbild. Bei jedem Fehler wird "" geliefert.
func (g *Gateway) GenerateMnemonicImage(ctx context.Context, prompt string) string {
	if strings.TrimSpace(prompt) == "" {
		return ""
	}
	start := time.Now()

	resp, err := g.provider.GenerateContent(ctx, &GenerateRequest{
		Model: g.cfg.ImageModel,
		Contents: []Content{{Role: "user", Parts: []Part{{
			Text: "A clear, friendly illustration without any text, used as a memory aid: " + prompt,
		}}}},
		GenerationConfig: &GenerationConfig{
			ResponseModalities: []string{"IMAGE"},
			ImageConfig:        &ImageConfig{AspectRatio: "1:1"},
		},
	})
	if err != nil {
		err = newError(KindProvider, OpImage, err)
		observe(OpImage, start, err)
		g.log.Warn("Bildgenerierung fehlgeschlagen", "error", err)
		return ""
	}

	for _, p := range resp.Parts() {
		if p.InlineData != nil && p.InlineData.Data != "" {
			observe(OpImage, start, nil)
			return p.InlineData.DataURI()
		}
	}
	err = newError(KindEmptyResponse, OpImage, nil)
	observe(OpImage, start, err)
	g.log.Warn("Keine Bilddaten in der Antwort")
	return ""
}

// SendChatMessage führt einen Tutor-Chat zu einer Analyse
func (g *Gateway) SendChatMessage(ctx context.Context, history []models.ChatMessage, newMessage string, analysis *models.LearningAnalysis) (_ string, err error) {
	if strings.TrimSpace(newMessage) == "" {
		return "", newError(KindInvalidInput, OpChat, errors.New("leere Nachricht"))
	}
	if analysis == nil {
		return "", newError(KindInvalidInput, OpChat, errors.New("kein Analysekontext"))
	}

	start := time.Now()
	defer func() { observe(OpChat, start, err) }()

	system := fmt.Sprintf(`You are a patient language tutor. The learner is studying the following content:

Original text: %s
Translation: %s
Grammar notes: %s

Answer only questions about this content, its vocabulary and its grammar.
If a question is unrelated, politely steer the learner back to the content.
Keep answers short and give examples where helpful.`, analysis.OriginalText, analysis.Translation, analysis.GrammarNotes)

	contents := make([]Content, 0, len(history)+1)
	for _, msg := range history {
		contents = append(contents, Content{
			Role:  string(msg.Role),
			Parts: []Part{{Text: msg.Text}},
		})
	}
	contents = append(contents, Content{Role: string(models.RoleUser), Parts: []Part{{Text: newMessage}}})

	resp, err := g.provider.GenerateContent(ctx, &GenerateRequest{
		Model:             g.cfg.TextModel,
		Contents:          contents,
		SystemInstruction: &Content{Parts: []Part{{Text: system}}},
	})
	if err != nil {
		return "", newError(KindProvider, OpChat, err)
	}

	reply := strings.TrimSpace(resp.Text())
	if reply == "" {
		return ChatFallback, nil
	}
	return reply, nil
}

// GenerateStoryFromWords schreibt eine kurze Geschichte mit den angegebenen Vokabeln
func (g *Gateway) GenerateStoryFromWords(ctx context.Context, words []string, theme string) (_ *models.StoryResponse, err error) {
	if len(words) == 0 {
		return nil, newError(KindInvalidInput, OpStory, errors.New("keine Vokabeln"))
	}
	if strings.TrimSpace(theme) == "" {
		theme = "everyday life"
	}

	start := time.Now()
	defer func() { observe(OpStory, start, err) }()

	prompt := fmt.Sprintf(`Write a short, engaging story for a language learner.
Theme: %s
Use these words naturally in the story (you may change tense, number or other inflections): %s
Write the story in the language of the words, about 150-250 words.
Provide a title, the story as content, and an English translation as englishContent.`, theme, strings.Join(words, ", "))

	var story models.StoryResponse
	err = g.generateJSON(ctx, OpStory, &GenerateRequest{
		Contents: []Content{{Role: "user", Parts: []Part{{Text: prompt}}}},
	}, storySchema(), &story)
	if err != nil {
		g.log.Warn("Geschichte fehlgeschlagen", "error", err)
		return nil, err
	}
	return &story, nil
}

// GenerateTextToSpeech liefert base64-kodiertes PCM-Audio oder "" bei einem Fehler
func (g *Gateway) GenerateTextToSpeech(ctx context.Context, text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	start := time.Now()

	resp, err := g.provider.GenerateContent(ctx, &GenerateRequest{
		Model:    g.cfg.SpeechModel,
		Contents: []Content{{Role: "user", Parts: []Part{{Text: text}}}},
		GenerationConfig: &GenerationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: &SpeechConfig{VoiceConfig: VoiceConfig{
				PrebuiltVoiceConfig: PrebuiltVoiceConfig{VoiceName: g.cfg.Voice},
			}},
		},
	})
	if err != nil {
		err = newError(KindProvider, OpSpeech, err)
		observe(OpSpeech, start, err)
		g.log.Warn("Sprachausgabe fehlgeschlagen", "error", err)
		return ""
	}

	parts := resp.Parts()
	if len(parts) == 0 || parts[0].InlineData == nil || parts[0].InlineData.Data == "" {
		observe(OpSpeech, start, newError(KindEmptyResponse, OpSpeech, nil))
		g.log.Warn("Keine Audiodaten in der Antwort")
		return ""
	}
	observe(OpSpeech, start, nil)
	return parts[0].InlineData.Data
}

// GenerateDailyLesson erzeugt genau count Lektionseinträge für die angegebene Stufe
func (g *Gateway) GenerateDailyLesson(ctx context.Context, level models.Level, count int, previousTopics []string, explanationLanguage string) (_ []models.DailyLessonItem, err error) {
	if count <= 0 {
		return nil, newError(KindInvalidInput, OpDailyLesson, errors.New("anzahl muss positiv sein"))
	}
	if !level.Valid() {
		return nil, newError(KindInvalidInput, OpDailyLesson, fmt.Errorf("ungültige Stufe %q", level))
	}
	if explanationLanguage == "" {
		explanationLanguage = "English"
	}

	start := time.Now()
	defer func() { observe(OpDailyLesson, start, err) }()

	if len(previousTopics) > MaxPreviousTopics {
		previousTopics = previousTopics[:MaxPreviousTopics]
	}
	topics := "none yet"
	if len(previousTopics) > 0 {
		topics = strings.Join(previousTopics, "; ")
	}

	prompt := fmt.Sprintf(`Create a daily lesson with exactly %d items for a learner at CEFR level %s.
Mix two kinds of items:
- "sentence": a useful sentence as content, its translation, a grammarFocus and keyWords (word, partOfSpeech, ipa, definition, etymology)
- "vocabulary": a word as content, its translation, a definition, a contextSentence, 4 options (possible meanings) and the correctOptionIndex (0-based)

All translations, definitions, explanations and options must be written in %s, regardless of the language of the content.
The learner recently studied: %s
Use these as loose inspiration for related vocabulary and themes; repeating them is allowed.`, count, level, explanationLanguage, topics)

	var items []models.DailyLessonItem
	err = g.generateJSON(ctx, OpDailyLesson, &GenerateRequest{
		Contents: []Content{{Role: "user", Parts: []Part{{Text: prompt}}}},
	}, dailyLessonSchema(), &items)
	if err != nil {
		g.log.Warn("Tageslektion fehlgeschlagen", "error", err)
		return nil, err
	}

	if len(items) < count {
		err = newError(KindParse, OpDailyLesson, fmt.Errorf("%d von %d Einträgen geliefert", len(items), count))
		return nil, err
	}
	items = items[:count]
	for i := range items {
		if verr := items[i].Validate(); verr != nil {
			err = newError(KindParse, OpDailyLesson, fmt.Errorf("eintrag %d: %w", i, verr))
			return nil, err
		}
		items[i].ID = g.newID()
	}
	return items, nil
}

// generateJSON fordert eine schemagebundene JSON-Antwort an und dekodiert sie nach out
func (g *Gateway) generateJSON(ctx context.Context, op string, req *GenerateRequest, schema *Schema, out interface{}) error {
	if req.Model == "" {
		req.Model = g.cfg.TextModel
	}
	req.GenerationConfig = &GenerationConfig{
		ResponseMimeType: "application/json",
		ResponseSchema:   schema,
	}

	resp, err := g.provider.GenerateContent(ctx, req)
	if err != nil {
		return newError(KindProvider, op, err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return newError(KindEmptyResponse, op, nil)
	}
	if err := decodeValidated(extractJSON(text, schema.Type), schema, out); err != nil {
		g.log.Debug("Rohe Antwort", "op", op, "text", limitContent(text, 500))
		return newError(KindParse, op, err)
	}
	return nil
}

func limitContent(content string, maxLen int) string {
	if len(content) <= maxLen {
		return content
	}
	return content[:maxLen] + "…"
}

// extractJSON schneidet Markdown-Zäune oder Begleittext um das JSON ab.
// Gesucht wird die Klammer, die zum Typ der obersten Schema-Ebene passt.
func extractJSON(text, schemaType string) string {
	opener, closer := "{", "}"
	if schemaType == TypeArray {
		opener, closer = "[", "]"
	}
	start := strings.Index(text, opener)
	if start == -1 {
		return text
	}
	end := strings.LastIndex(text, closer)
	if end < start {
		return text
	}
	return text[start : end+1]
}
