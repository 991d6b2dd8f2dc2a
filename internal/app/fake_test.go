package app

import (
	"context"
	"encoding/base64"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"sprachlupe/internal/audio"
	"sprachlupe/internal/llm"
	"sprachlupe/internal/models"
	"sprachlupe/internal/storage"
)

var testNow = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

type analyzeCall struct {
	In             llm.ContentInput
	Source, Target string
}

type lessonCall struct {
	Level  models.Level
	Count  int
	Topics []string
	Lang   string
}

// fakeGateway liefert konfigurierbare Antworten und zeichnet Aufrufe auf
type fakeGateway struct {
	mu sync.Mutex

	analyzeFn func(in llm.ContentInput) (*models.LearningAnalysis, error)
	imageFn   func(prompt string) string
	chatFn    func(history []models.ChatMessage, msg string) (string, error)
	storyFn   func(words []string) (*models.StoryResponse, error)
	speechFn  func(text string) string
	lessonFn  func(count int) ([]models.DailyLessonItem, error)

	analyzeCalls []analyzeCall
	imageCalls   int
	storyWords   [][]string
	lessonCalls  []lessonCall
}

func (f *fakeGateway) AnalyzeContent(ctx context.Context, in llm.ContentInput, sourceLang, targetLang string) (*models.LearningAnalysis, error) {
	f.mu.Lock()
	f.analyzeCalls = append(f.analyzeCalls, analyzeCall{In: in, Source: sourceLang, Target: targetLang})
	fn := f.analyzeFn
	f.mu.Unlock()
	if fn != nil {
		return fn(in)
	}
	text := in.Text
	if in.Image != nil {
		text = "bild"
	}
	return &models.LearningAnalysis{OriginalText: text, Translation: "übersetzt: " + text, VisualAidPrompt: "bild von " + text}, nil
}

func (f *fakeGateway) GenerateMnemonicImage(ctx context.Context, prompt string) string {
	f.mu.Lock()
	f.imageCalls++
	fn := f.imageFn
	f.mu.Unlock()
	if fn != nil {
		return fn(prompt)
	}
	return "data:image/png;base64,iVBORw0KGgo="
}

func (f *fakeGateway) SendChatMessage(ctx context.Context, history []models.ChatMessage, newMessage string, analysis *models.LearningAnalysis) (string, error) {
	if f.chatFn != nil {
		return f.chatFn(history, newMessage)
	}
	return "antwort auf " + newMessage, nil
}

func (f *fakeGateway) GenerateStoryFromWords(ctx context.Context, words []string, theme string) (*models.StoryResponse, error) {
	f.mu.Lock()
	f.storyWords = append(f.storyWords, words)
	fn := f.storyFn
	f.mu.Unlock()
	if fn != nil {
		return fn(words)
	}
	return &models.StoryResponse{Title: "Titel", Content: "Es war einmal", EnglishContent: "Once upon a time"}, nil
}

func (f *fakeGateway) GenerateTextToSpeech(ctx context.Context, text string) string {
	if f.speechFn != nil {
		return f.speechFn(text)
	}
	return ""
}

func (f *fakeGateway) GenerateDailyLesson(ctx context.Context, level models.Level, count int, previousTopics []string, explanationLanguage string) ([]models.DailyLessonItem, error) {
	f.mu.Lock()
	f.lessonCalls = append(f.lessonCalls, lessonCall{Level: level, Count: count, Topics: previousTopics, Lang: explanationLanguage})
	fn := f.lessonFn
	f.mu.Unlock()
	if fn != nil {
		return fn(count)
	}
	return testLesson(count), nil
}

func (f *fakeGateway) calls() []analyzeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]analyzeCall(nil), f.analyzeCalls...)
}

// testLesson erzeugt abwechselnd Vokabel- und Satz-Einträge; Vokabeln haben Option 1 als Lösung
func testLesson(count int) []models.DailyLessonItem {
	items := make([]models.DailyLessonItem, count)
	for i := range items {
		if i%2 == 0 {
			idx := 1
			items[i] = models.DailyLessonItem{
				ID: "item-" + string(rune('a'+i)), Type: models.LessonVocabulary,
				Content: "Wort", Translation: "word",
				Options: []string{"falsch", "richtig", "auch falsch"}, CorrectOptionIndex: &idx,
			}
		} else {
			items[i] = models.DailyLessonItem{
				ID: "item-" + string(rune('a'+i)), Type: models.LessonSentence,
				Content: "Das ist ein Satz.", Translation: "This is a sentence.", GrammarFocus: "Präsens",
			}
		}
	}
	return items
}

type fakeSpeaker struct {
	mu    sync.Mutex
	plays []*audio.Buffer
	stops int
}

func (s *fakeSpeaker) Play(buf *audio.Buffer) {
	s.mu.Lock()
	s.plays = append(s.plays, buf)
	s.mu.Unlock()
}

func (s *fakeSpeaker) Stop() {
	s.mu.Lock()
	s.stops++
	s.mu.Unlock()
}

func (s *fakeSpeaker) State() audio.State { return audio.StateStopped }

type testEnv struct {
	ctrl    *Controller
	gateway *fakeGateway
	store   *storage.Store
	speaker *fakeSpeaker
}

// newTestEnv erstellt einen Controller über einem Speicher, den seed vorbefüllen kann
func newTestEnv(t *testing.T, seed func(ctx context.Context, s *storage.Store)) *testEnv {
	t.Helper()
	ctx := context.Background()
	store := storage.NewStore(storage.NewMemoryKV(), nil, nil)
	if seed != nil {
		seed(ctx, store)
	}
	env := &testEnv{gateway: &fakeGateway{}, store: store, speaker: &fakeSpeaker{}}
	env.ctrl = New(ctx, Options{
		Gateway: env.gateway,
		Store:   store,
		Player:  env.speaker,
		Now:     func() time.Time { return testNow },
	})
	return env
}

func seedHistory(t *testing.T, n int) func(context.Context, *storage.Store) {
	return func(ctx context.Context, s *storage.Store) {
		items := make([]models.HistoryItem, n)
		for i := range items {
			items[i] = models.HistoryItem{
				ID:        "seed-" + string(rune('a'+i)),
				Timestamp: testNow.Add(-time.Duration(i) * time.Hour),
				Data:      models.LearningAnalysis{OriginalText: "wort" + string(rune('a'+i))},
			}
		}
		require.NoError(t, s.SaveHistory(ctx, items))
	}
}

func pcmBase64(samples ...int16) string {
	raw := make([]byte, 0, len(samples)*2)
	for _, s := range samples {
		raw = append(raw, byte(uint16(s)), byte(uint16(s)>>8))
	}
	return base64.StdEncoding.EncodeToString(raw)
}

// waitFor wartet, bis cond erfüllt ist
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
}
