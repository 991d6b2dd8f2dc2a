package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Provider definiert das Interface für das KI-Backend
type Provider interface {
	// GenerateContent sendet eine einzelne Anfrage und liefert die Antwort
	GenerateContent(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)

	// GetModels gibt verfügbare Modelle zurück
	GetModels(ctx context.Context) ([]ModelInfo, error)

	// IsAvailable prüft, ob das Backend erreichbar ist
	IsAvailable(ctx context.Context) bool

	// GetName gibt den Namen des Providers zurück
	GetName() string
}

// GenerateRequest ist eine Anfrage an den KI-Dienst
type GenerateRequest struct {
	Model             string            `json:"-"`
	Contents          []Content         `json:"contents"`
	SystemInstruction *Content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *GenerationConfig `json:"generationConfig,omitempty"`
}

// Content ist ein Gesprächsbeitrag aus mehreren Teilen
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// Part ist Text oder eingebettete Binärdaten
type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inlineData,omitempty"`
}

// InlineData enthält base64-kodierte Binärdaten mit MIME-Typ
type InlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// GenerationConfig legt Antwortformat und Ausgabemodalität fest
type GenerationConfig struct {
	Temperature        float64       `json:"temperature,omitempty"`
	ResponseMimeType   string        `json:"responseMimeType,omitempty"`
	ResponseSchema     *Schema       `json:"responseSchema,omitempty"`
	ResponseModalities []string      `json:"responseModalities,omitempty"`
	ImageConfig        *ImageConfig  `json:"imageConfig,omitempty"`
	SpeechConfig       *SpeechConfig `json:"speechConfig,omitempty"`
}

type ImageConfig struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
}

type SpeechConfig struct {
	VoiceConfig VoiceConfig `json:"voiceConfig"`
}

type VoiceConfig struct {
	PrebuiltVoiceConfig PrebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

type PrebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

// GenerateResponse enthält die Antwort des KI-Dienstes
type GenerateResponse struct {
	Candidates []Candidate `json:"candidates"`
	Model      string      `json:"modelVersion,omitempty"`
}

type Candidate struct {
	Content      Content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

// Text liefert den verketteten Text des ersten Kandidaten
func (r *GenerateResponse) Text() string {
	if r == nil || len(r.Candidates) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String()
}

// Parts liefert die Teile des ersten Kandidaten
func (r *GenerateResponse) Parts() []Part {
	if r == nil || len(r.Candidates) == 0 {
		return nil
	}
	return r.Candidates[0].Content.Parts
}

// ModelInfo enthält Informationen über ein Modell
type ModelInfo struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

// MaxErrorBodySize begrenzt gelesene Fehlerantworten
const MaxErrorBodySize = 64 << 10

// GeminiProvider implementiert den Provider für die Gemini-REST-API
type GeminiProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client

	mu           sync.RWMutex
	defaultModel string
}

// NewGeminiProvider erstellt einen neuen Gemini-Provider
func NewGeminiProvider(baseURL, apiKey, defaultModel string, timeout time.Duration) *GeminiProvider {
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &GeminiProvider{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		apiKey:       apiKey,
		defaultModel: defaultModel,
		client:       &http.Client{Timeout: timeout},
	}
}

func (g *GeminiProvider) GetName() string {
	return "Gemini"
}

// SetModel ändert das Standard-Modell
func (g *GeminiProvider) SetModel(model string) {
	if model == "" {
		return
	}
	g.mu.Lock()
	g.defaultModel = model
	g.mu.Unlock()
}

// GetCurrentModel gibt das aktuelle Modell zurück
func (g *GeminiProvider) GetCurrentModel() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.defaultModel
}

func (g *GeminiProvider) IsAvailable(ctx context.Context) bool {
	_, err := g.GetModels(ctx)
	return err == nil
}

func (g *GeminiProvider) GetModels(ctx context.Context) ([]ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/models", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gemini nicht erreichbar: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, MaxErrorBodySize))
		return nil, fmt.Errorf("gemini-fehler (%d): %s", resp.StatusCode, string(body))
	}

	var result struct {
		Models []ModelInfo `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	for i := range result.Models {
		result.Models[i].Name = strings.TrimPrefix(result.Models[i].Name, "models/")
	}
	return result.Models, nil
}

func (g *GeminiProvider) GenerateContent(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	model := req.Model
	if model == "" {
		model = g.GetCurrentModel()
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("anfrage serialisieren: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	// Schlüssel im Header statt in der URL, damit er nicht in Logs landet
	httpReq.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gemini-anfrage fehlgeschlagen: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, MaxErrorBodySize))
		return nil, fmt.Errorf("gemini-fehler (%d): %s", resp.StatusCode, string(msg))
	}

	var result GenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("antwort dekodieren: %w", err)
	}
	return &result, nil
}
