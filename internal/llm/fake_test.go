package llm

import (
	"context"
	"sync"
)

// fakeProvider liefert vorgegebene Antworten und zeichnet Anfragen auf
type fakeProvider struct {
	mu       sync.Mutex
	requests []*GenerateRequest
	respond  func(req *GenerateRequest) (*GenerateResponse, error)
}

func (f *fakeProvider) GenerateContent(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return f.respond(req)
}

func (f *fakeProvider) GetModels(ctx context.Context) ([]ModelInfo, error) { return nil, nil }
func (f *fakeProvider) IsAvailable(ctx context.Context) bool             { return true }
func (f *fakeProvider) GetName() string                                  { return "fake" }

func (f *fakeProvider) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func textResponse(text string) *GenerateResponse {
	return &GenerateResponse{Candidates: []Candidate{{Content: Content{Role: "model", Parts: []Part{{Text: text}}}}}}
}

func inlineResponse(mime, data string) *GenerateResponse {
	return &GenerateResponse{Candidates: []Candidate{{Content: Content{Parts: []Part{{InlineData: &InlineData{MimeType: mime, Data: data}}}}}}}
}

func fixed(resp *GenerateResponse, err error) func(*GenerateRequest) (*GenerateResponse, error) {
	return func(*GenerateRequest) (*GenerateResponse, error) { return resp, err }
}
