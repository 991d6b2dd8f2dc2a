package llm

import (
	"fmt"
	"strings"
)

// ParseDataURI zerlegt "data:<mime>;base64,<daten>" in MIME-Typ und Nutzdaten
func ParseDataURI(uri string) (*InlineData, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return nil, fmt.Errorf("keine data-URI")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, fmt.Errorf("data-URI ohne Nutzdaten")
	}
	mime, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return nil, fmt.Errorf("data-URI ist nicht base64-kodiert")
	}
	if mime == "" || payload == "" {
		return nil, fmt.Errorf("unvollständige data-URI")
	}
	return &InlineData{MimeType: mime, Data: payload}, nil
}

// DataURI setzt eine data-URI aus MIME-Typ und base64-Daten zusammen
func (d *InlineData) DataURI() string {
	return "data:" + d.MimeType + ";base64," + d.Data
}
