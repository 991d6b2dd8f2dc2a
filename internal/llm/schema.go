package llm

import (
	"encoding/json"
	"fmt"
	"math"
)

// Schema-Typen im OpenAPI-Dialekt des KI-Dienstes
const (
	TypeObject  = "OBJECT"
	TypeArray   = "ARRAY"
	TypeString  = "STRING"
	TypeInteger = "INTEGER"
	TypeNumber  = "NUMBER"
	TypeBoolean = "BOOLEAN"
)

// Schema beschreibt die erzwungene JSON-Struktur einer Antwort
type Schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Enum        []string           `json:"enum,omitempty"`
}

func str(desc string) *Schema {
	return &Schema{Type: TypeString, Description: desc}
}

func arrayOf(items *Schema) *Schema {
	return &Schema{Type: TypeArray, Items: items}
}

func wordBreakdownSchema() *Schema {
	return &Schema{
		Type: TypeObject,
		Properties: map[string]*Schema{
			"word":         str("The word as it appears in the text"),
			"partOfSpeech": str("Part of speech"),
			"ipa":          str("IPA pronunciation"),
			"definition":   str("Meaning in context"),
			"etymology":    str("Short origin or root of the word"),
		},
		Required: []string{"word", "partOfSpeech", "ipa", "definition", "etymology"},
	}
}

func analysisSchema() *Schema {
	return &Schema{
		Type: TypeObject,
		Properties: map[string]*Schema{
			"originalText":    str("The original text, transcribed if it came from an image"),
			"translation":     str("Natural translation into the target language"),
			"breakdown":       arrayOf(wordBreakdownSchema()),
			"examples":        arrayOf(str("")),
			"grammarNotes":    str("Grammar explanation"),
			"visualAidPrompt": str("Prompt for a mnemonic illustration"),
		},
		Required: []string{"originalText", "translation", "breakdown", "examples", "grammarNotes", "visualAidPrompt"},
	}
}

func storySchema() *Schema {
	return &Schema{
		Type: TypeObject,
		Properties: map[string]*Schema{
			"title":          str("Story title"),
			"content":        str("The story in the target language"),
			"englishContent": str("English translation of the story"),
		},
		Required: []string{"title", "content", "englishContent"},
	}
}

func dailyLessonSchema() *Schema {
	return arrayOf(&Schema{
		Type: TypeObject,
		Properties: map[string]*Schema{
			"type":               {Type: TypeString, Enum: []string{"sentence", "vocabulary"}},
			"content":            str("The sentence or the vocabulary word"),
			"translation":        str("Translation in the explanation language"),
			"grammarFocus":       str("Grammar point of a sentence item"),
			"keyWords":           arrayOf(wordBreakdownSchema()),
			"definition":         str("Definition of a vocabulary item"),
			"contextSentence":    str("Example sentence using the vocabulary word"),
			"options":            arrayOf(str("")),
			"correctOptionIndex": {Type: TypeInteger},
		},
		Required: []string{"type", "content", "translation"},
	})
}

// Validate prüft einen dekodierten JSON-Wert gegen das Schema
func (s *Schema) Validate(v interface{}) error {
	return s.validate("$", v)
}

func (s *Schema) validate(path string, v interface{}) error {
	if v == nil {
		return fmt.Errorf("%s: null statt %s", path, s.Type)
	}
	switch s.Type {
	case TypeObject:
		obj, ok := v.(map[string]interface{})
		if !ok {
			return fmt.Errorf("%s: objekt erwartet", path)
		}
		for _, name := range s.Required {
			if val, ok := obj[name]; !ok || val == nil {
				return fmt.Errorf("%s: pflichtfeld %q fehlt", path, name)
			}
		}
		// optionale Felder dürfen null sein
		for name, val := range obj {
			prop, ok := s.Properties[name]
			if !ok || val == nil {
				continue
			}
			if err := prop.validate(path+"."+name, val); err != nil {
				return err
			}
		}
	case TypeArray:
		arr, ok := v.([]interface{})
		if !ok {
			return fmt.Errorf("%s: array erwartet", path)
		}
		if s.Items == nil {
			return nil
		}
		for i, el := range arr {
			if err := s.Items.validate(fmt.Sprintf("%s[%d]", path, i), el); err != nil {
				return err
			}
		}
	case TypeString:
		sv, ok := v.(string)
		if !ok {
			return fmt.Errorf("%s: string erwartet", path)
		}
		if len(s.Enum) > 0 && !contains(s.Enum, sv) {
			return fmt.Errorf("%s: %q nicht in %v", path, sv, s.Enum)
		}
	case TypeInteger:
		f, ok := v.(float64)
		if !ok || f != math.Trunc(f) {
			return fmt.Errorf("%s: ganzzahl erwartet", path)
		}
	case TypeNumber:
		if _, ok := v.(float64); !ok {
			return fmt.Errorf("%s: zahl erwartet", path)
		}
	case TypeBoolean:
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("%s: boolean erwartet", path)
		}
	}
	return nil
}

// decodeValidated prüft text gegen das Schema und dekodiert ihn nach out
func decodeValidated(text string, schema *Schema, out interface{}) error {
	var raw interface{}
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return err
	}
	if err := schema.Validate(raw); err != nil {
		return err
	}
	return json.Unmarshal([]byte(text), out)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
