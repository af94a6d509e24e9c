package core

import (
	"encoding/json"
	"fmt"
)

// Part represents a polymorphic segment of role-based content. Concrete part
// types implement the unexported isPart marker enabling a closed set.
type Part interface{ isPart() }

// TextPart is a plain text content segment.
type TextPart struct {
	Text     string         // Plain UTF-8 text
	Metadata map[string]any // Optional producer-provided metadata
}

// isPart implements the Part interface for TextPart.
func (TextPart) isPart() {}

// FunctionCall describes a tool/function invocation request.
type FunctionCall struct {
	ID        string `json:"id,omitempty"`        // Optional stable id (can be supplied later)
	Name      string `json:"name"`                // Tool / function name
	Arguments string `json:"arguments,omitempty"` // Serialized argument payload (e.g. JSON)
}

// FunctionCallPart wraps a FunctionCall as a content part.
type FunctionCallPart struct {
	FunctionCall FunctionCall
	Metadata     map[string]any
}

// isPart implements the Part interface for FunctionCallPart.
func (FunctionCallPart) isPart() {}

// FunctionResponse describes the outcome of a function call.
type FunctionResponse struct {
	ID       string      `json:"id,omitempty"`       // Matches originating FunctionCall ID
	Name     string      `json:"name"`               // Function name
	Response interface{} `json:"response,omitempty"` // Successful result (any shape)
	Error    string      `json:"error,omitempty"`    // Populated on failure
}

// FunctionResponsePart wraps a FunctionResponse as a content part.
type FunctionResponsePart struct {
	FunctionResponse FunctionResponse
	Metadata         map[string]any
}

// isPart implements the Part interface for FunctionResponsePart.
func (FunctionResponsePart) isPart() {}

// Content holds role + ordered parts.
type Content struct {
	Role  string `json:"role,omitempty"` // Conversation role (user, assistant, tool, system,...)
	Parts []Part `json:"parts"`          // Ordered heterogeneous parts
}

// NewTextContent is a convenience constructor for single text part content.
func NewTextContent(role, text string) Content {
	return Content{Role: role, Parts: []Part{TextPart{Text: text}}}
}

// Text concatenates the text parts of the content in order. Non-text parts
// are skipped.
func (c Content) Text() string {
	var out string
	for _, p := range c.Parts {
		if tp, ok := p.(TextPart); ok {
			out += tp.Text
		}
	}
	return out
}

// partEnvelope is the tagged wire form of a Part. The Type discriminator
// makes the closed part set round-trippable through JSON, which the
// persistent session store and the history endpoint rely on.
type partEnvelope struct {
	Type             string            `json:"type"`
	Text             string            `json:"text,omitempty"`
	FunctionCall     *FunctionCall     `json:"function_call,omitempty"`
	FunctionResponse *FunctionResponse `json:"function_response,omitempty"`
	Metadata         map[string]any    `json:"metadata,omitempty"`
}

// MarshalJSON encodes the content with type-tagged parts.
func (c Content) MarshalJSON() ([]byte, error) {
	envelopes := make([]partEnvelope, 0, len(c.Parts))
	for _, p := range c.Parts {
		switch part := p.(type) {
		case TextPart:
			envelopes = append(envelopes, partEnvelope{Type: "text", Text: part.Text, Metadata: part.Metadata})
		case FunctionCallPart:
			fc := part.FunctionCall
			envelopes = append(envelopes, partEnvelope{Type: "function_call", FunctionCall: &fc, Metadata: part.Metadata})
		case FunctionResponsePart:
			fr := part.FunctionResponse
			envelopes = append(envelopes, partEnvelope{Type: "function_response", FunctionResponse: &fr, Metadata: part.Metadata})
		default:
			return nil, fmt.Errorf("unknown part type %T", p)
		}
	}

	return json.Marshal(struct {
		Role  string         `json:"role,omitempty"`
		Parts []partEnvelope `json:"parts"`
	}{Role: c.Role, Parts: envelopes})
}

// UnmarshalJSON decodes type-tagged parts back into concrete Part values.
func (c *Content) UnmarshalJSON(data []byte) error {
	var wire struct {
		Role  string         `json:"role"`
		Parts []partEnvelope `json:"parts"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	c.Role = wire.Role
	c.Parts = nil
	for _, env := range wire.Parts {
		switch env.Type {
		case "text":
			c.Parts = append(c.Parts, TextPart{Text: env.Text, Metadata: env.Metadata})
		case "function_call":
			var fc FunctionCall
			if env.FunctionCall != nil {
				fc = *env.FunctionCall
			}
			c.Parts = append(c.Parts, FunctionCallPart{FunctionCall: fc, Metadata: env.Metadata})
		case "function_response":
			var fr FunctionResponse
			if env.FunctionResponse != nil {
				fr = *env.FunctionResponse
			}
			c.Parts = append(c.Parts, FunctionResponsePart{FunctionResponse: fr, Metadata: env.Metadata})
		default:
			return fmt.Errorf("unknown part type %q", env.Type)
		}
	}
	return nil
}
