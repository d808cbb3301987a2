package channel

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// MessageID is a Discord snowflake. It travels as a JSON string and is stored
// as BIGINT, which every snowflake fits in.
type MessageID uint64

func ParseMessageID(value string) (MessageID, error) {
	parsed, err := strconv.ParseUint(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse message id %q: %w", value, err)
	}
	return MessageID(parsed), nil
}

func (id MessageID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

func (id MessageID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.String())
}

func (id *MessageID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var n uint64
		if numErr := json.Unmarshal(data, &n); numErr != nil {
			return fmt.Errorf("message id: %w", err)
		}
		*id = MessageID(n)
		return nil
	}
	parsed, err := ParseMessageID(s)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

type ComponentType int

const (
	ComponentActionRow ComponentType = 1
	ComponentButton    ComponentType = 2
)

type ButtonStyle int

const (
	ButtonPrimary   ButtonStyle = 1
	ButtonSecondary ButtonStyle = 2
	ButtonSuccess   ButtonStyle = 3
	ButtonDanger    ButtonStyle = 4
)

type Message struct {
	ID         MessageID   `json:"id,omitempty"`
	Content    string      `json:"content,omitempty"`
	Username   string      `json:"username,omitempty"`
	Embeds     []Embed     `json:"embeds,omitempty"`
	Components []ActionRow `json:"components,omitempty"`
}

type Embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
	Footer      *EmbedFooter `json:"footer,omitempty"`
	Author      *EmbedAuthor `json:"author,omitempty"`
}

type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type EmbedFooter struct {
	Text    string `json:"text"`
	IconURL string `json:"icon_url,omitempty"`
}

type EmbedAuthor struct {
	Name    string `json:"name"`
	IconURL string `json:"icon_url,omitempty"`
}

type ActionRow struct {
	Type       ComponentType `json:"type"`
	Components []Button      `json:"components"`
}

type Button struct {
	Type     ComponentType `json:"type"`
	Style    ButtonStyle   `json:"style"`
	Label    string        `json:"label,omitempty"`
	CustomID string        `json:"custom_id,omitempty"`
}

func NewActionRow(buttons ...Button) ActionRow {
	for i := range buttons {
		buttons[i].Type = ComponentButton
	}
	return ActionRow{Type: ComponentActionRow, Components: buttons}
}

// Clone returns a deep copy so callers can edit embeds without aliasing a
// cached or stored message.
func (m Message) Clone() Message {
	out := m
	if m.Embeds != nil {
		out.Embeds = make([]Embed, len(m.Embeds))
		for i, e := range m.Embeds {
			out.Embeds[i] = e.clone()
		}
	}
	if m.Components != nil {
		out.Components = make([]ActionRow, len(m.Components))
		for i, row := range m.Components {
			out.Components[i] = ActionRow{
				Type:       row.Type,
				Components: append([]Button(nil), row.Components...),
			}
		}
	}
	return out
}

func (e Embed) clone() Embed {
	out := e
	if e.Fields != nil {
		out.Fields = append([]EmbedField(nil), e.Fields...)
	}
	if e.Footer != nil {
		footer := *e.Footer
		out.Footer = &footer
	}
	if e.Author != nil {
		author := *e.Author
		out.Author = &author
	}
	return out
}
