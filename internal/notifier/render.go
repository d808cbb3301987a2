package notifier

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"faultline/internal/channel"
	"faultline/internal/sysinfo"
)

// ViewTracebackCustomID is the custom id carried by the retrieval button.
// Actions are matched against it exactly.
const ViewTracebackCustomID = "error::traceback::view"

const (
	HeadlineLimit   = 256
	fieldValueLimit = 1024
	maxEmbedFields  = 25
	fixedFieldCount = 6
	colorRed        = 0xFF0000
	viewButtonLabel = "View Traceback"
)

// Blank is the zero width space Discord accepts as an empty field.
const Blank = "\u200b"

type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// BlankField is an inline spacer used to break field rows.
func BlankField() Field {
	return Field{Name: Blank, Value: Blank, Inline: true}
}

func InlineField(name, value string) Field {
	return Field{Name: name, Value: value, Inline: true}
}

type Author struct {
	Name    string `json:"name"`
	IconURL string `json:"icon_url,omitempty"`
}

// Summary is everything the notification shows about one failure.
type Summary struct {
	Event    string
	Headline string
	Fields   []Field
	Author   *Author
}

// TruncateHeadline cuts s to at most limit bytes without splitting a UTF-8
// sequence, walking back from the limit to the nearest rune start. Invalid
// byte runs are replaced with U+FFFD first.
func TruncateHeadline(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	s = strings.ToValidUTF8(s, string(utf8.RuneError))
	if len(s) <= limit {
		return s
	}
	n := limit
	for steps := 0; n > 0 && steps < utf8.UTFMax && !utf8.RuneStart(s[n]); steps++ {
		n--
	}
	return s[:n]
}

func OccurrenceFooter(n int64) string {
	if n == 1 {
		return "This error has occurred 1 time!"
	}
	return fmt.Sprintf("This error has occurred %d times!", n)
}

func systemFields(snap sysinfo.Snapshot) []Field {
	return []Field{
		InlineField("CPU Usage (5 minutes)", snap.Load5),
		InlineField("System Memory Usage", snap.UsedMemoryKB),
		InlineField("Goroutines", snap.Goroutines),
	}
}

func renderValue(value string) string {
	if value == Blank {
		return value
	}
	return "`" + TruncateHeadline(strings.ReplaceAll(value, "`", "'"), fieldValueLimit-2) + "`"
}

func viewTracebackRow() channel.ActionRow {
	return channel.NewActionRow(channel.Button{
		Style:    channel.ButtonDanger,
		Label:    viewButtonLabel,
		CustomID: ViewTracebackCustomID,
	})
}

func renderEmbed(s Summary, botUser string, snap sysinfo.Snapshot) channel.Embed {
	caller := s.Fields
	if len(caller) > maxEmbedFields-fixedFieldCount {
		caller = caller[:maxEmbedFields-fixedFieldCount]
	}
	fields := make([]Field, 0, len(caller)+fixedFieldCount)
	fields = append(fields,
		InlineField("Event", s.Event),
		InlineField("Bot User", botUser),
		BlankField(),
	)
	fields = append(fields, caller...)
	fields = append(fields, systemFields(snap)...)

	embed := channel.Embed{
		Title:  TruncateHeadline(s.Headline, HeadlineLimit),
		Color:  colorRed,
		Footer: &channel.EmbedFooter{Text: OccurrenceFooter(1)},
	}
	for _, f := range fields {
		embed.Fields = append(embed.Fields, channel.EmbedField{
			Name:   f.Name,
			Value:  renderValue(f.Value),
			Inline: f.Inline,
		})
	}
	if s.Author != nil && s.Author.Name != "" {
		embed.Author = &channel.EmbedAuthor{Name: s.Author.Name, IconURL: s.Author.IconURL}
	}
	return embed
}
