package channel

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/textproto"
)

// Interaction callback types.
const (
	CallbackPong                     = 1
	CallbackChannelMessageWithSource = 4
	CallbackDeferredUpdateMessage    = 6
)

type attachmentRef struct {
	ID       int    `json:"id"`
	Filename string `json:"filename"`
}

type callbackData struct {
	Content     string          `json:"content,omitempty"`
	Flags       int             `json:"flags"`
	Attachments []attachmentRef `json:"attachments,omitempty"`
}

type callbackPayload struct {
	Type int          `json:"type"`
	Data callbackData `json:"data"`
}

// EncodePrivateResponse builds an ephemeral interaction response. Without
// attachments it is plain JSON; with attachments it is multipart/form-data
// carrying payload_json plus one files[n] part per attachment.
func EncodePrivateResponse(resp Response) (contentType string, body []byte, err error) {
	payload := callbackPayload{
		Type: CallbackChannelMessageWithSource,
		Data: callbackData{Content: resp.Content, Flags: privateMessageFlags},
	}
	if len(resp.Attachments) == 0 {
		body, err = json.Marshal(payload)
		if err != nil {
			return "", nil, fmt.Errorf("marshal response: %w", err)
		}
		return "application/json", body, nil
	}

	for i, a := range resp.Attachments {
		payload.Data.Attachments = append(payload.Data.Attachments, attachmentRef{ID: i, Filename: a.Filename})
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return "", nil, fmt.Errorf("marshal response: %w", err)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="payload_json"`)
	header.Set("Content-Type", "application/json")
	part, err := w.CreatePart(header)
	if err != nil {
		return "", nil, fmt.Errorf("write payload part: %w", err)
	}
	if _, err := part.Write(payloadJSON); err != nil {
		return "", nil, fmt.Errorf("write payload part: %w", err)
	}

	for i, a := range resp.Attachments {
		fileHeader := make(textproto.MIMEHeader)
		fileHeader.Set("Content-Disposition",
			fmt.Sprintf(`form-data; name="files[%d]"; filename=%q`, i, a.Filename))
		fileHeader.Set("Content-Type", "text/plain; charset=utf-8")
		filePart, err := w.CreatePart(fileHeader)
		if err != nil {
			return "", nil, fmt.Errorf("write attachment %s: %w", a.Filename, err)
		}
		if _, err := filePart.Write(a.Data); err != nil {
			return "", nil, fmt.Errorf("write attachment %s: %w", a.Filename, err)
		}
	}
	if err := w.Close(); err != nil {
		return "", nil, fmt.Errorf("close multipart body: %w", err)
	}
	return w.FormDataContentType(), buf.Bytes(), nil
}
