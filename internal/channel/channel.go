package channel

import "context"

type Channel interface {
	Post(ctx context.Context, msg Message) (MessageID, error)
	Edit(ctx context.Context, id MessageID, msg Message) error
	Fetch(ctx context.Context, id MessageID) (Message, error)
	Delete(ctx context.Context, id MessageID) error
}

// Interaction identifies the user action a private response answers.
type Interaction struct {
	ID    string `json:"id"`
	Token string `json:"token"`
}

type Attachment struct {
	Filename string
	Data     []byte
}

// Response is only visible to the user that triggered the interaction.
type Response struct {
	Content     string
	Attachments []Attachment
}

type Responder interface {
	RespondPrivate(ctx context.Context, interaction Interaction, resp Response) error
	// Acknowledge answers an interaction without changing anything the user
	// sees.
	Acknowledge(ctx context.Context, interaction Interaction) error
}
