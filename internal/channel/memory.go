package channel

import (
	"context"
	"net/http"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// MemoryChannel keeps messages in process. It backs dry-run mode and the
// pipeline tests, and can be told to fail a given operation.
type MemoryChannel struct {
	mu        sync.Mutex
	logger    *zap.Logger
	nextID    MessageID
	messages  map[MessageID]Message
	failures  map[string]error
	responses []RecordedResponse
	calls     map[string]int
}

// RecordedResponse is an interaction answer captured by RespondPrivate or
// Acknowledge.
type RecordedResponse struct {
	Interaction  Interaction
	Response     Response
	Acknowledged bool
}

func NewMemoryChannel(logger *zap.Logger) *MemoryChannel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryChannel{
		logger:   logger.Named("channel.memory"),
		nextID:   1_000_000_000_000_000_000,
		messages: make(map[MessageID]Message),
		failures: make(map[string]error),
		calls:    make(map[string]int),
	}
}

// Fail makes every subsequent call of op ("post", "edit", "fetch", "delete",
// "respond", "acknowledge") return err. A nil err clears the failure.
func (c *MemoryChannel) Fail(op string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.failures, op)
		return
	}
	c.failures[op] = err
}

func (c *MemoryChannel) Post(_ context.Context, msg Message) (MessageID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("post"); err != nil {
		return 0, err
	}
	c.nextID++
	msg = msg.Clone()
	msg.ID = c.nextID
	c.messages[msg.ID] = msg
	c.logger.Debug("Posted message", zap.Stringer("message_id", msg.ID))
	return msg.ID, nil
}

func (c *MemoryChannel) Edit(_ context.Context, id MessageID, msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("edit"); err != nil {
		return err
	}
	if _, ok := c.messages[id]; !ok {
		return unknownMessage("edit")
	}
	msg = msg.Clone()
	msg.ID = id
	c.messages[id] = msg
	return nil
}

func (c *MemoryChannel) Fetch(_ context.Context, id MessageID) (Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("fetch"); err != nil {
		return Message{}, err
	}
	msg, ok := c.messages[id]
	if !ok {
		return Message{}, unknownMessage("fetch")
	}
	return msg.Clone(), nil
}

func (c *MemoryChannel) Delete(_ context.Context, id MessageID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("delete"); err != nil {
		return err
	}
	delete(c.messages, id)
	return nil
}

func (c *MemoryChannel) RespondPrivate(_ context.Context, interaction Interaction, resp Response) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("respond"); err != nil {
		return err
	}
	copied := Response{Content: resp.Content}
	for _, a := range resp.Attachments {
		copied.Attachments = append(copied.Attachments, Attachment{
			Filename: a.Filename,
			Data:     append([]byte(nil), a.Data...),
		})
	}
	c.responses = append(c.responses, RecordedResponse{Interaction: interaction, Response: copied})
	return nil
}

func (c *MemoryChannel) Acknowledge(_ context.Context, interaction Interaction) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("acknowledge"); err != nil {
		return err
	}
	c.responses = append(c.responses, RecordedResponse{Interaction: interaction, Acknowledged: true})
	return nil
}

// Live returns the ids of messages currently present, oldest first.
func (c *MemoryChannel) Live() []MessageID {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]MessageID, 0, len(c.messages))
	for id := range c.messages {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (c *MemoryChannel) Get(id MessageID) (Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg, ok := c.messages[id]
	return msg.Clone(), ok
}

func (c *MemoryChannel) Responses() []RecordedResponse {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]RecordedResponse(nil), c.responses...)
}

// Calls reports how many times op was attempted, failed calls included.
func (c *MemoryChannel) Calls(op string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[op]
}

func (c *MemoryChannel) enter(op string) error {
	c.calls[op]++
	return c.failures[op]
}

func unknownMessage(op string) error {
	return &APIError{Op: op, Status: http.StatusNotFound, Code: CodeUnknownMessage, Message: "Unknown Message"}
}
