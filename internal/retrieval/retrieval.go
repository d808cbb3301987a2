// Package retrieval serves the full payload behind a notification when a user
// presses its View Traceback button.
package retrieval

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"faultline/internal/channel"
	"faultline/internal/notifier"
)

const (
	TracebackFilename = "traceback.txt"
	NotFoundMessage   = "No traceback found."

	// UnavailableMessage answers a traceback request the store could not serve.
	UnavailableMessage = "The traceback could not be loaded right now. Try again in a moment."

	// DefaultAttachmentLimit is the largest attachment sent inline.
	DefaultAttachmentLimit = 8 << 20
)

type PayloadStore interface {
	FetchPayload(ctx context.Context, notificationRef int64) (string, bool, error)
}

// Archive publishes payloads too large to attach and returns a link to them.
type Archive interface {
	Publish(ctx context.Context, name string, data []byte) (string, error)
}

// Action is a button press on a notification.
type Action struct {
	CustomID    string
	MessageID   channel.MessageID
	Interaction channel.Interaction
}

type Options struct {
	// Archive is optional. Without it oversized payloads are cut to the limit.
	Archive         Archive
	AttachmentLimit int
}

type Service struct {
	store           PayloadStore
	archive         Archive
	attachmentLimit int
	logger          *zap.Logger
}

func NewService(logger *zap.Logger, store PayloadStore, opts Options) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := opts.AttachmentLimit
	if limit <= 0 {
		limit = DefaultAttachmentLimit
	}
	return &Service{
		store:           store,
		archive:         opts.Archive,
		attachmentLimit: limit,
		logger:          logger.Named("retrieval"),
	}
}

func (s *Service) FetchPayload(ctx context.Context, ref channel.MessageID) (string, bool, error) {
	payload, found, err := s.store.FetchPayload(ctx, int64(ref))
	if err != nil {
		return "", false, fmt.Errorf("fetch payload for %s: %w", ref, err)
	}
	return payload, found, nil
}

// Respond builds the private response for action. handled is false when the
// action is not a traceback request.
func (s *Service) Respond(ctx context.Context, action Action) (resp channel.Response, handled bool, err error) {
	if action.CustomID != notifier.ViewTracebackCustomID {
		retrievalsTotal.WithLabelValues("ignored").Inc()
		return channel.Response{}, false, nil
	}

	payload, found, err := s.FetchPayload(ctx, action.MessageID)
	if err != nil {
		retrievalsTotal.WithLabelValues("error").Inc()
		return channel.Response{}, true, err
	}
	if !found {
		retrievalsTotal.WithLabelValues("not_found").Inc()
		return channel.Response{Content: NotFoundMessage}, true, nil
	}

	if len(payload) <= s.attachmentLimit {
		retrievalsTotal.WithLabelValues("found").Inc()
		return attachment([]byte(payload)), true, nil
	}

	if s.archive != nil {
		link, err := s.archive.Publish(ctx, action.MessageID.String()+"/"+TracebackFilename, []byte(payload))
		if err == nil {
			retrievalsTotal.WithLabelValues("archived").Inc()
			return channel.Response{Content: "The traceback is too large to attach: " + link}, true, nil
		}
		s.logger.Warn("Failed to archive oversized traceback",
			zap.Stringer("message_id", action.MessageID), zap.Int("bytes", len(payload)), zap.Error(err))
	}

	retrievalsTotal.WithLabelValues("truncated").Inc()
	resp = attachment([]byte(notifier.TruncateHeadline(payload, s.attachmentLimit)))
	resp.Content = fmt.Sprintf("The traceback was cut to its first %d bytes.", s.attachmentLimit)
	return resp, true, nil
}

// HandleAction answers a traceback request through responder. Actions with
// any other custom id are acknowledged without a reply. A store failure is
// answered with UnavailableMessage and still returned.
func (s *Service) HandleAction(ctx context.Context, action Action, responder channel.Responder) error {
	resp, handled, err := s.Respond(ctx, action)
	switch {
	case err != nil:
		if respondErr := responder.RespondPrivate(ctx, action.Interaction, channel.Response{Content: UnavailableMessage}); respondErr != nil {
			s.logger.Warn("Failed to send retry hint",
				zap.String("interaction_id", action.Interaction.ID), zap.Error(respondErr))
		}
		return err
	case !handled:
		if err := responder.Acknowledge(ctx, action.Interaction); err != nil {
			return fmt.Errorf("acknowledge %s: %w", action.Interaction.ID, err)
		}
		return nil
	}
	if err := responder.RespondPrivate(ctx, action.Interaction, resp); err != nil {
		return fmt.Errorf("respond to %s: %w", action.Interaction.ID, err)
	}
	return nil
}

func attachment(data []byte) channel.Response {
	return channel.Response{Attachments: []channel.Attachment{{Filename: TracebackFilename, Data: data}}}
}
