// Package notifier renders error summaries into channel messages, posts one
// per new failure and keeps its occurrence footer current.
package notifier

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"faultline/internal/channel"
	"faultline/internal/sysinfo"
)

// MetricsProvider supplies the host figures appended to every summary.
type MetricsProvider interface {
	Snapshot() sysinfo.Snapshot
}

// MessageCache holds the last rendered message per reference and the
// highest occurrence count shown on it.
type MessageCache interface {
	Save(ctx context.Context, id channel.MessageID, msg channel.Message) error
	Lookup(ctx context.Context, id channel.MessageID) (channel.Message, bool, error)
	AdvanceShown(ctx context.Context, id channel.MessageID, n int64) (bool, error)
	Shown(ctx context.Context, id channel.MessageID) (int64, error)
	Forget(ctx context.Context, id channel.MessageID) error
}

type Options struct {
	// BotUser is shown in the Bot User field.
	BotUser string
	// Cache is optional; without it every edit fetches the message first.
	Cache   MessageCache
	Metrics MetricsProvider
}

type Notifier struct {
	channel channel.Channel
	cache   MessageCache
	metrics MetricsProvider
	botUser string
	logger  *zap.Logger
	now     func() time.Time
}

func New(logger *zap.Logger, ch channel.Channel, opts Options) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	botUser := opts.BotUser
	if botUser == "" {
		botUser = "faultline"
	}
	return &Notifier{
		channel: ch,
		cache:   opts.Cache,
		metrics: opts.Metrics,
		botUser: botUser,
		logger:  logger.Named("notifier"),
		now:     time.Now,
	}
}

// Render builds the first-occurrence message for s.
func (n *Notifier) Render(s Summary) channel.Message {
	snap := sysinfo.Snapshot{Load5: sysinfo.Unknown, UsedMemoryKB: sysinfo.Unknown, Goroutines: sysinfo.Unknown}
	if n.metrics != nil {
		snap = n.metrics.Snapshot()
	}
	embed := renderEmbed(s, n.botUser, snap)
	embed.Timestamp = n.now().UTC().Format(time.RFC3339)
	return channel.Message{
		Embeds:     []channel.Embed{embed},
		Components: []channel.ActionRow{viewTracebackRow()},
	}
}

// Post sends the first-occurrence notification and returns its reference.
func (n *Notifier) Post(ctx context.Context, s Summary) (channel.MessageID, error) {
	msg := n.Render(s)
	id, err := n.channel.Post(ctx, msg)
	if err != nil {
		return 0, fmt.Errorf("post notification: %w", err)
	}
	if n.cache != nil {
		if _, err := n.cache.AdvanceShown(ctx, id, 1); err != nil {
			n.logger.Warn("Failed to record shown count", zap.Stringer("message_id", id), zap.Error(err))
		}
		if err := n.cache.Save(ctx, id, msg); err != nil {
			n.logger.Warn("Failed to cache notification", zap.Stringer("message_id", id), zap.Error(err))
		}
	}
	return id, nil
}

// maxFooterCatchUp bounds the re-edits one update makes after finding that a
// higher count was recorded while its own edit was in flight.
const maxFooterCatchUp = 8

// UpdateOccurrences re-submits the message with only the footer changed to
// show count. When a cache is configured, an update carrying a count lower
// than one already shown is skipped, and an edit that lands after a newer one
// is followed by an edit back to the highest recorded count.
func (n *Notifier) UpdateOccurrences(ctx context.Context, id channel.MessageID, count int64) error {
	if n.cache != nil {
		advanced, err := n.cache.AdvanceShown(ctx, id, count)
		switch {
		case err != nil:
			n.logger.Warn("Failed to check shown count", zap.Stringer("message_id", id), zap.Error(err))
		case !advanced:
			n.logger.Debug("Skipping stale occurrence update",
				zap.Stringer("message_id", id), zap.Int64("occurrences", count))
			return nil
		}
	}

	msg, err := n.current(ctx, id)
	if err != nil {
		return err
	}
	if len(msg.Embeds) == 0 {
		return fmt.Errorf("update occurrences: message %s has no embed", id)
	}
	if msg.Embeds[0].Footer == nil {
		msg.Embeds[0].Footer = &channel.EmbedFooter{}
	}
	if err := n.editFooter(ctx, id, msg, count); err != nil {
		return err
	}
	if n.cache == nil {
		return nil
	}

	written := count
	for i := 0; i < maxFooterCatchUp; i++ {
		shown, err := n.cache.Shown(ctx, id)
		if err != nil {
			n.logger.Warn("Failed to read shown count", zap.Stringer("message_id", id), zap.Error(err))
			return nil
		}
		if shown <= written {
			return nil
		}
		n.logger.Debug("Newer occurrence count recorded during edit",
			zap.Stringer("message_id", id), zap.Int64("written", written), zap.Int64("shown", shown))
		if err := n.editFooter(ctx, id, msg, shown); err != nil {
			return err
		}
		written = shown
	}
	n.logger.Warn("Occurrence footer still behind after catch-up edits",
		zap.Stringer("message_id", id), zap.Int64("written", written))
	return nil
}

func (n *Notifier) editFooter(ctx context.Context, id channel.MessageID, msg channel.Message, count int64) error {
	msg.Embeds[0].Footer.Text = OccurrenceFooter(count)
	if err := n.channel.Edit(ctx, id, msg); err != nil {
		return fmt.Errorf("edit notification %s: %w", id, err)
	}
	if n.cache != nil {
		if err := n.cache.Save(ctx, id, msg); err != nil {
			n.logger.Warn("Failed to cache notification", zap.Stringer("message_id", id), zap.Error(err))
		}
	}
	return nil
}

// Retract deletes a notification and drops its cache entry.
func (n *Notifier) Retract(ctx context.Context, id channel.MessageID) error {
	if err := n.channel.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete notification %s: %w", id, err)
	}
	if n.cache != nil {
		if err := n.cache.Forget(ctx, id); err != nil {
			n.logger.Warn("Failed to forget cached notification", zap.Stringer("message_id", id), zap.Error(err))
		}
	}
	return nil
}

func (n *Notifier) current(ctx context.Context, id channel.MessageID) (channel.Message, error) {
	if n.cache != nil {
		msg, ok, err := n.cache.Lookup(ctx, id)
		if err != nil {
			n.logger.Warn("Message cache lookup failed", zap.Stringer("message_id", id), zap.Error(err))
		}
		if ok {
			return msg, nil
		}
	}
	msg, err := n.channel.Fetch(ctx, id)
	if err != nil {
		return channel.Message{}, fmt.Errorf("fetch notification %s: %w", id, err)
	}
	return msg, nil
}
