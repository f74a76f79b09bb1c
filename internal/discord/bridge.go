package discord

import (
	"context"
	"log/slog"
	"strings"

	"github.com/llmbot-io/llmbot/internal/session"
)

// Dispatcher abstracts the session engine for testability. The real
// implementation is *session.Engine.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev session.Event)
}

// Bridge receives message events from the gateway, translates them to
// session events, and hands them to the engine.
type Bridge struct {
	gateway    *Gateway
	dispatcher Dispatcher
	logger     *slog.Logger
}

// NewBridge creates a Discord message bridge.
func NewBridge(gateway *Gateway, dispatcher Dispatcher, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		gateway:    gateway,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Start consumes gateway messages until the channel closes or ctx is
// cancelled.
func (b *Bridge) Start(ctx context.Context) {
	b.logger.Info("discord bridge started")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("discord bridge shutting down")
			return
		case msg, ok := <-b.gateway.Messages():
			if !ok {
				b.logger.Info("gateway message channel closed, bridge stopping")
				return
			}
			b.handleMessage(ctx, msg)
		}
	}
}

// handleMessage maps one Discord message to a session event. The bot's
// own messages are dropped so replies never feed back into context.
func (b *Bridge) handleMessage(ctx context.Context, msg *Message) {
	botID := b.gateway.BotUser().ID
	if botID != "" && msg.Author.ID == botID {
		return
	}

	ev := EventFromMessage(msg, botID)
	b.logger.Debug("discord message received",
		"channel", ev.ChannelID,
		"author", ev.Author,
		"direct", ev.Direct,
		"mentioned", ev.Mentioned,
	)
	b.dispatcher.Dispatch(ctx, ev)
}

// EventFromMessage converts a Discord message into a session event,
// stripping the bot mention from the content.
func EventFromMessage(msg *Message, botID string) session.Event {
	mentioned := botID != "" && msg.MentionsUser(botID)
	content := msg.Content
	if mentioned {
		content = StripMention(content, botID)
	}
	return session.Event{
		ChannelID: msg.ChannelID,
		Author:    msg.Author.Username,
		Content:   content,
		Direct:    msg.Direct(),
		Mentioned: mentioned,
	}
}

// StripMention removes <@id> and <@!id> tokens for the given user from
// the content.
func StripMention(content, userID string) string {
	content = strings.ReplaceAll(content, "<@!"+userID+">", "")
	content = strings.ReplaceAll(content, "<@"+userID+">", "")
	return strings.TrimSpace(content)
}
