// Package bot handles inbound WhatsApp messages: user bootstrap and
// window upkeep. Preference collection lives in the conversational
// front-end; this side only reacts to its writes.
package bot

import (
	"context"
	"errors"
	"time"

	"github.com/aremu/jobalert/internal/domain"
	"github.com/aremu/jobalert/internal/pkg/logger"
	"github.com/aremu/jobalert/internal/store"
	"github.com/aremu/jobalert/internal/whatsapp"
)

// Store is the persistence surface the bot needs.
type Store interface {
	GetOrCreateUser(ctx context.Context, phone, name string) (*domain.User, bool, error)
	GetPreferences(ctx context.Context, userID int64) (*domain.Preferences, error)
}

// WindowManager opens/extends conversation windows.
type WindowManager interface {
	Touch(ctx context.Context, userID int64) (*domain.Window, error)
}

// Sender delivers outbound messages.
type Sender interface {
	SendText(ctx context.Context, to, body string) (string, error)
}

// Bot processes inbound messages.
type Bot struct {
	store       Store
	windows     WindowManager
	sender      Sender
	sendTimeout time.Duration
}

// New creates the inbound handler.
func New(st Store, windows WindowManager, sender Sender) *Bot {
	return &Bot{store: st, windows: windows, sender: sender, sendTimeout: 10 * time.Second}
}

const welcomeMessage = "👋 Welcome to your job alert assistant!\n\n" +
	"Tell us what you're looking for — roles, locations, salary — and " +
	"we'll send you matching jobs the moment they appear.\n\n" +
	"Your alerts stay active for 24 hours after your last message."

const windowRefreshedMessage = "✅ You're all set — your job alerts are " +
	"active for the next 24 hours. We'll ping you as soon as something matches."

const textOnlyMessage = "🙏 I can only read text messages for now. " +
	"Please send your request as plain text."

// HandleInbound processes one user message: bootstrap the user,
// restart their window, and acknowledge.
func (b *Bot) HandleInbound(ctx context.Context, msg whatsapp.InboundMessage) error {
	user, created, err := b.store.GetOrCreateUser(ctx, msg.From, msg.Name)
	if err != nil {
		return err
	}

	if _, err := b.windows.Touch(ctx, user.ID); err != nil {
		return err
	}

	reply := windowRefreshedMessage
	switch {
	case msg.Type != "" && msg.Type != "text":
		reply = textOnlyMessage
	case created:
		reply = welcomeMessage
	default:
		if _, err := b.store.GetPreferences(ctx, user.ID); errors.Is(err, store.ErrNotFound) {
			// Known user who never finished onboarding
			reply = welcomeMessage
		}
	}

	sendCtx, cancel := context.WithTimeout(ctx, b.sendTimeout)
	defer cancel()
	if _, err := b.sender.SendText(sendCtx, user.Phone, reply); err != nil {
		// The window is already open; a lost ack is not fatal
		logger.Warn("bot: ack send failed", "user_id", user.ID, "error", err.Error())
	}

	logger.Info("inbound handled", "user_id", user.ID, "new_user", created)
	return nil
}
