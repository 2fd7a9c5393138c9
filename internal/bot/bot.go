package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/raine/resale-pricer/internal/storage"
	"github.com/rs/zerolog/log"
)

// BotAPI defines the interface for Telegram bot API operations.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Bot is the main Telegram bot handler.
type Bot struct {
	tg      BotAPI
	state   *BotState
	users   storage.UserStore
	adminID int64

	pricingHandler *PricingHandler
}

// NewBot creates a new Bot instance. users may be nil, in which case only
// the admin is served.
func NewBot(tg BotAPI, users storage.UserStore, pricer Pricer, adminID int64) *Bot {
	bot := &Bot{
		tg:      tg,
		users:   users,
		adminID: adminID,
	}
	bot.state = bot.NewBotState()
	bot.pricingHandler = NewPricingHandler(tg, pricer)
	return bot
}

// Run processes updates until ctx is cancelled, then waits for in-flight
// handlers and stops the session workers.
func (b *Bot) Run(ctx context.Context, updates tgbotapi.UpdatesChannel) error {
	defer b.state.Shutdown()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("stopping bot update loop")
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				log.Warn().Msg("updates channel closed")
				return nil
			}
			b.HandleUpdate(ctx, update)
		}
	}
}

// HandleUpdate is the main message router.
// It dispatches messages to the appropriate session worker for sequential processing.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	b.dispatchUpdate(ctx, update, false)
}

// handleUpdateSync is like HandleUpdate but waits for message processing to complete.
// Used in tests where we need synchronous behavior.
func (b *Bot) handleUpdateSync(ctx context.Context, update tgbotapi.Update) {
	b.dispatchUpdate(ctx, update, true)
}

func (b *Bot) dispatchUpdate(ctx context.Context, update tgbotapi.Update, sync bool) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	userId := update.Message.From.ID

	// MUST be before getUserSession to prevent memory exhaustion from random user IDs
	if !b.isAllowed(userId) {
		return // Silent drop
	}

	session := b.state.getUserSession(userId)

	msgType := "text"
	if len(update.Message.Photo) > 0 {
		msgType = "photo"
	}
	log.Info().
		Int64("userId", userId).
		Str("type", msgType).
		Str("text", update.Message.Text).
		Str("caption", update.Message.Caption).
		Msg("got message")

	msg := SessionMessage{Type: msgType, Ctx: ctx, Message: update.Message}
	if sync {
		session.SendSync(msg)
	} else {
		session.Send(msg)
	}
}

// isAllowed checks the whitelist. The admin is always allowed.
func (b *Bot) isAllowed(userId int64) bool {
	if userId == b.adminID {
		return true
	}
	if b.users == nil {
		return false
	}
	allowed, err := b.users.IsUserAllowed(userId)
	if err != nil {
		log.Error().Err(err).Int64("userId", userId).Msg("whitelist check failed")
		return false // Fail closed
	}
	return allowed
}

// HandleSessionMessage implements MessageHandler interface.
// This is called by the session worker goroutine for sequential processing.
func (b *Bot) HandleSessionMessage(ctx context.Context, session *UserSession, msg SessionMessage) {
	switch msg.Type {
	case "photo":
		b.pricingHandler.HandlePhoto(ctx, session, msg.Message)
	case "text":
		b.handleCommand(session, msg.Message)
	case "album_timeout":
		b.pricingHandler.ProcessAlbumTimeout(msg.Ctx, session, msg.AlbumBuffer)
	}
}

func (b *Bot) handleCommand(session *UserSession, message *tgbotapi.Message) {
	command, args := parseCommand(message.Text)
	switch command {
	case "/start", "/help":
		session.reply(MsgHelp, MaxPhotos)
	case "/admin":
		b.handleAdminCommand(session, args)
	default:
		session.reply(MsgSendPhoto)
	}
}

func (b *Bot) handleAdminCommand(session *UserSession, args []string) {
	// Defense in depth: verify caller is admin even though whitelist check passed
	if session.userId != b.adminID {
		return // Silent drop for non-admin users
	}
	if b.users == nil {
		session.reply(MsgAdminNoStore)
		return
	}

	if len(args) < 2 || args[0] != "users" {
		session.reply(MsgAdminUsage)
		return
	}
	b.handleAdminUsersCommand(session, args[1], args[2:])
}

// handleAdminUsersCommand handles /admin users subcommands.
func (b *Bot) handleAdminUsersCommand(session *UserSession, action string, args []string) {
	switch action {
	case "add":
		if len(args) < 1 {
			session.reply(MsgAdminUserAddUsage)
			return
		}
		userID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			session.reply(MsgAdminUserInvalidID)
			return
		}
		if err := b.users.AddAllowedUser(userID, session.userId); err != nil {
			session.replyWithError(err)
			return
		}
		session.reply(MsgAdminUserAdded, userID)

	case "remove":
		if len(args) < 1 {
			session.reply(MsgAdminUserRemoveUsage)
			return
		}
		userID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			session.reply(MsgAdminUserInvalidID)
			return
		}
		if err := b.users.RemoveAllowedUser(userID); err != nil {
			session.replyWithError(err)
			return
		}
		session.reply(MsgAdminUserRemoved, userID)

	case "list":
		users, err := b.users.GetAllowedUsers()
		if err != nil {
			session.replyWithError(err)
			return
		}
		if len(users) == 0 {
			session.reply(MsgAdminNoUsers)
			return
		}
		var sb strings.Builder
		sb.WriteString(MsgAdminAllowedUsers)
		for _, u := range users {
			sb.WriteString(fmt.Sprintf("• `%d` (added %s)\n", u.TelegramID, u.AddedAt.Format("2006-01-02")))
		}
		session.reply(sb.String())

	default:
		session.reply(MsgAdminUsage)
	}
}
