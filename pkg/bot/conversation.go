package bot

import (
	"log/slog"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// conversationTimeout is how long the bot waits for the answer to a
// confirmation question.
const conversationTimeout = 10 * time.Second

// conversation is a pending confirmation question in one chat.
type conversation struct {
	timer *time.Timer
}

// beginConversation starts waiting for a confirmation reply in the given
// chat. A previous pending conversation in the same chat is replaced.
func (b *Bot) beginConversation(chatID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if c := b.pending[chatID]; c != nil {
		c.timer.Stop()
	}

	b.pending[chatID] = &conversation{
		timer: time.AfterFunc(conversationTimeout, func() {
			b.expireConversation(chatID)
		}),
	}
}

// endConversation removes the pending conversation of a chat, if any. It
// returns true if there was one.
func (b *Bot) endConversation(chatID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.pending[chatID]
	if c == nil {
		return false
	}

	c.timer.Stop()
	delete(b.pending, chatID)
	return true
}

// expireConversation is called by the conversation timer.
func (b *Bot) expireConversation(chatID int64) {
	if b.endConversation(chatID) {
		slog.Debug("conversation timed out", slog.Int64("chat", chatID))
		b.send(chatID, "Conversation timeout.")
	}
}

// handleReply handles a non-command message. It is only meaningful as the
// answer to a pending confirmation question.
func (b *Bot) handleReply(msg *tgbotapi.Message) {
	user := b.users.ByID(msg.From.ID)
	if user == nil {
		return
	}

	if !b.endConversation(msg.Chat.ID) {
		return
	}

	switch strings.ToLower(strings.TrimSpace(msg.Text)) {
	case "yes":
		b.startBackup(msg.Chat.ID)
	case "no":
		b.send(msg.Chat.ID, "Maybe the next time...")
	default:
		b.send(msg.Chat.ID, "Did not expect that reply...\n"+
			"Maybe use the keyboard next time?")
	}
}
