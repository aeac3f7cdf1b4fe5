// Package bot is the telegram front end of the backup daemon.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/lennartalff/cloudbot/pkg/backup"
	"github.com/lennartalff/cloudbot/pkg/config"
	"github.com/lennartalff/cloudbot/pkg/history"
	"github.com/lennartalff/cloudbot/pkg/users"
)

// strangerReply is sent to anyone who is not in the known user list.
const strangerReply = "I do not talk to strangers."

// sender is the subset of tgbotapi.BotAPI the bot needs to send messages.
// It exists so that tests can run the command handlers without a network.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// command describes one bot command.
type command struct {
	name     string
	desc     string
	required users.Role
	// stranger marks the first contact command, it is hidden from the help.
	stranger bool
	handler  func(b *Bot, msg *tgbotapi.Message)
}

// commands is the command table of the bot.
// It is populated in init to avoid an initialization cycle with cmdHelp,
// which iterates over the table.
var commands []command

func init() {
	commands = []command{
		{
			name:     "start",
			desc:     "Start the bot.",
			stranger: true,
			handler:  (*Bot).cmdStart,
		},
		{
			name:     "help",
			desc:     "Show what I can do.",
			required: users.RoleUser,
			handler:  (*Bot).cmdHelp,
		},
		{
			name:     "next",
			desc:     "Date of next scheduled backup.",
			required: users.RoleUser,
			handler:  (*Bot).cmdNext,
		},
		{
			name:     "backup",
			desc:     "Start a backup manually",
			required: users.RoleAdmin,
			handler:  (*Bot).cmdBackup,
		},
		{
			name:     "cancel",
			desc:     "Cancel your action",
			required: users.RoleUser,
			handler:  (*Bot).cmdCancel,
		},
		{
			name:     "history",
			desc:     "Show recent backup runs.",
			required: users.RoleUser,
			handler:  (*Bot).cmdHistory,
		},
	}
}

// Bot dispatches telegram updates to command handlers.
type Bot struct {
	api     sender
	updates tgbotapi.UpdatesChannel
	stop    func()

	users  *users.List
	runner *backup.Runner
	store  *history.Store
	next   func() time.Time

	// progressEvery throttles backup progress messages to the owner.
	progressEvery time.Duration

	mu      sync.Mutex
	pending map[int64]*conversation

	done chan struct{}
}

// New connects to telegram and creates the bot. The next function reports
// the time of the next scheduled backup.
func New(cfg *config.TelegramConfig, list *users.List, runner *backup.Runner,
	store *history.Store, next func() time.Time) (*Bot, error) {

	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to telegram: %w", err)
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = int(cfg.PollTimeout.Std() / time.Second)

	b := &Bot{
		api:           api,
		updates:       api.GetUpdatesChan(u),
		stop:          api.StopReceivingUpdates,
		users:         list,
		runner:        runner,
		store:         store,
		next:          next,
		progressEvery: time.Minute,
		pending:       map[int64]*conversation{},
		done:          make(chan struct{}),
	}

	if err := b.registerCommands(); err != nil {
		return nil, err
	}

	slog.Info("connected to telegram", slog.String("bot", api.Self.UserName))
	return b, nil
}

// SetProgressInterval sets the minimum interval between two backup progress
// messages.
func (b *Bot) SetProgressInterval(d time.Duration) {
	b.progressEvery = d
}

// registerCommands publishes the command list to telegram.
func (b *Bot) registerCommands() error {
	cmds := make([]tgbotapi.BotCommand, 0, len(commands))
	for _, c := range commands {
		cmds = append(cmds, tgbotapi.BotCommand{
			Command:     c.name,
			Description: c.desc,
		})
	}

	_, err := b.api.Request(tgbotapi.NewSetMyCommands(cmds...))
	return err
}

// Start starts handling telegram updates.
func (b *Bot) Start() {
	go func() {
		defer close(b.done)
		for update := range b.updates {
			b.dispatch(&update)
		}
	}()
	slog.Info("bot started")
}

// Stop stops handling telegram updates.
func (b *Bot) Stop() {
	b.stop()
	<-b.done
	slog.Info("bot stopped")
}

// dispatch routes one update to the matching handler.
func (b *Bot) dispatch(update *tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}

	if !msg.IsCommand() {
		b.handleReply(msg)
		return
	}

	cmd := commandByName(msg.Command())
	if cmd == nil {
		return
	}

	user := b.users.ByID(msg.From.ID)
	if user == nil {
		b.handleStranger(cmd, msg)
		return
	}

	if !user.Role.Allows(cmd.required) {
		slog.Warn("user lacks the required role",
			slog.String("user", msg.From.UserName),
			slog.Int64("id", msg.From.ID),
			slog.String("command", cmd.name),
			slog.String("has", user.Role.String()),
			slog.String("requires", cmd.required.String()),
		)
		return
	}

	slog.Debug("dispatching command",
		slog.String("user", msg.From.UserName),
		slog.String("command", cmd.name),
	)
	cmd.handler(b, msg)
}

// commandByName looks up a command in the command table.
func commandByName(name string) *command {
	for i := range commands {
		if commands[i].name == name {
			return &commands[i]
		}
	}
	return nil
}

// handleStranger answers an unknown user and notifies the owner about the
// contact attempt.
func (b *Bot) handleStranger(cmd *command, msg *tgbotapi.Message) {
	slog.Warn("message from unknown user",
		slog.String("user", msg.From.UserName),
		slog.Int64("id", msg.From.ID),
		slog.String("command", cmd.name),
	)

	b.send(msg.Chat.ID, strangerReply)
	b.NotifyOwner(fmt.Sprintf("Got message from unknown user %s!",
		mention(msg.From)))
}

// send sends a plain text message, logging errors instead of returning them.
func (b *Bot) send(chatID int64, text string) {
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		slog.Error("failed to send message", slog.String("error", err.Error()))
	}
}

// NotifyOwner sends a message to the owner of the bot.
func (b *Bot) NotifyOwner(text string) {
	if owner := b.users.Owner(); owner != nil {
		b.send(owner.ID, text)
	}
}

// mention formats a user as a plain text mention.
func mention(u *tgbotapi.User) string {
	if u.UserName != "" {
		return "@" + u.UserName
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// cmdStart greets known users, strangers never reach this handler.
func (b *Bot) cmdStart(msg *tgbotapi.Message) {
	b.send(msg.Chat.ID, fmt.Sprintf("Hi %s!", mention(msg.From)))
}

// cmdHelp lists the available commands.
func (b *Bot) cmdHelp(msg *tgbotapi.Message) {
	sb := strings.Builder{}
	sb.WriteString("I keep your nextcloud backed up. You can use:\n")
	for _, c := range commands {
		if c.stranger {
			continue
		}
		fmt.Fprintf(&sb, "/%s - %s\n", c.name, c.desc)
	}
	b.send(msg.Chat.ID, sb.String())
}

// cmdNext reports the next scheduled backup.
func (b *Bot) cmdNext(msg *tgbotapi.Message) {
	next := b.next()
	if next.IsZero() {
		b.send(msg.Chat.ID, "No backup is scheduled.")
		return
	}
	b.send(msg.Chat.ID, fmt.Sprintf("Next backup is scheduled at %s.",
		next.Format(time.RFC1123)))
}

// cmdBackup asks for confirmation before starting a manual backup.
func (b *Bot) cmdBackup(msg *tgbotapi.Message) {
	if b.runner.Running() {
		b.send(msg.Chat.ID, "A backup is already running.")
		return
	}

	reply := tgbotapi.NewMessage(msg.Chat.ID, "Are you sure?")
	reply.ReplyMarkup = tgbotapi.NewOneTimeReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton("Yes")),
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton("No")),
	)
	if _, err := b.api.Send(reply); err != nil {
		slog.Error("failed to send message", slog.String("error", err.Error()))
		return
	}

	b.beginConversation(msg.Chat.ID)
}

// cmdCancel ends a pending conversation.
func (b *Bot) cmdCancel(msg *tgbotapi.Message) {
	b.endConversation(msg.Chat.ID)
	b.send(msg.Chat.ID, "Canceled.")
}

// cmdHistory shows the most recent backup runs.
func (b *Bot) cmdHistory(msg *tgbotapi.Message) {
	runs, err := b.store.Recent(10)
	if err != nil {
		slog.Error("failed to load backup history", slog.String("error", err.Error()))
		b.send(msg.Chat.ID, "Could not load the backup history.")
		return
	}
	if len(runs) == 0 {
		b.send(msg.Chat.ID, "No backups so far.")
		return
	}

	sb := strings.Builder{}
	sb.WriteString("Recent backups:\n")
	for _, r := range runs {
		outcome := "ok"
		if !r.Success {
			outcome = "FAILED"
		}
		fmt.Fprintf(&sb, "%s (%s): %s\n",
			r.StartedAt.Format("2006-01-02 15:04"), r.Trigger, outcome)
	}
	b.send(msg.Chat.ID, sb.String())
}

// startBackup launches a manual backup run in the background and streams the
// outcome to the requesting chat.
func (b *Bot) startBackup(chatID int64) {
	ch, err := b.runner.Launch(context.Background(), backup.TriggerManual)
	if err != nil {
		// another backup was started in between
		b.send(chatID, "A backup is already running.")
		return
	}
	b.send(chatID, "Starting backup.")
	go func() {
		res := <-ch
		if res.Success {
			b.send(chatID, fmt.Sprintf("Backup finished successfully after %s.",
				res.FinishedAt.Sub(res.StartedAt).Round(time.Second)))
		} else {
			b.send(chatID, fmt.Sprintf("Backup failed: %s", res.Error))
		}
	}()
}
