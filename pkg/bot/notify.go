package bot

import (
	"fmt"
	"sync"
	"time"

	"github.com/lennartalff/cloudbot/pkg/backup"
)

// stepMessages are the messages sent to the owner when a backup step starts.
// Steps without an entry are silent.
var stepMessages = map[backup.Step]string{
	backup.StepMaintenanceOn:  "Enabling maintenance mode.",
	backup.StepDatabaseDump:   "Creating SQL dump.",
	backup.StepDataCopy:       "Creating data backup.",
	backup.StepMaintenanceOff: "Disabling maintenance mode.",
}

// notifier relays backup run events to the owner chat. It implements
// backup.Observer.
type notifier struct {
	bot *Bot

	mu           sync.Mutex
	lastProgress time.Time
}

// Notifier returns a backup.Observer which reports run events to the owner.
func (b *Bot) Notifier() backup.Observer {
	return &notifier{bot: b}
}

// StepStarted implements backup.Observer.
func (n *notifier) StepStarted(step backup.Step) {
	if msg, ok := stepMessages[step]; ok {
		n.bot.NotifyOwner(msg)
	}
}

// StepFinished implements backup.Observer.
func (n *notifier) StepFinished(step backup.Step, err error) {
	if err != nil {
		n.bot.NotifyOwner(fmt.Sprintf("%s failed!\n%s", stepName(step), err))
	}
}

// Progress implements backup.Observer. Progress messages are throttled so a
// long rsync does not flood the owner chat.
func (n *notifier) Progress(frac float64) {
	n.mu.Lock()
	now := time.Now()
	if now.Sub(n.lastProgress) < n.bot.progressEvery && frac < 1 {
		n.mu.Unlock()
		return
	}
	n.lastProgress = now
	n.mu.Unlock()

	n.bot.NotifyOwner(fmt.Sprintf("Data backup: %d%%", int(frac*100)))
}

// RunFinished implements backup.Observer.
func (n *notifier) RunFinished(res *backup.Result) {
	// reset the throttle so the first progress of the next run goes out.
	n.mu.Lock()
	n.lastProgress = time.Time{}
	n.mu.Unlock()

	if res.Success {
		n.bot.NotifyOwner(fmt.Sprintf("Backup %s finished successfully.", res.Dir))
	} else {
		n.bot.NotifyOwner(fmt.Sprintf("Backup %s failed!\n%s", res.Dir, res.Error))
	}
}

// stepName returns a human readable name of a backup step.
func stepName(step backup.Step) string {
	switch step {
	case backup.StepPrepare:
		return "Creating the backup directory"
	case backup.StepMaintenanceOn:
		return "Enabling maintenance mode"
	case backup.StepDatabaseDump:
		return "Dumping the database"
	case backup.StepDataCopy:
		return "Copying the data directory"
	case backup.StepMaintenanceOff:
		return "Disabling maintenance mode"
	}
	return string(step)
}
