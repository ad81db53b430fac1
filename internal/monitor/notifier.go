package monitor

import (
	"context"

	"github.com/maumercado/task-queue-go/internal/alertengine"
	"github.com/maumercado/task-queue-go/internal/logger"
	"github.com/maumercado/task-queue-go/internal/storage"
)

// StoreNotifier resolves a fired alert's destination channel name
// against the persisted notification_channels table and dispatches by
// channel_type. Only "log" is delivered; any other type, or a name with
// no matching row, is logged and skipped rather than treated as a
// failure.
type StoreNotifier struct {
	store *storage.Store
}

func NewStoreNotifier(store *storage.Store) *StoreNotifier {
	return &StoreNotifier{store: store}
}

func (n *StoreNotifier) Notify(alert *alertengine.Alert, channelName string) {
	log := logger.WithComponent("alertengine")

	channels, err := n.store.ListNotificationChannels(context.Background())
	if err != nil {
		log.Error().Err(err).Str("channel", channelName).Msg("failed to resolve notification channel")
		return
	}

	var channelType string
	found := false
	for _, c := range channels {
		if c.Name == channelName {
			channelType = c.ChannelType
			found = true
			break
		}
	}

	// the "log" channel ships with every default rule and needs no
	// persisted row to resolve.
	if !found && channelName == "log" {
		channelType = "log"
		found = true
	}

	if !found {
		log.Warn().Str("channel", channelName).Msg("unknown notification channel, skipping")
		return
	}

	switch channelType {
	case "log":
		event := log.Info()
		switch alert.Severity {
		case alertengine.SeverityCritical, alertengine.SeverityHigh:
			event = log.Error()
		case alertengine.SeverityMedium:
			event = log.Warn()
		}
		event.
			Str("rule", alert.RuleName).
			Str("severity", alert.Severity.String()).
			Str("task_type", alert.TaskType).
			Msg(alert.Message)
	default:
		log.Warn().Str("channel", channelName).Str("channel_type", channelType).Msg("unsupported notification channel type, skipping")
	}
}
