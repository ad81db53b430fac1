package monitor

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/maumercado/task-queue-go/internal/alertengine"
	"github.com/maumercado/task-queue-go/internal/storage"
)

func TestStoreNotifier_LogChannelWithNoPersistedRow(t *testing.T) {
	store, err := storage.Open(filepath.Join(t.TempDir(), "orchestrator.db"))
	require.NoError(t, err)
	defer store.Close()

	n := NewStoreNotifier(store)
	alert := &alertengine.Alert{ID: uuid.New(), RuleName: "High Failure Rate", Severity: alertengine.SeverityHigh, Message: "too many failures"}

	// must not panic even though no notification_channels row exists.
	n.Notify(alert, "log")
}

func TestStoreNotifier_UnknownChannelSkipped(t *testing.T) {
	store, err := storage.Open(filepath.Join(t.TempDir(), "orchestrator.db"))
	require.NoError(t, err)
	defer store.Close()

	n := NewStoreNotifier(store)
	alert := &alertengine.Alert{ID: uuid.New(), RuleName: "r", Severity: alertengine.SeverityLow, Message: "m"}

	n.Notify(alert, "does-not-exist")
}

func TestStoreNotifier_UnsupportedChannelTypeSkipped(t *testing.T) {
	store, err := storage.Open(filepath.Join(t.TempDir(), "orchestrator.db"))
	require.NoError(t, err)
	defer store.Close()

	now := time.Now().UTC()
	require.NoError(t, store.SaveNotificationChannel(context.Background(), storage.NotificationChannelRow{
		Name: "pager", ChannelType: "pagerduty", Enabled: true, CreatedAt: now, UpdatedAt: now,
	}))

	n := NewStoreNotifier(store)
	alert := &alertengine.Alert{ID: uuid.New(), RuleName: "r", Severity: alertengine.SeverityCritical, Message: "m"}

	n.Notify(alert, "pager")
}
