package notifications

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"notification-sync/internal/logging"
	"notification-sync/internal/protocol"
	"notification-sync/internal/settings"
)

type shownNote struct {
	id string
	n  Notification
}

type fakePresenter struct {
	mu        sync.Mutex
	displayed []shownNote
	withdrawn []string
}

func (f *fakePresenter) Display(id string, n Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.displayed = append(f.displayed, shownNote{id: id, n: n})
	return nil
}

func (f *fakePresenter) Withdraw(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.withdrawn = append(f.withdrawn, id)
	return nil
}

func (f *fakePresenter) displayCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.displayed)
}

func (f *fakePresenter) withdrawnIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.withdrawn...)
}

type fakeSender struct {
	mu   sync.Mutex
	sent []protocol.Packet
}

func (f *fakeSender) Send(pkt protocol.Packet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, pkt)
	return nil
}

func (f *fakeSender) packets() []protocol.Packet {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]protocol.Packet(nil), f.sent...)
}

type fakeIcons struct {
	paths map[string]string
}

func (f *fakeIcons) Resolve(name string) string {
	return f.paths[name]
}

func newTestStore(t *testing.T) *settings.Store {
	t.Helper()
	store, err := settings.Open(filepath.Join(t.TempDir(), "settings.db"), logging.Discard())
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return store
}

func newTestPlugin(t *testing.T, store *settings.Store, sender Sender, pres Presenter, icons IconResolver) *Plugin {
	t.Helper()
	if icons == nil {
		icons = &fakeIcons{}
	}
	p := New(Config{
		PeerDeviceID: "peer-1",
		PeerHost:     "127.0.0.1",
	}, store, sender, pres, icons, logging.Discard())
	t.Cleanup(p.Stop)
	return p
}

func testContext(t *testing.T, d time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	t.Cleanup(cancel)
	return ctx
}

func notificationPacket(t *testing.T, body protocol.NotificationBody) protocol.Packet {
	t.Helper()
	pkt, err := protocol.New(body.ID, protocol.TypeNotification, body)
	require.NoError(t, err)
	return pkt
}
