// Package presenter adapts the OS desktop notification API to the plugin's
// presentation contract.
package presenter

import (
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"sync"

	"notification-sync/internal/logging"
	"notification-sync/internal/notifications"
	"notification-sync/pkg/desktop"
)

// Desktop displays notifications through the OS toast API. The toast API
// hands back no handle, so Withdraw can only drop our own bookkeeping.
type Desktop struct {
	logger  *logging.Logger
	iconDir string

	mu    sync.Mutex
	shown map[string]struct{}
}

func NewDesktop(logger *logging.Logger) (*Desktop, error) {
	iconDir, err := os.MkdirTemp("", "notification-sync-icons")
	if err != nil {
		return nil, fmt.Errorf("create icon cache dir: %w", err)
	}
	return &Desktop{
		logger:  logger,
		iconDir: iconDir,
		shown:   make(map[string]struct{}),
	}, nil
}

// Display shows the notification, materializing fetched icon bytes into a
// file the toast API can reference.
func (d *Desktop) Display(id string, n notifications.Notification) error {
	iconPath := ""
	if len(n.Icon.Data) > 0 {
		path := filepath.Join(d.iconDir, fmt.Sprintf("%x.png", fnvHash(id)))
		if err := os.WriteFile(path, n.Icon.Data, 0644); err != nil {
			d.logger.Warnf("Write icon for %s failed: %v", id, err)
		} else {
			iconPath = path
		}
	}

	if err := desktop.Notify(n.Title, n.Body, iconPath); err != nil {
		return fmt.Errorf("display notification %s: %w", id, err)
	}

	d.mu.Lock()
	d.shown[id] = struct{}{}
	d.mu.Unlock()
	return nil
}

// Withdraw forgets the notification. Toasts expire on their own; there is
// no OS handle to dismiss one early.
func (d *Desktop) Withdraw(id string) error {
	d.mu.Lock()
	_, ok := d.shown[id]
	delete(d.shown, id)
	d.mu.Unlock()

	if ok {
		d.logger.Debugf("Withdrew notification %s (toast left to expire)", id)
	}
	return nil
}

// Close removes the icon cache directory.
func (d *Desktop) Close() {
	if err := os.RemoveAll(d.iconDir); err != nil {
		d.logger.Warnf("Remove icon cache dir failed: %v", err)
	}
}

func fnvHash(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}
