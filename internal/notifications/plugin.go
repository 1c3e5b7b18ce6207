// Package notifications implements the notification sync plugin: it mirrors
// desktop notifications between this device and one paired peer, including
// optional icon payload transfers, duplicate suppression and cancel routing.
package notifications

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"notification-sync/internal/logging"
	"notification-sync/internal/protocol"
	"notification-sync/internal/settings"
)

// Sender delivers outbound packets to the paired peer.
type Sender interface {
	Send(pkt protocol.Packet) error
}

// Presenter is the local notification presentation API.
type Presenter interface {
	Display(id string, n Notification) error
	Withdraw(id string) error
}

// IconResolver maps a themed icon name to a file on disk, or "" when the
// icon cannot be resolved.
type IconResolver interface {
	Resolve(name string) string
}

// Icon is the icon attached to a displayable notification: a themed icon
// reference, fetched payload bytes, or neither (zero value).
type Icon struct {
	Themed string
	Data   []byte
}

func (i Icon) IsZero() bool {
	return i.Themed == "" && len(i.Data) == 0
}

// Notification is a notification ready to hand to the presentation layer.
// DefaultAction encodes the source device and escaped remote id so a later
// dismissal can be routed back as a cancel packet.
type Notification struct {
	Title         string
	Body          string
	Icon          Icon
	DefaultAction string
}

// Config carries the per-peer parameters of a Plugin.
type Config struct {
	PeerDeviceID    string
	PeerHost        string
	TransferTimeout time.Duration
}

// Plugin is the notification sync state machine for one paired peer. All
// packet handling runs on the peer connection's read loop; icon transfers
// run on their own goroutines and only suspend the display decision for
// their own notification.
type Plugin struct {
	cfg        Config
	store      *settings.Store
	sender     Sender
	presenter  Presenter
	icons      IconResolver
	logger     *logging.Logger
	duplicates *duplicateTracker

	// displayMu orders a pending transfer's display decision strictly
	// before or after Stop's cancel, so a notification is never displayed
	// once shutdown has begun.
	displayMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a notification sync Plugin for one peer.
func New(cfg Config, store *settings.Store, sender Sender, presenter Presenter, icons IconResolver, logger *logging.Logger) *Plugin {
	if cfg.TransferTimeout == 0 {
		cfg.TransferTimeout = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Plugin{
		cfg:        cfg,
		store:      store,
		sender:     sender,
		presenter:  presenter,
		icons:      icons,
		logger:     logger,
		duplicates: newDuplicateTracker(),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Stop aborts in-flight transfers and waits for their goroutines. Pending
// notifications of aborted transfers are discarded, never displayed.
func (p *Plugin) Stop() {
	p.displayMu.Lock()
	p.cancel()
	p.displayMu.Unlock()
	p.wg.Wait()
}

// CloseDuplicate requests that the notification matching the given match
// string be closed: withdrawn if already displayed, suppressed otherwise.
func (p *Plugin) CloseDuplicate(match string) {
	if id, ok := p.duplicates.RequestClose(match); ok {
		p.withdraw(id)
	}
}

// SilenceDuplicate requests that the next notification matching the given
// match string be suppressed from display.
func (p *Plugin) SilenceDuplicate(match string) {
	p.duplicates.RequestSilence(match)
}

func (p *Plugin) defaultAction(remoteID string) string {
	return fmt.Sprintf("%s|%s", p.cfg.PeerDeviceID, url.PathEscape(remoteID))
}

func (p *Plugin) withdraw(id string) {
	if err := p.presenter.Withdraw(id); err != nil {
		p.logger.Warnf("Withdraw notification %s failed: %v", id, err)
	}
}
