package notifications

import (
	"context"
	"net"
	"strconv"
	"strings"

	"notification-sync/internal/protocol"
	"notification-sync/internal/settings"
	"notification-sync/internal/transfer"
)

const (
	// groupSummaryMarker tags platform-level aggregate notifications the
	// peer sends alongside the individual ones they summarize.
	groupSummaryMarker = "GroupSummary"
	smsMarker          = "sms"
)

// HandlePacket is the entry point for all inbound traffic of the
// notification packet types. Malformed packets are dropped, not raised.
func (p *Plugin) HandlePacket(pkt protocol.Packet) {
	switch pkt.Type {
	case protocol.TypeNotification:
		p.handleNotification(pkt)
	case protocol.TypeNotificationRequest:
		p.handleRequest(pkt)
	case protocol.TypeNotificationReply:
		// Replies are a future protocol feature.
		p.logger.Debugf("Ignoring notification reply from %s", p.cfg.PeerDeviceID)
	default:
		p.logger.Debugf("Ignoring packet type %s", pkt.Type)
	}
}

func (p *Plugin) handleNotification(pkt protocol.Packet) {
	body, err := pkt.NotificationBody()
	if err != nil {
		p.logger.Warnf("Dropping malformed notification packet: %v", err)
		return
	}

	if body.IsCancel {
		p.withdraw(body.ID)
		return
	}

	if strings.Contains(body.ID, groupSummaryMarker) {
		p.logger.Debugf("Dropping group summary %s", body.ID)
		return
	}

	if !p.store.Bool(settings.KeyReceiveNotifications, true) {
		return
	}

	n := Notification{
		Title:         body.AppName,
		Body:          body.Ticker,
		DefaultAction: p.defaultAction(body.ID),
	}

	if pkt.ExpectsPayload() && pkt.PayloadTransferInfo != nil {
		p.fetchIconAsync(pkt, body, n)
		return
	}

	n.Icon = themedIcon(body.ID)
	p.finishDisplay(body, n)
}

// fetchIconAsync downloads the icon payload on its own goroutine so other
// inbound packets keep flowing, then resumes the display decision with the
// (possibly iconless) notification. Exactly one outcome per fetch; a failed
// fetch falls back to the themed default icon and is terminal.
func (p *Plugin) fetchIconAsync(pkt protocol.Packet, body protocol.NotificationBody, n Notification) {
	size := *pkt.PayloadSize
	addr := net.JoinHostPort(p.cfg.PeerHost, strconv.Itoa(pkt.PayloadTransferInfo.Port))

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		ctx, cancel := context.WithTimeout(p.ctx, p.cfg.TransferTimeout)
		defer cancel()

		data, err := transfer.Download(ctx, addr, size, body.PayloadHash)
		if err != nil {
			p.logger.Warnf("Icon fetch for %s failed: %v", body.ID, err)
			n.Icon = themedIcon(body.ID)
		} else {
			n.Icon = Icon{Data: data}
		}

		p.displayMu.Lock()
		defer p.displayMu.Unlock()
		if p.ctx.Err() != nil {
			// Connection is closing; discard the pending notification.
			return
		}
		p.finishDisplay(body, n)
	}()
}

// finishDisplay reconciles a ready notification with the duplicate table
// and executes the final display, suppress or withdraw decision.
func (p *Plugin) finishDisplay(body protocol.NotificationBody, n Notification) {
	match := matchKey(body)

	if body.Silent {
		// Silent notifications are tracked but never shown.
		p.duplicates.RequestSilence(match)
	}

	switch p.duplicates.ResolveDisplay(match, body.ID) {
	case displayWithdraw:
		p.withdraw(body.ID)
		p.logger.Debugf("Notification %s closed before display", body.ID)
	case displaySuppress:
		p.logger.Debugf("Notification %s silenced", body.ID)
	case displayShow:
		if err := p.presenter.Display(body.ID, n); err != nil {
			p.logger.Errorf("Display notification %s failed: %v", body.ID, err)
		}
	}
}

func (p *Plugin) handleRequest(pkt protocol.Packet) {
	body, err := pkt.RequestBody()
	if err != nil {
		p.logger.Warnf("Dropping malformed notification request: %v", err)
		return
	}
	if body.Cancel != "" {
		p.withdraw(body.Cancel)
		return
	}
	if body.Request {
		// Notification list requests are a future protocol feature.
		p.logger.Debugf("Ignoring notification list request from %s", p.cfg.PeerDeviceID)
	}
}

func themedIcon(id string) Icon {
	if strings.Contains(id, smsMarker) {
		return Icon{Themed: "sms"}
	}
	return Icon{Themed: "phone"}
}
