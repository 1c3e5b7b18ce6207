package notifications

import (
	"context"
	"strconv"

	"notification-sync/internal/protocol"
	"notification-sync/internal/settings"
	"notification-sync/internal/transfer"
)

// Notify mirrors the desktop notification emission API. Only appName,
// replacesID, iconName and body are semantically used; the rest of the
// signature exists so callers can pass a notification through unchanged.
func (p *Plugin) Notify(appName string, replacesID uint32, iconName, summary, body string, actions []string, hints map[string]interface{}, timeout int32) error {
	var entry settings.AppPolicy
	err := p.store.UpdateApplications(func(apps map[string]settings.AppPolicy) bool {
		var known bool
		if entry, known = apps[appName]; known {
			return false
		}
		entry = settings.AppPolicy{IconName: iconName, Enabled: true}
		apps[appName] = entry
		return true
	})
	if err != nil {
		p.logger.Errorf("Persist per-app policy for %s failed: %v", appName, err)
	}

	if !p.store.Bool(settings.KeySendNotifications, true) || !entry.Enabled {
		return nil
	}

	id := strconv.FormatUint(uint64(replacesID), 10)
	pktBody := protocol.NotificationBody{
		ID:          id,
		AppName:     appName,
		IsClearable: replacesID != 0,
		Ticker:      body,
	}

	if p.store.Bool(settings.KeySendIcons, true) {
		if path := p.icons.Resolve(iconName); path != "" {
			if pkt, ok := p.packetWithIcon(id, pktBody, path); ok {
				return p.sender.Send(pkt)
			}
		}
	}

	pkt, err := protocol.New(id, protocol.TypeNotification, pktBody)
	if err != nil {
		return err
	}
	return p.sender.Send(pkt)
}

// packetWithIcon binds an upload channel for the icon file and attaches its
// size, digest and port to the packet. The port is bound before the packet
// is built, so the peer always receives a valid transfer address. The file
// is streamed in the background; failure is logged, never retried.
func (p *Plugin) packetWithIcon(id string, body protocol.NotificationBody, path string) (protocol.Packet, bool) {
	up, err := transfer.NewUpload(path, p.logger)
	if err != nil {
		p.logger.Warnf("Icon upload for %s skipped: %v", body.AppName, err)
		return protocol.Packet{}, false
	}

	body.PayloadHash = up.MD5
	pkt, err := protocol.New(id, protocol.TypeNotification, body)
	if err != nil {
		up.Close()
		p.logger.Errorf("Build notification packet failed: %v", err)
		return protocol.Packet{}, false
	}

	size := up.Size
	pkt.PayloadSize = &size
	pkt.PayloadTransferInfo = &protocol.TransferInfo{Port: up.Port}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ctx, cancel := context.WithTimeout(p.ctx, p.cfg.TransferTimeout)
		defer cancel()
		if err := up.Serve(ctx); err != nil {
			p.logger.Warnf("Icon upload for %s failed: %v", body.AppName, err)
		}
	}()

	return pkt, true
}

// Close asks the peer to dismiss the notification with the given remote id,
// typically after the user dismissed its local mirror.
func (p *Plugin) Close(id string) error {
	pkt, err := protocol.New(id, protocol.TypeNotificationRequest, protocol.RequestBody{Cancel: id})
	if err != nil {
		return err
	}
	return p.sender.Send(pkt)
}
