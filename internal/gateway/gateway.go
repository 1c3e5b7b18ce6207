// Package gateway carries protocol packets between this device and its
// paired peers over websocket links, one sequential read loop per peer.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"notification-sync/internal/logging"
	"notification-sync/internal/protocol"
	"notification-sync/internal/utils"
)

// PacketHandler consumes decoded inbound packets for one peer.
type PacketHandler interface {
	HandlePacket(pkt protocol.Packet)
}

// Link is the packet connection to one paired device.
type Link struct {
	deviceID string
	conn     *websocket.Conn
	mu       sync.Mutex // serializes writes
}

// DeviceID returns the peer's device identifier.
func (l *Link) DeviceID() string {
	return l.deviceID
}

// RemoteHost returns the peer's address without the port, for dialing its
// payload side channels.
func (l *Link) RemoteHost() string {
	host, _, err := net.SplitHostPort(l.conn.RemoteAddr().String())
	if err != nil {
		return l.conn.RemoteAddr().String()
	}
	return host
}

// Send writes one packet to the peer.
func (l *Link) Send(pkt protocol.Packet) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.conn.WriteJSON(pkt); err != nil {
		return fmt.Errorf("send packet %s: %w", pkt.Type, err)
	}
	return nil
}

// Close tears down the underlying connection.
func (l *Link) Close() {
	_ = l.conn.Close()
}

// Gateway manages the packet links of all paired devices.
type Gateway struct {
	logger   *logging.Logger
	upgrader websocket.Upgrader

	mu    sync.Mutex
	links map[string]*Link
}

func New(logger *logging.Logger) *Gateway {
	return &Gateway{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		links: make(map[string]*Link),
	}
}

// Upgrade turns an incoming HTTP request into a packet link for the device
// named in the "device" query parameter. An existing link for the same
// device is replaced.
func (g *Gateway) Upgrade(w http.ResponseWriter, r *http.Request) (*Link, error) {
	deviceID := r.URL.Query().Get("device")
	if deviceID == "" {
		return nil, fmt.Errorf("missing device query parameter")
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("upgrade link for %s: %w", deviceID, err)
	}

	link := &Link{deviceID: deviceID, conn: conn}
	g.register(link)
	return link, nil
}

// Dial establishes an outbound packet link to a peer daemon, retrying the
// connection a few times before giving up.
func (g *Gateway) Dial(ctx context.Context, peerURL, localDeviceID string) (*Link, error) {
	u, err := url.Parse(peerURL)
	if err != nil {
		return nil, fmt.Errorf("parse peer url: %w", err)
	}
	q := u.Query()
	q.Set("device", localDeviceID)
	u.RawQuery = q.Encode()

	var conn *websocket.Conn
	err = utils.Retry(g.logger, 5, 2*time.Second, func() error {
		var dialErr error
		conn, _, dialErr = websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
		return dialErr
	})
	if err != nil {
		return nil, fmt.Errorf("dial peer %s: %w", peerURL, err)
	}

	// TODO: exchange device identity on the link instead of keying a dialed
	// peer by its host name.
	link := &Link{deviceID: u.Hostname(), conn: conn}
	g.register(link)
	return link, nil
}

func (g *Gateway) register(link *Link) {
	g.mu.Lock()
	old, exists := g.links[link.deviceID]
	g.links[link.deviceID] = link
	g.mu.Unlock()

	if exists {
		g.logger.Warnf("Replacing existing link for device %s", link.deviceID)
		old.Close()
	}
	g.logger.Infof("Device %s linked from %s", link.deviceID, link.RemoteHost())
}

// Remove drops and closes the link for a device, if any.
func (g *Gateway) Remove(deviceID string) {
	g.mu.Lock()
	link, ok := g.links[deviceID]
	delete(g.links, deviceID)
	g.mu.Unlock()
	if ok {
		link.Close()
	}
}

// removeLink deregisters exactly the given link. A reconnect replaces the
// registered link before the old read loop exits, so removal has to be
// identity-checked or the old loop would tear down the replacement.
func (g *Gateway) removeLink(link *Link) {
	g.mu.Lock()
	if g.links[link.deviceID] == link {
		delete(g.links, link.deviceID)
	}
	g.mu.Unlock()
	link.Close()
}

// Link returns the live link for a device.
func (g *Gateway) Link(deviceID string) (*Link, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	link, ok := g.links[deviceID]
	return link, ok
}

// Devices lists the device ids with a live link.
func (g *Gateway) Devices() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	ids := make([]string, 0, len(g.links))
	for id := range g.links {
		ids = append(ids, id)
	}
	return ids
}

// Close tears down every link.
func (g *Gateway) Close() {
	g.mu.Lock()
	links := g.links
	g.links = make(map[string]*Link)
	g.mu.Unlock()
	for _, link := range links {
		link.Close()
	}
}

// ReadLoop reads packets from the link and hands them to the handler until
// the connection drops. Frames that do not decode are dropped, not raised,
// so one bad peer message cannot take the whole link handler down.
func (g *Gateway) ReadLoop(link *Link, handler PacketHandler) {
	defer g.removeLink(link)

	for {
		_, data, err := link.conn.ReadMessage()
		if err != nil {
			g.logger.Infof("Device %s link closed: %v", link.deviceID, err)
			return
		}

		var pkt protocol.Packet
		if err := json.Unmarshal(data, &pkt); err != nil {
			g.logger.Warnf("Dropping undecodable frame from %s: %v", link.deviceID, err)
			continue
		}
		if pkt.Type == "" {
			g.logger.Warnf("Dropping untyped packet from %s", link.deviceID)
			continue
		}

		handler.HandlePacket(pkt)
	}
}
