package protocol

import (
	"encoding/json"
	"fmt"
)

// Packet types handled by the notification sync plugin.
const (
	TypeNotification        = "kdeconnect.notification"
	TypeNotificationReply   = "kdeconnect.notification.reply"
	TypeNotificationRequest = "kdeconnect.notification.request"
)

// TransferInfo describes where a payload side channel can be reached.
type TransferInfo struct {
	Port int `json:"port"`
}

// Packet is the envelope exchanged between paired devices. Field names are
// wire contract and must not change.
type Packet struct {
	ID                  string          `json:"id"`
	Type                string          `json:"type"`
	Body                json.RawMessage `json:"body"`
	PayloadSize         *int64          `json:"payloadSize,omitempty"`
	PayloadTransferInfo *TransferInfo   `json:"payloadTransferInfo,omitempty"`
}

// NotificationBody is the body of a kdeconnect.notification packet. Title and
// Text are newer-protocol fields; older peers send only Ticker.
type NotificationBody struct {
	ID            string `json:"id"`
	AppName       string `json:"appName,omitempty"`
	Ticker        string `json:"ticker,omitempty"`
	Title         string `json:"title,omitempty"`
	Text          string `json:"text,omitempty"`
	IsCancel      bool   `json:"isCancel,omitempty"`
	IsClearable   bool   `json:"isClearable,omitempty"`
	Silent        bool   `json:"silent,omitempty"`
	RequestAnswer bool   `json:"requestAnswer,omitempty"`
	Request       bool   `json:"request,omitempty"`
	PayloadHash   string `json:"payloadHash,omitempty"`
}

// RequestBody is the body of a kdeconnect.notification.request packet.
// Cancel carries the remote id the peer should dismiss.
type RequestBody struct {
	Cancel  string `json:"cancel,omitempty"`
	Request bool   `json:"request,omitempty"`
}

// New builds a packet envelope around a marshalable body.
func New(id, typ string, body interface{}) (Packet, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return Packet{}, fmt.Errorf("marshal %s body: %w", typ, err)
	}
	return Packet{ID: id, Type: typ, Body: raw}, nil
}

// NotificationBody decodes and validates the packet body as a notification.
func (p Packet) NotificationBody() (NotificationBody, error) {
	var body NotificationBody
	if err := json.Unmarshal(p.Body, &body); err != nil {
		return NotificationBody{}, fmt.Errorf("decode notification body: %w", err)
	}
	if body.ID == "" {
		return NotificationBody{}, fmt.Errorf("notification body missing id")
	}
	return body, nil
}

// RequestBody decodes the packet body as a notification request.
func (p Packet) RequestBody() (RequestBody, error) {
	var body RequestBody
	if err := json.Unmarshal(p.Body, &body); err != nil {
		return RequestBody{}, fmt.Errorf("decode request body: %w", err)
	}
	return body, nil
}

// ExpectsPayload reports whether the packet announces an icon side channel.
func (p Packet) ExpectsPayload() bool {
	return p.PayloadSize != nil
}
