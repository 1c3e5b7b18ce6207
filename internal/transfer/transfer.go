// Package transfer implements the TCP side channel used to move notification
// icon payloads between paired devices.
//
// A payload travels outside the packet link: the sending side listens on an
// ephemeral port, advertises it in the packet's payloadTransferInfo, and
// streams the file to the first connection it accepts. The receiving side
// dials that port, reads exactly payloadSize bytes, and verifies the MD5
// digest announced in the packet body. One connection, one payload, one
// terminal outcome; neither direction retries.
package transfer

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"os"
	"sync"

	"notification-sync/internal/logging"
)

// MaxPayloadSize bounds a single icon payload. Anything larger is refused
// before a byte is read.
const MaxPayloadSize = 10 << 20

// Download dials the peer's side channel and reads exactly size bytes,
// verifying them against the given MD5 hex digest. The context deadline
// bounds the whole operation; a stalled peer surfaces as an error.
func Download(ctx context.Context, addr string, size int64, md5hex string) ([]byte, error) {
	if size < 0 || size > MaxPayloadSize {
		return nil, fmt.Errorf("refusing payload of %d bytes", size)
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial payload channel %s: %w", addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return nil, fmt.Errorf("set deadline: %w", err)
		}
	}

	// Unblock the read when the context is cancelled mid-transfer.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	buf := make([]byte, size)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return nil, fmt.Errorf("read payload (%d bytes): %w", size, err)
	}

	if md5hex != "" {
		sum := md5.Sum(buf)
		if hex.EncodeToString(sum[:]) != md5hex {
			return nil, fmt.Errorf("payload checksum mismatch")
		}
	}

	return buf, nil
}

// Upload serves a single file over an ephemeral TCP port. The port is bound
// and the file hashed before the constructor returns, so the caller can
// attach size, digest and port to the packet it is about to send.
type Upload struct {
	Port int
	Size int64
	MD5  string

	path     string
	listener net.Listener
	logger   *logging.Logger

	closeOnce sync.Once
}

// NewUpload stats and hashes the file at path and binds a listening socket.
// The caller must follow up with Serve (or Close on an aborted send).
func NewUpload(path string, logger *logging.Logger) (*Upload, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat payload file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("payload path %s is a directory", path)
	}
	if info.Size() > MaxPayloadSize {
		return nil, fmt.Errorf("payload file %s too large (%d bytes)", path, info.Size())
	}

	digest, err := fileMD5(path)
	if err != nil {
		return nil, err
	}

	listener, err := net.Listen("tcp", ":0")
	if err != nil {
		return nil, fmt.Errorf("bind payload channel: %w", err)
	}

	return &Upload{
		Port:     listener.Addr().(*net.TCPAddr).Port,
		Size:     info.Size(),
		MD5:      digest,
		path:     path,
		listener: listener,
		logger:   logger,
	}, nil
}

// Serve blocks until one peer connects and the file has been streamed, or the
// context expires. The channel is closed on every path.
func (u *Upload) Serve(ctx context.Context) error {
	defer u.Close()

	// Unblock Accept when the context ends.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			u.Close()
		case <-done:
		}
	}()

	conn, err := u.listener.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("payload channel: %w", ctx.Err())
		}
		return fmt.Errorf("accept payload connection: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return fmt.Errorf("set deadline: %w", err)
		}
	}

	file, err := os.Open(u.path)
	if err != nil {
		return fmt.Errorf("open payload file: %w", err)
	}
	defer file.Close()

	n, err := io.Copy(conn, file)
	if err != nil {
		return fmt.Errorf("stream payload: %w", err)
	}
	if n != u.Size {
		return fmt.Errorf("streamed %d of %d payload bytes", n, u.Size)
	}

	u.logger.Debugf("Streamed %d payload bytes from %s", n, u.path)
	return nil
}

// Close releases the listening socket. Safe to call more than once.
func (u *Upload) Close() {
	u.closeOnce.Do(func() {
		_ = u.listener.Close()
	})
}

func fileMD5(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open payload file: %w", err)
	}
	defer file.Close()

	h := md5.New()
	if _, err := io.Copy(h, file); err != nil {
		return "", fmt.Errorf("hash payload file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Checksum returns the MD5 hex digest of in-memory payload bytes.
func Checksum(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}
