// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"go.bug.st/serial"
	"golang.org/x/term"

	"github.com/gaskit/terminal/pkg/config"
)

// PasswordEnv holds the bridge password
const PasswordEnv = "GASKIT_PASSWORD"

const (
	bridgeHandshakeTimeout = 10 * time.Second
	bridgeDialTimeout      = 15 * time.Second
	bridgeCloseGrace       = time.Second
)

// ErrConnectionClosed is returned once the pump link has gone away.
var ErrConnectionClosed = errors.New("pump link closed")

// Connection is the raw byte stream to the pump controller.
type Connection interface {
	io.ReadWriteCloser
}

//////////////////////////////////////////////////////////////
// Serial
//////////////////////////////////////////////////////////////

// serialLink is an RS-485 adapter at 8N1.
type serialLink struct {
	serial.Port
}

func openSerial(port string, baud int) (*serialLink, error) {
	p, err := serial.Open(port, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", port, err)
	}
	// Bytes left in the adapter belong to no exchange of ours
	if err := p.ResetInputBuffer(); err != nil {
		p.Close()
		return nil, fmt.Errorf("reset serial input: %w", err)
	}
	return &serialLink{Port: p}, nil
}

//////////////////////////////////////////////////////////////
// WebSocket bridge
//////////////////////////////////////////////////////////////

// bridgeLink carries the serial byte stream in binary WebSocket messages.
// A message may hold any part of a frame; boundaries are ignored.
type bridgeLink struct {
	ws      *websocket.Conn
	pending []byte

	writeMu sync.Mutex
}

func (b *bridgeLink) Read(p []byte) (int, error) {
	for len(b.pending) == 0 {
		kind, data, err := b.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
				errors.Is(err, net.ErrClosed) {
				return 0, ErrConnectionClosed
			}
			return 0, fmt.Errorf("bridge read: %w", err)
		}
		if kind == websocket.BinaryMessage {
			b.pending = data
		}
	}
	n := copy(p, b.pending)
	b.pending = b.pending[n:]
	return n, nil
}

func (b *bridgeLink) Write(p []byte) (int, error) {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	if err := b.ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, fmt.Errorf("bridge write: %w", err)
	}
	return len(p), nil
}

// Close says goodbye to the bridge before dropping the socket.
func (b *bridgeLink) Close() error {
	b.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	b.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(bridgeCloseGrace))
	b.writeMu.Unlock()
	return b.ws.Close()
}

// dialBridge connects to a ws:// or wss:// serial bridge. Credentials are
// sent as HTTP Basic auth on the upgrade request.
func dialBridge(cfg config.BridgeConfig, password string) (*bridgeLink, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("bridge url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("bridge url scheme %q: want ws or wss", u.Scheme)
	}

	dialer := websocket.Dialer{HandshakeTimeout: bridgeHandshakeTimeout}
	if u.Scheme == "wss" && cfg.NoSSLVerify {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	header := http.Header{}
	if cfg.Username != "" {
		token := base64.StdEncoding.EncodeToString([]byte(cfg.Username + ":" + password))
		header.Set("Authorization", "Basic "+token)
	}

	ctx, cancel := context.WithTimeout(context.Background(), bridgeDialTimeout)
	defer cancel()

	ws, resp, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("bridge %s refused (HTTP %d): %w", u.Host, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("bridge %s: %w", u.Host, err)
	}
	return &bridgeLink{ws: ws}, nil
}

// bridgePassword takes the password from PasswordEnv, else asks on the
// controlling terminal, else reads one line from stdin.
func bridgePassword() (string, error) {
	if pw, ok := os.LookupEnv(PasswordEnv); ok && pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Bridge password: ")
	defer fmt.Fprintln(os.Stderr)

	fd := int(syscall.Stdin)
	if term.IsTerminal(fd) {
		pw, err := term.ReadPassword(fd)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(pw), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimSpace(line), nil
}

//////////////////////////////////////////////////////////////
// Selection
//////////////////////////////////////////////////////////////

// OpenConnection opens the configured pump link and describes it. A bridge
// URL takes precedence over a serial port.
func OpenConnection(cfg *config.Config) (Connection, string, error) {
	switch {
	case cfg.Bridge.URL != "":
		var password string
		if cfg.Bridge.Username != "" {
			pw, err := bridgePassword()
			if err != nil {
				return nil, "", err
			}
			password = pw
		}
		link, err := dialBridge(cfg.Bridge, password)
		if err != nil {
			return nil, "", err
		}
		return link, "Bridge: " + cfg.Bridge.URL, nil

	case cfg.Serial.Port != "":
		link, err := openSerial(cfg.Serial.Port, cfg.Serial.Baud)
		if err != nil {
			return nil, "", err
		}
		return link, fmt.Sprintf("Serial: %s @ %d baud 8N1", cfg.Serial.Port, cfg.Serial.Baud), nil
	}
	return nil, "", errors.New("no pump link configured: set --port or --url")
}
