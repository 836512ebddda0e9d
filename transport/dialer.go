// Copyright (C) 2025, secIRC Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"

	"github.com/gorilla/websocket"
	"golang.org/x/net/proxy"
)

// Dialer is the narrow, net.Conn-shaped interface the Manager dials peers
// through. Three concrete families are provided below; raw socket
// listening is out of scope for this module, only outgoing dials are.
type Dialer interface {
	Dial(ctx context.Context, host string, port int) (io.ReadWriteCloser, error)
}

type tcpDialer struct {
	d net.Dialer
}

// NewTCPDialer dials plain TCP.
func NewTCPDialer() Dialer {
	return tcpDialer{}
}

func (t tcpDialer) Dial(ctx context.Context, host string, port int) (io.ReadWriteCloser, error) {
	return t.d.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", host, port))
}

type tlsDialer struct {
	cfg *tls.Config
	d   net.Dialer
}

// NewTLSDialer dials TCP then performs a TLS handshake using cfg (nil for
// the Go default).
func NewTLSDialer(cfg *tls.Config) Dialer {
	return tlsDialer{cfg: cfg}
}

func (t tlsDialer) Dial(ctx context.Context, host string, port int) (io.ReadWriteCloser, error) {
	dialer := tls.Dialer{NetDialer: &t.d, Config: t.cfg}
	return dialer.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", host, port))
}

type socksDialer struct {
	proxyAddr string
}

// NewSOCKSDialer dials through a SOCKS5 proxy at proxyAddr, the transport
// family used to reach peers over Tor.
func NewSOCKSDialer(proxyAddr string) Dialer {
	return socksDialer{proxyAddr: proxyAddr}
}

func (s socksDialer) Dial(ctx context.Context, host string, port int) (io.ReadWriteCloser, error) {
	d, err := proxy.SOCKS5("tcp", s.proxyAddr, nil, proxy.Direct)
	if err != nil {
		return nil, err
	}
	type contextDialer interface {
		DialContext(ctx context.Context, network, addr string) (net.Conn, error)
	}
	addr := fmt.Sprintf("%s:%d", host, port)
	if cd, ok := d.(contextDialer); ok {
		return cd.DialContext(ctx, "tcp", addr)
	}
	return d.Dial("tcp", addr)
}

type wsDialer struct {
	dialer websocket.Dialer
	scheme string
}

// NewWebSocketDialer dials a WebSocket endpoint at ws(s)://host:port/.
func NewWebSocketDialer(tlsConfig *tls.Config) Dialer {
	scheme := "ws"
	d := websocket.Dialer{}
	if tlsConfig != nil {
		scheme = "wss"
		d.TLSClientConfig = tlsConfig
	}
	return wsDialer{dialer: d, scheme: scheme}
}

func (w wsDialer) Dial(ctx context.Context, host string, port int) (io.ReadWriteCloser, error) {
	url := fmt.Sprintf("%s://%s:%d/", w.scheme, host, port)
	conn, _, err := w.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &wsConn{conn: conn}, nil
}

// wsConn adapts a gorilla *websocket.Conn's message framing to
// io.ReadWriteCloser so the Manager can treat every transport family
// identically.
type wsConn struct {
	conn    *websocket.Conn
	leftover []byte
}

func (c *wsConn) Read(p []byte) (int, error) {
	if len(c.leftover) == 0 {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return 0, err
		}
		c.leftover = data
	}
	n := copy(p, c.leftover)
	c.leftover = c.leftover[n:]
	return n, nil
}

func (c *wsConn) Write(p []byte) (int, error) {
	if err := c.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}
