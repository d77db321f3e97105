// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package tcp

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/moziie/emqx/packets"
	"github.com/moziie/emqx/protocol"
)

// eventQueueSize bounds out-of-band deliveries buffered per connection.
const eventQueueSize = 256

// clientConn is the owning task of one protocol engine. It serializes the
// engine's entry points: the read loop calls Received inline, while
// out-of-band events from the session are queued and drained by a writer
// goroutine under the same lock.
type clientConn struct {
	srv    *Server
	nc     net.Conn
	engine *protocol.Conn

	mu       sync.Mutex // serializes engine entry points
	events   chan protocol.Event
	closeCh  chan struct{}
	closeOne sync.Once

	kaInterval atomic.Int64 // nanoseconds; 0 = keepalive disabled
	kicked     atomic.Bool
}

func newClientConn(s *Server, nc net.Conn) *clientConn {
	cc := &clientConn{
		srv:     s,
		nc:      nc,
		events:  make(chan protocol.Event, eventQueueSize),
		closeCh: make(chan struct{}),
	}

	cc.engine = protocol.Init(protocol.Options{
		Zone:     s.config.Zone,
		ZoneCfg:  s.deps.ZoneCfg,
		Send:     cc.send,
		PeerAddr: nc.RemoteAddr(),
		PeerCert: peerCertificate(nc),
		Logger:   s.config.Logger,

		Registry: s.deps.Registry,
		Sessions: s.deps.Sessions,
		Auth:     s.deps.Auth,
		ACL:      s.deps.ACL,
		Hooks:    s.deps.Hooks,
		Broker:   s.deps.Broker,
		Metrics:  s.deps.Metrics,

		Self:         cc,
		ArmKeepalive: cc.armKeepalive,
		EventSink:    cc.deliver,
	})
	return cc
}

// send writes serialized bytes to the socket.
func (cc *clientConn) send(b []byte) error {
	_, err := cc.nc.Write(b)
	return err
}

// armKeepalive records the interval chosen by the engine at handshake time.
// The read loop converts it into read deadlines.
func (cc *clientConn) armKeepalive(d time.Duration) {
	cc.kaInterval.Store(int64(d))
}

// deliver is the serialized out-of-band entry into the engine. Events are
// queued so a delivery triggered from within Received cannot deadlock on
// the connection lock.
func (cc *clientConn) deliver(ev protocol.Event) error {
	select {
	case cc.events <- ev:
		return nil
	case <-cc.closeCh:
		return net.ErrClosed
	}
}

// Takeover implements cm.Entry: a newer connection claimed this client
// identifier. Closing the socket unblocks the read loop, which shuts the
// engine down with the conflict reason.
func (cc *clientConn) Takeover() {
	cc.kicked.Store(true)
	cc.close()
}

func (cc *clientConn) close() {
	cc.closeOne.Do(func() { close(cc.closeCh) })
	cc.nc.Close()
}

// run is the connection task: the framer read loop plus the event drain.
func (cc *clientConn) run() {
	go cc.drainEvents()
	defer cc.close()

	framer := packets.NewFramer(cc.nc, cc.engine.ParserSeed())
	logger := cc.srv.config.Logger

	for {
		cc.setReadDeadline()

		pkt, err := framer.ReadPacket()
		if err != nil {
			cc.shutdown(readError(err, cc))
			return
		}

		_, isConnect := pkt.(*packets.Connect)

		cc.mu.Lock()
		err = cc.engine.Received(pkt)
		cc.mu.Unlock()

		if err == io.EOF {
			// Graceful client DISCONNECT.
			cc.shutdown(nil)
			return
		}
		if err != nil {
			logger.Debug("connection error",
				slog.String("client_id", cc.engine.ClientID()),
				slog.Any("error", err))
			cc.shutdown(err)
			return
		}

		if isConnect {
			framer.Reseed(cc.engine.ParserSeed())
			cc.srv.deps.Sessions.Resume(cc.engine.ClientID())
		}
	}
}

func (cc *clientConn) drainEvents() {
	for {
		select {
		case <-cc.closeCh:
			return
		case ev := <-cc.events:
			cc.mu.Lock()
			err := cc.engine.Deliver(ev)
			cc.mu.Unlock()
			if err != nil {
				cc.close()
				return
			}
		}
	}
}

// setReadDeadline arms the socket deadline from the engine's keepalive
// interval. MQTT grants half an interval of grace on top.
func (cc *clientConn) setReadDeadline() {
	ka := time.Duration(cc.kaInterval.Load())
	if ka <= 0 {
		cc.nc.SetReadDeadline(time.Time{})
		return
	}
	cc.nc.SetReadDeadline(time.Now().Add(ka * 2))
}

// shutdown drives the engine's terminal cleanup exactly once and releases
// the session binding.
func (cc *clientConn) shutdown(reason error) {
	cc.mu.Lock()
	info := cc.engine.Info()
	opened := cc.engine.Session() != nil
	cc.engine.Shutdown(reason)
	cc.mu.Unlock()

	// On takeover the session now belongs to the successor connection;
	// only the registry entry was ours to release.
	if opened && !errors.Is(reason, protocol.ErrConflict) {
		cc.srv.deps.Sessions.Disconnect(info.ClientID, info.CleanStart)
	}
	cc.close()
}

func readError(err error, cc *clientConn) error {
	if cc.kicked.Load() {
		return protocol.ErrConflict
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return protocol.ErrKeepaliveTimeout
	}
	if err == io.EOF {
		return nil
	}
	return err
}

func peerCertificate(nc net.Conn) *x509.Certificate {
	tc, ok := nc.(*tls.Conn)
	if !ok {
		return nil
	}
	state := tc.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return nil
	}
	return state.PeerCertificates[0]
}
