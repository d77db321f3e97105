// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"errors"
	"log/slog"

	"github.com/moziie/emqx/hooks"
	"github.com/moziie/emqx/topics"
)

// Shutdown is the terminal cleanup path, invoked exactly once by the owning
// task when the transport closes. The reason selects the teardown:
// identifier takeover only unregisters, authentication failure suppresses
// the will message, everything else publishes the will, fires the
// disconnected hook and unregisters.
func (c *Conn) Shutdown(reason error) {
	if c.clientID == "" {
		return
	}

	if errors.Is(reason, ErrConflict) {
		c.unregister()
		return
	}

	if !errors.Is(reason, ErrAuthFailure) {
		c.publishWill()
	}

	c.hooks.Run(hooks.ClientDisconnected, reason, c.Info())
	c.unregister()

	if c.connected {
		c.connected = false
		c.metrics.ConnectionDown()
		c.logger.Info("client disconnected",
			slog.String("client_id", c.clientID),
			slog.Any("reason", reason))
	}
}

// publishWill hands the will message, if any, to the routing fabric. The
// mountpoint is applied here, after template expansion.
func (c *Conn) publishWill() {
	if c.will == nil || c.broker == nil {
		return
	}
	will := *c.will
	will.From = c.clientID
	will.Topic = topics.Mount(c.mountpoint, will.Topic)
	will.Timestamp = c.now()
	c.broker.Publish(&will)
	c.will = nil
}

func (c *Conn) unregister() {
	if !c.registered || c.registry == nil {
		return
	}
	c.registry.Unregister(c.clientID, c.self)
	c.registered = false
}
