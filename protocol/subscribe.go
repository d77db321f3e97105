// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"log/slog"
	"strings"

	"github.com/moziie/emqx/auth"
	"github.com/moziie/emqx/hooks"
	"github.com/moziie/emqx/packets"
	"github.com/moziie/emqx/packets/codes"
	"github.com/moziie/emqx/topics"
)

// handleSubscribe runs the subscribe pipeline. Filters are checked one by
// one and kept in their original order; a denied filter is marked with its
// reason code while the rest proceed, and the SUBACK always answers the
// complete list.
func (c *Conn) handleSubscribe(p *packets.Subscribe) error {
	reasons := make([]codes.Reason, len(p.Topics))
	for i, t := range p.Topics {
		reasons[i] = c.checkSub(t)
	}

	filters, stopped := c.runSubscribeHook(hooks.ClientSubscribe, p.Topics)
	if stopped {
		for i := range reasons {
			reasons[i] = codes.ImplementationSpecificError
		}
		c.logger.Debug("subscribe stopped by hook", slog.String("client_id", c.clientID))
		return c.Deliver(SubAckEvent{ID: p.ID, Reasons: reasons})
	}

	accepted := make([]packets.SubOption, 0, len(filters))
	for i, t := range filters {
		if reasons[i].Error() {
			continue
		}
		granted := t.QoS
		if granted > c.zone.MaxQoS {
			granted = c.zone.MaxQoS
		}
		reasons[i] = codes.Reason(granted)

		t.Topic = topics.Mount(c.mountpoint, t.Topic)
		t.QoS = granted
		accepted = append(accepted, t)
	}

	if len(accepted) > 0 {
		if err := c.session.Subscribe(p.ID, p.Properties, accepted); err != nil {
			c.logger.Warn("session rejected subscribe",
				slog.String("client_id", c.clientID),
				slog.Any("error", err))
			for i := range reasons {
				if !reasons[i].Error() {
					reasons[i] = codes.UnspecifiedError
				}
			}
		}
	}

	return c.Deliver(SubAckEvent{ID: p.ID, Reasons: reasons})
}

// handleUnsubscribe runs the unsubscribe pipeline.
func (c *Conn) handleUnsubscribe(p *packets.Unsubscribe) error {
	reasons := make([]codes.Reason, len(p.Topics))

	opts := make([]packets.SubOption, len(p.Topics))
	for i, t := range p.Topics {
		opts[i] = packets.SubOption{Topic: t}
	}
	filters, stopped := c.runSubscribeHook(hooks.ClientUnsubscribe, opts)
	if stopped {
		for i := range reasons {
			reasons[i] = codes.ImplementationSpecificError
		}
		return c.Deliver(UnsubAckEvent{ID: p.ID, Reasons: reasons})
	}

	mounted := make([]string, len(filters))
	for i, t := range filters {
		mounted[i] = topics.Mount(c.mountpoint, t.Topic)
	}
	if err := c.session.Unsubscribe(p.ID, mounted); err != nil {
		c.logger.Warn("session rejected unsubscribe",
			slog.String("client_id", c.clientID),
			slog.Any("error", err))
		for i := range reasons {
			reasons[i] = codes.UnspecifiedError
		}
	}

	return c.Deliver(UnsubAckEvent{ID: p.ID, Reasons: reasons})
}

// checkSub validates one filter against structure, zone capabilities and
// access control.
func (c *Conn) checkSub(t packets.SubOption) codes.Reason {
	if err := topics.ValidateTopicFilter(t.Topic); err != nil {
		return codes.TopicFilterInvalid
	}
	if !c.zone.WildcardSubAvailable && strings.ContainsAny(t.Topic, "+#") {
		return codes.WildcardSubNotSupported
	}
	if t.QoS > 2 {
		return codes.ProtocolError
	}
	if !c.isSuper && c.enableACL && c.acl != nil {
		if !c.acl.CheckACL(c.Credentials(), auth.ActionSubscribe, t.Topic) {
			c.metrics.AuthError()
			return codes.NotAuthorized
		}
	}
	return codes.Success
}

// runSubscribeHook folds the filter list through the named hook chain.
// Callbacks may rewrite filter options by returning a new slice; the list
// length must be preserved so reason codes stay aligned.
func (c *Conn) runSubscribeHook(name string, filters []packets.SubOption) ([]packets.SubOption, bool) {
	acc, stopped := c.hooks.Run(name, filters, c.Credentials())
	if out, ok := acc.([]packets.SubOption); ok && len(out) == len(filters) {
		return out, stopped
	}
	return filters, stopped
}
