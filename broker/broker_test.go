// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package broker_test

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moziie/emqx/broker"
)

type sink struct {
	msgs []*broker.Message
	subs []broker.Subscription
}

func (s *sink) deliver(msg *broker.Message, sub broker.Subscription) {
	s.msgs = append(s.msgs, msg)
	s.subs = append(s.subs, sub)
}

func TestPublishFanout(t *testing.T) {
	b := broker.New(slog.Default())
	s1, s2 := &sink{}, &sink{}

	b.Register("c1", s1.deliver)
	b.Register("c2", s2.deliver)
	b.Subscribe("c1", "a/+", broker.SubOptions{QoS: 1})
	b.Subscribe("c2", "b/#", broker.SubOptions{QoS: 0})

	b.Publish(&broker.Message{From: "p", Topic: "a/x"})

	require.Len(t, s1.msgs, 1)
	assert.Equal(t, "a/+", s1.subs[0].Filter)
	assert.Empty(t, s2.msgs)
}

func TestPublishNoLocal(t *testing.T) {
	b := broker.New(slog.Default())
	s := &sink{}

	b.Register("c1", s.deliver)
	b.Subscribe("c1", "t", broker.SubOptions{NoLocal: true})

	b.Publish(&broker.Message{From: "c1", Topic: "t"})
	assert.Empty(t, s.msgs)

	b.Publish(&broker.Message{From: "other", Topic: "t"})
	assert.Len(t, s.msgs, 1)
}

func TestUnsubscribe(t *testing.T) {
	b := broker.New(slog.Default())
	s := &sink{}

	b.Register("c1", s.deliver)
	b.Subscribe("c1", "t", broker.SubOptions{})

	assert.True(t, b.Unsubscribe("c1", "t"))
	assert.False(t, b.Unsubscribe("c1", "t"))

	b.Publish(&broker.Message{From: "p", Topic: "t"})
	assert.Empty(t, s.msgs)
}

func TestRetainedStoreAndClear(t *testing.T) {
	b := broker.New(slog.Default())

	b.Publish(&broker.Message{From: "p", Topic: "t", Payload: []byte("r"), Retain: true})

	msgs := b.Retained("t")
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].Headers.Retained)

	// Empty payload clears the slot.
	b.Publish(&broker.Message{From: "p", Topic: "t", Retain: true})
	assert.Empty(t, b.Retained("t"))
}

func TestRetainedMatchesWildcards(t *testing.T) {
	b := broker.New(slog.Default())

	b.Publish(&broker.Message{From: "p", Topic: "a/b", Payload: []byte("1"), Retain: true})
	b.Publish(&broker.Message{From: "p", Topic: "a/c", Payload: []byte("2"), Retain: true})
	b.Publish(&broker.Message{From: "p", Topic: "x/y", Payload: []byte("3"), Retain: true})

	assert.Len(t, b.Retained("a/+"), 2)
	assert.Len(t, b.Retained("#"), 3)
	assert.Len(t, b.Retained("x/y"), 1)
}

func TestUnregisterDropsSubscriptions(t *testing.T) {
	b := broker.New(slog.Default())
	s := &sink{}

	b.Register("c1", s.deliver)
	b.Subscribe("c1", "t", broker.SubOptions{})
	b.Unregister("c1")

	b.Publish(&broker.Message{From: "p", Topic: "t"})
	assert.Empty(t, s.msgs)
}
