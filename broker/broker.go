// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"log/slog"
	"sync"

	"github.com/moziie/emqx/topics"
)

// DeliverFunc receives a message matched for one subscription. It is called
// on the publishing goroutine; implementations must not block indefinitely.
type DeliverFunc func(msg *Message, sub Subscription)

// Broker routes published messages to matching subscriptions and owns the
// retained-message store.
type Broker struct {
	mu          sync.RWMutex
	subs        map[string]map[string]Subscription // clientID -> filter -> sub
	subscribers map[string]DeliverFunc
	retained    map[string]*Message
	logger      *slog.Logger
}

// New creates an empty broker.
func New(logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		subs:        make(map[string]map[string]Subscription),
		subscribers: make(map[string]DeliverFunc),
		retained:    make(map[string]*Message),
		logger:      logger,
	}
}

// Register installs the delivery callback for a client's session.
func (b *Broker) Register(clientID string, fn DeliverFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[clientID] = fn
}

// Unregister removes the client's delivery callback and subscriptions.
func (b *Broker) Unregister(clientID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscribers, clientID)
	delete(b.subs, clientID)
}

// Subscribe records a subscription for the client.
func (b *Broker) Subscribe(clientID, filter string, opts SubOptions) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.subs[clientID]
	if !ok {
		m = make(map[string]Subscription)
		b.subs[clientID] = m
	}
	m[filter] = Subscription{ClientID: clientID, Filter: filter, Opts: opts}
}

// Unsubscribe removes a subscription. It reports whether one existed.
func (b *Broker) Unsubscribe(clientID, filter string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.subs[clientID]
	if !ok {
		return false
	}
	if _, ok := m[filter]; !ok {
		return false
	}
	delete(m, filter)
	return true
}

// Publish stores retained messages and fans the message out to every
// matching subscription.
func (b *Broker) Publish(msg *Message) {
	if msg.Retain {
		b.storeRetained(msg)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for clientID, filters := range b.subs {
		fn, ok := b.subscribers[clientID]
		if !ok {
			continue
		}
		for _, sub := range filters {
			if !topics.Match(sub.Filter, msg.Topic) {
				continue
			}
			if sub.Opts.NoLocal && msg.From == clientID {
				continue
			}
			fn(msg, sub)
			break // one delivery per client, best-matching not required
		}
	}
}

// Retained returns the retained messages matching the filter, marked with
// the retained delivery header.
func (b *Broker) Retained(filter string) []*Message {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []*Message
	for topic, msg := range b.retained {
		if topics.Match(filter, topic) {
			out = append(out, msg)
		}
	}
	return out
}

func (b *Broker) storeRetained(msg *Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// A retained message with an empty payload clears the slot.
	if len(msg.Payload) == 0 {
		delete(b.retained, msg.Topic)
		return
	}
	stored := *msg
	stored.Headers.Retained = true
	b.retained[msg.Topic] = &stored
}
