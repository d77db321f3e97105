// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package metrics holds the OpenTelemetry instruments fed by the protocol
// engine and the transports.
package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds OpenTelemetry metric instruments for the MQTT broker.
type Metrics struct {
	meter metric.Meter

	packetsReceived  metric.Int64Counter
	packetsSent      metric.Int64Counter
	messagesReceived metric.Int64Counter
	messagesSent     metric.Int64Counter
	connections      metric.Int64UpDownCounter
	protocolErrors   metric.Int64Counter
	authErrors       metric.Int64Counter
}

// New creates a Metrics instance with all instruments initialized.
func New() (*Metrics, error) {
	m := &Metrics{
		meter: otel.Meter("mqtt-broker"),
	}

	var err error
	m.packetsReceived, err = m.meter.Int64Counter(
		"mqtt.packets.received.total",
		metric.WithDescription("Total MQTT control packets received"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create packetsReceived counter: %w", err)
	}

	m.packetsSent, err = m.meter.Int64Counter(
		"mqtt.packets.sent.total",
		metric.WithDescription("Total MQTT control packets sent"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create packetsSent counter: %w", err)
	}

	m.messagesReceived, err = m.meter.Int64Counter(
		"mqtt.messages.received.total",
		metric.WithDescription("Total PUBLISH messages received from clients"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create messagesReceived counter: %w", err)
	}

	m.messagesSent, err = m.meter.Int64Counter(
		"mqtt.messages.sent.total",
		metric.WithDescription("Total PUBLISH messages sent to clients"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create messagesSent counter: %w", err)
	}

	m.connections, err = m.meter.Int64UpDownCounter(
		"mqtt.connections.current",
		metric.WithDescription("Currently connected clients"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create connections counter: %w", err)
	}

	m.protocolErrors, err = m.meter.Int64Counter(
		"mqtt.errors.protocol.total",
		metric.WithDescription("Protocol errors"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create protocolErrors counter: %w", err)
	}

	m.authErrors, err = m.meter.Int64Counter(
		"mqtt.errors.auth.total",
		metric.WithDescription("Authentication and authorization errors"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create authErrors counter: %w", err)
	}

	return m, nil
}

func packetAttr(name string) metric.AddOption {
	return metric.WithAttributes(attribute.String("packet", name))
}

// PacketReceived records one inbound control packet.
func (m *Metrics) PacketReceived(name string) {
	if m == nil {
		return
	}
	m.packetsReceived.Add(context.Background(), 1, packetAttr(name))
}

// PacketSent records one outbound control packet.
func (m *Metrics) PacketSent(name string) {
	if m == nil {
		return
	}
	m.packetsSent.Add(context.Background(), 1, packetAttr(name))
}

// MessageReceived records one inbound PUBLISH.
func (m *Metrics) MessageReceived() {
	if m == nil {
		return
	}
	m.messagesReceived.Add(context.Background(), 1)
}

// MessageSent records one outbound PUBLISH.
func (m *Metrics) MessageSent() {
	if m == nil {
		return
	}
	m.messagesSent.Add(context.Background(), 1)
}

// ConnectionUp records a successful handshake.
func (m *Metrics) ConnectionUp() {
	if m == nil {
		return
	}
	m.connections.Add(context.Background(), 1)
}

// ConnectionDown records a connection teardown.
func (m *Metrics) ConnectionDown() {
	if m == nil {
		return
	}
	m.connections.Add(context.Background(), -1)
}

// ProtocolError records a protocol violation.
func (m *Metrics) ProtocolError() {
	if m == nil {
		return
	}
	m.protocolErrors.Add(context.Background(), 1)
}

// AuthError records an authentication or authorization failure.
func (m *Metrics) AuthError() {
	if m == nil {
		return
	}
	m.authErrors.Add(context.Background(), 1)
}
