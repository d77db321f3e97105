// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package protocol

import "errors"

// Engine errors. Those used as Shutdown reasons select the teardown path:
// ErrConflict only unregisters, ErrAuthFailure suppresses the will message.
var (
	ErrNotConnected     = errors.New("packet received before CONNECT")
	ErrBadConnect       = errors.New("duplicate CONNECT")
	ErrProtocol         = errors.New("protocol error")
	ErrMalformedPacket  = errors.New("malformed packet")
	ErrNotAuthorized    = errors.New("not authorized")
	ErrInvalidClientID  = errors.New("client identifier not valid")
	ErrSessionOpen      = errors.New("failed to open session")
	ErrConflict         = errors.New("client identifier taken over")
	ErrAuthFailure      = errors.New("authentication failure")
	ErrKeepaliveTimeout = errors.New("keepalive timeout")
)
