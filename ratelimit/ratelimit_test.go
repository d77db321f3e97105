// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package ratelimit_test

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/moziie/emqx/ratelimit"
)

func addr(ip string) net.Addr {
	return &net.TCPAddr{IP: net.ParseIP(ip), Port: 12345}
}

func TestBurstThenLimit(t *testing.T) {
	l := ratelimit.NewIPRateLimiter(1, 2, time.Minute)
	defer l.Stop()

	a := addr("192.0.2.1")
	assert.True(t, l.Allow(a))
	assert.True(t, l.Allow(a))
	assert.False(t, l.Allow(a), "burst exhausted")
}

func TestPerIPIsolation(t *testing.T) {
	l := ratelimit.NewIPRateLimiter(1, 1, time.Minute)
	defer l.Stop()

	assert.True(t, l.Allow(addr("192.0.2.1")))
	assert.False(t, l.Allow(addr("192.0.2.1")))
	assert.True(t, l.Allow(addr("192.0.2.2")), "different IP has its own bucket")
}

func TestNilAddrAllowed(t *testing.T) {
	l := ratelimit.NewIPRateLimiter(1, 1, time.Minute)
	defer l.Stop()
	assert.True(t, l.Allow(nil))
}
