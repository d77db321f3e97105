// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package cm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/moziie/emqx/cm"
)

type entry struct{ takeovers int }

func (e *entry) Takeover() { e.takeovers++ }

func TestRegisterAndGet(t *testing.T) {
	r := cm.NewRegistry()
	e := &entry{}

	r.Register("c1", e, cm.Info{Zone: "default"})

	got, info, ok := r.Get("c1")
	assert.True(t, ok)
	assert.Same(t, e, got.(*entry))
	assert.Equal(t, "default", info.Zone)
	assert.Equal(t, 1, r.Count())
}

func TestRegisterKicksPreviousHolder(t *testing.T) {
	r := cm.NewRegistry()
	old, succ := &entry{}, &entry{}

	r.Register("c1", old, cm.Info{})
	r.Register("c1", succ, cm.Info{})

	assert.Equal(t, 1, old.takeovers)
	assert.Zero(t, succ.takeovers)

	got, _, _ := r.Get("c1")
	assert.Same(t, succ, got.(*entry))
}

func TestUnregisterOnlyByHolder(t *testing.T) {
	r := cm.NewRegistry()
	old, succ := &entry{}, &entry{}

	r.Register("c1", old, cm.Info{})
	r.Register("c1", succ, cm.Info{})

	// The kicked connection's late unregister must not remove the successor.
	r.Unregister("c1", old)
	_, _, ok := r.Get("c1")
	assert.True(t, ok)

	r.Unregister("c1", succ)
	_, _, ok = r.Get("c1")
	assert.False(t, ok)
	assert.Zero(t, r.Count())
}
