// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package hooks_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/moziie/emqx/hooks"
)

func TestRunEmptyChain(t *testing.T) {
	bus := hooks.New()
	acc, stopped := bus.Run("nothing.registered", 42)
	assert.Equal(t, 42, acc)
	assert.False(t, stopped)
}

func TestRunFoldsAccumulator(t *testing.T) {
	bus := hooks.New()
	bus.Add("count", func(acc any, _ ...any) (any, bool) {
		return acc.(int) + 1, false
	})
	bus.Add("count", func(acc any, _ ...any) (any, bool) {
		return acc.(int) + 10, false
	})

	acc, stopped := bus.Run("count", 0)
	assert.Equal(t, 11, acc)
	assert.False(t, stopped)
}

func TestRunStops(t *testing.T) {
	bus := hooks.New()
	var secondRan bool
	bus.Add("chain", func(acc any, _ ...any) (any, bool) {
		return "stopped", true
	})
	bus.Add("chain", func(acc any, _ ...any) (any, bool) {
		secondRan = true
		return acc, false
	})

	acc, stopped := bus.Run("chain", nil)
	assert.Equal(t, "stopped", acc)
	assert.True(t, stopped)
	assert.False(t, secondRan)
}

func TestPriorityOrder(t *testing.T) {
	bus := hooks.New()
	var order []string
	bus.AddWithPriority("p", 1, func(acc any, _ ...any) (any, bool) {
		order = append(order, "low")
		return acc, false
	})
	bus.AddWithPriority("p", 10, func(acc any, _ ...any) (any, bool) {
		order = append(order, "high")
		return acc, false
	})

	bus.Run("p", nil)
	assert.Equal(t, []string{"high", "low"}, order)
}

func TestArgsArePassed(t *testing.T) {
	bus := hooks.New()
	bus.Add("args", func(acc any, args ...any) (any, bool) {
		return args[0], false
	})
	acc, _ := bus.Run("args", nil, "hello")
	assert.Equal(t, "hello", acc)
}

func TestNilBus(t *testing.T) {
	var bus *hooks.Bus
	acc, stopped := bus.Run("anything", "acc")
	assert.Equal(t, "acc", acc)
	assert.False(t, stopped)
}
