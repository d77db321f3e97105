// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package topics_test

import (
	"testing"

	"github.com/moziie/emqx/topics"
)

func TestExpandMountpoint(t *testing.T) {
	tests := []struct {
		template string
		clientID string
		username string
		want     string
	}{
		{"", "c1", "u1", ""},
		{"devices/", "c1", "u1", "devices/"},
		{"u/%c/", "alice", "", "u/alice/"},
		{"%u/%c/", "c1", "bob", "bob/c1/"},
		{"%u/", "c1", "", "%u/"},
	}

	for _, tt := range tests {
		got := topics.ExpandMountpoint(tt.template, tt.clientID, tt.username)
		if got != tt.want {
			t.Errorf("ExpandMountpoint(%q, %q, %q) = %q, want %q",
				tt.template, tt.clientID, tt.username, got, tt.want)
		}
	}
}

func TestMountUnmount(t *testing.T) {
	if got := topics.Mount("u/alice/", "t"); got != "u/alice/t" {
		t.Errorf("Mount = %q, want u/alice/t", got)
	}
	if got := topics.Unmount("u/alice/", "u/alice/t"); got != "t" {
		t.Errorf("Unmount = %q, want t", got)
	}
	if got := topics.Unmount("u/alice/", "other/t"); got != "other/t" {
		t.Errorf("Unmount of foreign topic = %q, want other/t", got)
	}
	if got := topics.Mount("", "t"); got != "t" {
		t.Errorf("Mount with empty mountpoint = %q, want t", got)
	}
}
