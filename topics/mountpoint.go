// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package topics

import "strings"

// Mountpoint placeholders replaced when the handshake completes.
const (
	placeholderClientID = "%c"
	placeholderUsername = "%u"
)

// ExpandMountpoint substitutes the mountpoint template variables with the
// connection's client identifier and username.
func ExpandMountpoint(template, clientID, username string) string {
	if template == "" {
		return ""
	}
	mp := strings.ReplaceAll(template, placeholderClientID, clientID)
	if username != "" {
		mp = strings.ReplaceAll(mp, placeholderUsername, username)
	}
	return mp
}

// Mount prepends the mountpoint to a topic.
func Mount(mountpoint, topic string) string {
	if mountpoint == "" {
		return topic
	}
	return mountpoint + topic
}

// Unmount strips the mountpoint prefix from a topic on outbound delivery.
// Topics outside the mountpoint pass through unchanged.
func Unmount(mountpoint, topic string) string {
	if mountpoint == "" {
		return topic
	}
	return strings.TrimPrefix(topic, mountpoint)
}
