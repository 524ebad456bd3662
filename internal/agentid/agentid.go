// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

// Package agentid generates the opaque identifiers the runtime mints: PTY
// ids and session tokens. Durable agent ids are minted by package store.
package agentid

import "github.com/google/uuid"

// New returns a fresh opaque identifier suitable for an agent id, a PTY id,
// or a session token.
func New() string {
	return uuid.NewString()
}
