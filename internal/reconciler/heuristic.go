// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package reconciler

import "strings"

// TailWindow is how many bytes of the replay buffer tail the prompt-shape
// heuristic examines.
const TailWindow = 200

var waitingSubstrings = []string{
	"[Y/n]", "[y/N]", "(yes/no)", "(y/n)",
	"Allow ", "Approve", "Do you want",
}

// IsWaiting reports whether stripped terminal output looks like it's
// blocked on a yes/no or permission-style prompt. It is a fallback,
// consulted only when no hook notification is fresh (§4.5).
func IsWaiting(text string) bool {
	stripped := StripANSI(text)
	for _, sub := range waitingSubstrings {
		if strings.Contains(stripped, sub) {
			return true
		}
	}
	lastLine := lastNonEmptyLine(stripped)
	return strings.HasSuffix(lastLine, "?")
}

func lastNonEmptyLine(s string) string {
	lines := strings.Split(s, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line != "" {
			return line
		}
	}
	return ""
}
