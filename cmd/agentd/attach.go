// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newAttachCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "attach <agent-id>",
		Short: "Attach a local terminal to a running agent over the loopback WebSocket gateway",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAttach(addr, args[0])
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:7171", "address the agentd WebSocket gateway is serving on")
	return cmd
}

func runAttach(addr, agentID string) error {
	url := fmt.Sprintf("ws://%s/agents/%s/ws", addr, agentID)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	defer conn.Close()

	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("set raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	fmt.Fprintf(os.Stdout, "\r\n[agentd] attached to %s (detach: Ctrl-])\r\n", agentID)

	done := make(chan struct{}, 1)
	notifyDone := func() {
		select {
		case done <- struct{}{}:
		default:
		}
	}

	go func() {
		for {
			messageType, data, err := conn.ReadMessage()
			if err != nil {
				notifyDone()
				return
			}
			if messageType == websocket.BinaryMessage {
				os.Stdout.Write(data)
			}
		}
	}()

	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := os.Stdin.Read(buf)
			if n > 0 {
				if idx := strings.IndexByte(string(buf[:n]), 0x1D); idx >= 0 {
					notifyDone()
					return
				}
				if werr := conn.WriteMessage(websocket.BinaryMessage, append([]byte(nil), buf[:n]...)); werr != nil {
					notifyDone()
					return
				}
			}
			if err != nil {
				notifyDone()
				return
			}
		}
	}()

	sendResize := func() {
		if cols, rows, err := term.GetSize(fd); err == nil {
			msg := fmt.Sprintf(`{"type":"resize","cols":%d,"rows":%d}`, cols, rows)
			conn.WriteMessage(websocket.TextMessage, []byte(msg))
		}
	}
	sendResize()

	winch := make(chan os.Signal, 1)
	signal.Notify(winch, syscall.SIGWINCH)
	go func() {
		for range winch {
			sendResize()
		}
	}()

	<-done
	return nil
}
