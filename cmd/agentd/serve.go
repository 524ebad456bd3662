// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentcore/runtime/internal/agentruntime"
	"github.com/agentcore/runtime/internal/eventbus"
	"github.com/agentcore/runtime/internal/hookconfig"
	"github.com/agentcore/runtime/internal/hookserver"
	"github.com/agentcore/runtime/internal/registry"
	"github.com/agentcore/runtime/internal/store"
	"github.com/agentcore/runtime/internal/wsgateway"
)

func newServeCmd() *cobra.Command {
	var (
		addr     string
		hookAddr string
		agentBin string
		dbPath   string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the agent runtime supervisor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(addr, hookAddr, agentBin, dbPath)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:7171", "address to serve the WebSocket gateway on")
	cmd.Flags().StringVar(&hookAddr, "hook-addr", "http://127.0.0.1:7171/hooks", "loopback URL written into hook configs")
	cmd.Flags().StringVar(&agentBin, "agent-bin", "claude", "agent binary to exec per spawn")
	cmd.Flags().StringVar(&dbPath, "db", "", "path to the SQLite database (defaults under ~/.agentcore)")

	return cmd
}

func runServe(addr, hookAddr, agentBin, dbPath string) error {
	db, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := store.Migrate(db); err != nil {
		return err
	}

	bus := eventbus.New()
	hooks := hookconfig.New(hookAddr)
	defer hooks.Close()

	reg := registry.New(func(id string) *agentruntime.Runtime {
		return agentruntime.New(id, agentBin, bus, hooks)
	}, bus)

	hookSrv := hookserver.New(reg, func(id string) (hookserver.Dispatcher, bool) {
		rt, err := reg.Get(id)
		return rt, err == nil
	})
	gw := wsgateway.New(func(id string) (wsgateway.OutputSource, bool) {
		rt, err := reg.Get(id)
		return rt, err == nil
	}, bus)

	mux := http.NewServeMux()
	hookSrv.RegisterRoutes(mux)
	mux.HandleFunc("GET /agents/{id}/ws", gw.HandleAgent)

	srv := &http.Server{Addr: addr, Handler: mux}

	serveErr := make(chan error, 1)
	go func() {
		log.Printf("[agentd] serving on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		return err
	case <-sig:
		log.Printf("[agentd] shutting down")
	}

	reg.StopAll()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
