package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"codenerd-core/internal/locks"
)

var locksCmd = &cobra.Command{
	Use:   "locks",
	Short: "list active soft locks held over the workspace",
	Long: `locks reports every non-expired soft lock currently held in this
process's lock store. With the "process-local" backend (the default) this
only reflects locks acquired by agents running inside this same process;
it cannot see locks held by a separate nerd invocation. Setting
locks.backend to "distributed" does not change that here: this command
builds that store over a fresh in-memory KV, which holds no locks from
any other process.`,
	RunE: listLocks,
}

func listLocks(cmd *cobra.Command, args []string) error {
	var store locks.Store
	switch cfg.Locks.Backend {
	case "distributed":
		store = locks.NewDistributedStore(locks.NewInMemoryKV())
	default:
		store = locks.NewProcessLocalStore()
	}
	manager := locks.NewManager(store)

	byPath := manager.ActiveLocksByPath()
	if len(byPath) == 0 {
		fmt.Println("no active locks")
		return nil
	}

	paths := make([]string, 0, len(byPath))
	for p := range byPath {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	now := time.Now()
	for _, p := range paths {
		for _, l := range byPath[p] {
			remaining := l.TTL - now.Sub(l.AcquiredAt)
			fmt.Printf("%-40s agent=%-12s kind=%d expires_in=%s\n", p, l.AgentID, l.Kind, remaining.Round(time.Second))
		}
	}
	return nil
}
