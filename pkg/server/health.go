package server

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/heptiolabs/healthcheck"
	"github.com/shirou/gopsutil/v3/process"
)

const checkTimeout = 2 * time.Second

// registerChecks wires the liveness and readiness checks.
func (s *Server) registerChecks() {
	if s.config.MaxGoroutines > 0 {
		s.health.AddLivenessCheck("goroutines", healthcheck.GoroutineCountCheck(s.config.MaxGoroutines))
	}

	s.health.AddReadinessCheck("routes", func() error {
		if s.sessions.Registry().Len() == 0 {
			return errors.New("no routes registered")
		}
		return nil
	})
	s.health.AddReadinessCheck("workers", func() error {
		if s.sessions.PoolClosed() {
			return errors.New("worker pool closed")
		}
		return nil
	})
	if s.config.MaxMemoryBytes > 0 {
		s.health.AddReadinessCheck("memory", healthcheck.Timeout(rssCheck(s.config.MaxMemoryBytes), checkTimeout))
	}
}

// rssCheck fails when the resident set size of this process exceeds limit.
func rssCheck(limit uint64) healthcheck.Check {
	return func() error {
		proc, err := process.NewProcess(int32(os.Getpid()))
		if err != nil {
			return err
		}
		mem, err := proc.MemoryInfo()
		if err != nil {
			return err
		}
		if mem.RSS > limit {
			return fmt.Errorf("rss %d bytes exceeds limit %d", mem.RSS, limit)
		}
		return nil
	}
}
