package services

import (
	"context"
	"time"

	"github.com/suryadevkumar/SheSecure-sub000/internal/config"
	"github.com/suryadevkumar/SheSecure-sub000/pkg/logger"
)

// Supervisor periodically ends Active sessions whose heartbeats stopped.
// A client that disconnects without a clean end leaks its session only
// until the next sweep; the terminal broadcast is the same as an explicit
// end.
type Supervisor struct {
	sos      *SOSService
	location *LocationService
	cfg      config.SessionConfig
}

// NewSupervisor creates a supervisor over both session kinds
func NewSupervisor(sos *SOSService, location *LocationService, cfg config.SessionConfig) *Supervisor {
	return &Supervisor{
		sos:      sos,
		location: location,
		cfg:      cfg,
	}
}

// Run sweeps on the configured interval until ctx is cancelled
func (s *Supervisor) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			swept := s.sos.Sweep(ctx) + s.location.Sweep(ctx)
			if swept > 0 {
				logger.WithField("count", swept).Info("Expired abandoned sessions")
			}
		}
	}
}
