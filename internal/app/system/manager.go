package system

import (
	"context"
	"fmt"

	"github.com/scholarxp/xp-engine/pkg/logger"
)

// Manager starts registered services in registration order and stops them in
// reverse. A failed start stops the services already running before the
// error is returned.
type Manager struct {
	services []Service
	log      *logger.Logger
}

// NewManager creates an empty manager.
func NewManager(log *logger.Logger) *Manager {
	if log == nil {
		log = logger.NewDefault("system")
	}
	return &Manager{log: log}
}

// Register adds a service. Not safe to call after Start.
func (m *Manager) Register(svc Service) {
	m.services = append(m.services, svc)
}

// Start brings all registered services up.
func (m *Manager) Start(ctx context.Context) error {
	for i, svc := range m.services {
		m.log.WithField("service", svc.Name()).Info("starting service")
		if err := svc.Start(ctx); err != nil {
			m.stopFrom(ctx, i-1)
			return fmt.Errorf("start %s: %w", svc.Name(), err)
		}
	}
	return nil
}

// Stop shuts all services down in reverse order. Errors are logged, not
// returned, so one bad actor cannot block the rest of shutdown.
func (m *Manager) Stop(ctx context.Context) {
	m.stopFrom(ctx, len(m.services)-1)
}

func (m *Manager) stopFrom(ctx context.Context, idx int) {
	for i := idx; i >= 0; i-- {
		svc := m.services[i]
		if err := svc.Stop(ctx); err != nil {
			m.log.WithError(err).WithField("service", svc.Name()).Error("service stop failed")
			continue
		}
		m.log.WithField("service", svc.Name()).Info("service stopped")
	}
}
