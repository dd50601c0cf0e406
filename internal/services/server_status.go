package services

import (
	"context"
	"sync"
	"time"

	"amega-vpn-bot/internal/metrics"

	"go.uber.org/zap"
)

// Pinger is the part of the panel client the monitor needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

type PanelStatus struct {
	Configured  bool
	Up          bool
	LastError   string
	LastChecked time.Time
}

// PanelMonitor probes the VPN panel and alerts once per outage.
type PanelMonitor struct {
	panel Pinger
	alert Alerter
	now   func() time.Time
	log   *zap.Logger

	mu   sync.RWMutex
	last PanelStatus
	seen bool
}

// NewPanelMonitor accepts a nil panel, in which case the panel is reported as not configured.
func NewPanelMonitor(panel Pinger, alert Alerter, now func() time.Time, log *zap.Logger) *PanelMonitor {
	if now == nil {
		now = time.Now
	}
	return &PanelMonitor{panel: panel, alert: alert, now: now, log: log.Named("panel")}
}

func (m *PanelMonitor) Check(ctx context.Context) PanelStatus {
	if m.panel == nil {
		return PanelStatus{}
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	err := m.panel.Ping(ctx)

	st := PanelStatus{Configured: true, Up: err == nil, LastChecked: m.now()}
	if err != nil {
		st.LastError = err.Error()
	}
	metrics.SetPanelUp(st.Up)

	m.mu.Lock()
	wasUp := !m.seen || m.last.Up
	m.last = st
	m.seen = true
	m.mu.Unlock()

	switch {
	case wasUp && !st.Up:
		m.log.Error("panel unreachable", zap.Error(err))
		m.alert.Alert("Панель 3x-ui недоступна: " + st.LastError)
	case !wasUp && st.Up:
		m.log.Info("panel reachable again")
		m.alert.Alert("Панель 3x-ui снова доступна")
	}
	return st
}

// Status returns the last probe result without probing.
func (m *PanelMonitor) Status() PanelStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st := m.last
	st.Configured = m.panel != nil
	return st
}
