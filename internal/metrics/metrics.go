// Package metrics holds the prometheus collectors shared by both bot processes.
package metrics

import (
	"strconv"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "amegavpn"

var (
	once sync.Once

	updatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_total",
			Help:      "Inbound chat updates by bot role and kind.",
		},
		[]string{"role", "kind"},
	)

	paymentsSubmitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_submitted_total",
			Help:      "Payment receipts submitted for review.",
		},
	)

	paymentDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_decisions_total",
			Help:      "Admin decisions by decision and result.",
		},
		[]string{"decision", "result"},
	)

	keysAllocated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "keys_allocated_total",
			Help:      "Keys bound to users.",
		},
	)

	keysLoaded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "keys_loaded_total",
			Help:      "Key lines processed by loader source and result.",
		},
		[]string{"source", "result"},
	)

	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Outbound user notifications by kind and success.",
		},
		[]string{"kind", "success"},
	)

	remindersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_total",
			Help:      "Renewal reminders by days left and success.",
		},
		[]string{"days", "success"},
	)

	panelUp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "panel_up",
			Help:      "1 when the last panel probe succeeded.",
		},
	)

	backupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backups_total",
			Help:      "Database backups by success.",
		},
		[]string{"success"},
	)
)

// MustRegister registers collectors with the default registry (idempotent).
func MustRegister() {
	once.Do(func() {
		prometheus.MustRegister(
			updatesTotal, paymentsSubmitted, paymentDecisions,
			keysAllocated, keysLoaded, notificationsTotal,
			remindersTotal, panelUp, backupsTotal,
		)
	})
}

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func IncUpdate(role, kind string) {
	updatesTotal.WithLabelValues(norm(role), norm(kind)).Inc()
}

func IncPaymentSubmitted() { paymentsSubmitted.Inc() }

func ObserveDecision(decision, result string) {
	paymentDecisions.WithLabelValues(norm(decision), norm(result)).Inc()
}

func IncKeyAllocated() { keysAllocated.Inc() }

func ObserveKeysLoaded(source string, added, duplicates, malformed int) {
	keysLoaded.WithLabelValues(norm(source), "added").Add(float64(added))
	keysLoaded.WithLabelValues(norm(source), "duplicate").Add(float64(duplicates))
	keysLoaded.WithLabelValues(norm(source), "malformed").Add(float64(malformed))
}

func IncNotification(kind string, success bool) {
	notificationsTotal.WithLabelValues(norm(kind), strconv.FormatBool(success)).Inc()
}

func IncReminder(days int, success bool) {
	remindersTotal.WithLabelValues(strconv.Itoa(days), strconv.FormatBool(success)).Inc()
}

func SetPanelUp(up bool) {
	if up {
		panelUp.Set(1)
		return
	}
	panelUp.Set(0)
}

func IncBackup(success bool) {
	backupsTotal.WithLabelValues(strconv.FormatBool(success)).Inc()
}
