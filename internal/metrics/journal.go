// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	journalWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "remoto_journal_writes_total",
		Help: "Transition journal writes by result",
	}, []string{"result"})

	journalPruned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "remoto_journal_pruned_total",
		Help: "Journal rows removed by retention",
	})

	statusFileWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "remoto_status_file_writes_total",
		Help: "Atomic status file writes by result",
	}, []string{"result"})
)

func IncJournalWrite(success bool) {
	journalWrites.WithLabelValues(result(success)).Inc()
}

func AddJournalPruned(n int64) {
	if n > 0 {
		journalPruned.Add(float64(n))
	}
}

func IncStatusFileWrite(success bool) {
	statusFileWrites.WithLabelValues(result(success)).Inc()
}

func result(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
