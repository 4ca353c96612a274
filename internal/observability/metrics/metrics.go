package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "careledger_"

	// ResultSuccess labels successful operations.
	ResultSuccess = "success"
	// ResultError labels failed operations.
	ResultError = "error"
)

// Budget check outcomes.
const (
	BudgetOutcomeAlerted  = "alerted"
	BudgetOutcomeOK       = "ok"
	BudgetOutcomeDisabled = "disabled"
	BudgetOutcomeError    = "error"
)

// Import row outcomes.
const (
	RowInserted       = "inserted"
	RowSkippedMonthly = "skipped_monthly"
	RowDuplicate      = "skipped_duplicate"
	RowBeforeStart    = "skipped_before_start"
	RowUnknownService = "unknown_service"
	RowInvalid        = "invalid"
)

var (
	registerOnce sync.Once

	ledgerMutations *prometheus.CounterVec

	importRequests *prometheus.CounterVec
	importRows     *prometheus.CounterVec
	importLatency  *prometheus.HistogramVec

	budgetChecks *prometheus.CounterVec

	backfillEntries prometheus.Counter

	exportTotal   *prometheus.CounterVec
	exportLatency *prometheus.HistogramVec
)

// Init registers the billing metrics. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		ledgerMutations = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ledger_mutations_total",
				Help: "Total single-statement mutations by operation and result",
			},
			[]string{"op", "result"},
		)
		importRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "import_requests_total",
				Help: "Total bulk import requests by result",
			},
			[]string{"result"},
		)
		importRows = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "import_rows_total",
				Help: "Total bulk import data rows by outcome",
			},
			[]string{"outcome"},
		)
		importLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "import_latency_seconds",
				Help:    "Bulk import latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		budgetChecks = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "budget_checks_total",
				Help: "Total budget evaluations by outcome",
			},
			[]string{"outcome"},
		)
		backfillEntries = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "backfill_entries_total",
				Help: "Total monthly-fee entries inserted by the backfill job",
			},
		)
		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "statement_export_total",
				Help: "Total statement exports by format and result",
			},
			[]string{"format", "result"},
		)
		exportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "statement_export_latency_seconds",
				Help:    "Statement export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		prometheus.MustRegister(
			ledgerMutations,
			importRequests,
			importRows,
			importLatency,
			budgetChecks,
			backfillEntries,
			exportTotal,
			exportLatency,
		)
	})
}

// ObserveLedgerMutation counts one single-statement mutation.
func ObserveLedgerMutation(op, result string) {
	if ledgerMutations == nil {
		return
	}
	ledgerMutations.WithLabelValues(op, result).Inc()
}

// ObserveImport counts one bulk import request.
func ObserveImport(result string, duration time.Duration) {
	if importRequests == nil {
		return
	}
	importRequests.WithLabelValues(result).Inc()
	importLatency.WithLabelValues(result).Observe(duration.Seconds())
}

// ObserveImportRows adds row outcomes from one import.
func ObserveImportRows(outcome string, count int) {
	if importRows == nil || count <= 0 {
		return
	}
	importRows.WithLabelValues(outcome).Add(float64(count))
}

// ObserveBudgetCheck counts one budget evaluation.
func ObserveBudgetCheck(outcome string) {
	if budgetChecks == nil {
		return
	}
	budgetChecks.WithLabelValues(outcome).Inc()
}

// ObserveBackfillEntries adds inserted backfill rows.
func ObserveBackfillEntries(count int) {
	if backfillEntries == nil || count <= 0 {
		return
	}
	backfillEntries.Add(float64(count))
}

// ObserveExport counts one statement export.
func ObserveExport(format, result string, duration time.Duration) {
	if exportTotal == nil {
		return
	}
	exportTotal.WithLabelValues(format, result).Inc()
	exportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
}
