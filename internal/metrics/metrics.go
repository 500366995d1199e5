package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LoansIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lms_loans_issued_total",
		Help: "Loans created, including waitlist allocations.",
	})

	LoansReturned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lms_loans_returned_total",
		Help: "Loans closed by return.",
	})

	LoansExtended = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lms_loans_extended_total",
		Help: "Successful due-date extensions, direct or via renewal approval.",
	})

	QueueJoins = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lms_queue_joins_total",
		Help: "Waitlist entries created.",
	})

	QueueAllocations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lms_queue_allocations_total",
		Help: "Freed copies handed to waiting members.",
	})

	FinesAccrued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lms_fines_accrued_total",
		Help: "Fines created, by reason.",
	}, []string{"reason"})

	FineAmountCollected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lms_fine_amount_collected_total",
		Help: "Total fine payments received, in currency units.",
	})

	SweepRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lms_sweep_runs_total",
		Help: "Sweep executions, by sweep name and outcome.",
	}, []string{"sweep", "outcome"})
)
