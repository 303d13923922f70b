package tasks

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "syndicate_feed_polls_total",
		Help: "Feed poll runs by result.",
	}, []string{"result"})

	itemsDiscovered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "syndicate_feed_items_discovered_total",
		Help: "New feed items discovered across all polls.",
	})

	jobsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "syndicate_jobs_executed_total",
		Help: "Scheduled job executions by result.",
	}, []string{"result"})

	taskRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "syndicate_task_retries_total",
		Help: "Task retries by task type.",
	}, []string{"type"})
)
