/*
Copyright (C) 2022-2024 ApeCloud Co., Ltd

This file is part of KubeBlocks project

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU Affero General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU Affero General Public License for more details.

You should have received a copy of the GNU Affero General Public License
along with this program.  If not, see <http://www.gnu.org/licenses/>.
*/

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "nodeops"

var (
	RunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "runs_total",
		Help:      "Orchestration runs by task type and terminal phase.",
	}, []string{"task_type", "phase"})

	RunsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "runs_in_flight",
		Help:      "Orchestration runs currently executing.",
	})

	SubTaskGroupDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "subtask_group_duration_seconds",
		Help:      "Duration of subtask groups by group type and result.",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 14),
	}, []string{"group_type", "result"})

	SubTaskRetriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "subtask_retries_total",
		Help:      "Subtask attempts that failed and were retried.",
	}, []string{"subtask"})

	ConflictsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "conflicts_total",
		Help:      "Requests rejected because another run owns the target.",
	})
)

// Register registers the collectors on the given registry (or default if nil).
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{RunsTotal, RunsInFlight, SubTaskGroupDuration, SubTaskRetriesTotal, ConflictsTotal} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}

func ResultLabel(err error) string {
	if err != nil {
		return "failed"
	}
	return "succeeded"
}
