/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package audit

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	appendsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "phr",
		Subsystem: "audit",
		Name:      "appends_total",
		Help:      "Audit records appended, by status.",
	}, []string{"status"})

	appendFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "phr",
		Subsystem: "audit",
		Name:      "append_failures_total",
		Help:      "Audit append attempts that failed to write or sync.",
	})
)

// MustRegister registers the audit package's metrics on reg. Call once at
// startup; registering twice on the same registry panics.
func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(appendsTotal, appendFailuresTotal)
}

// InstrumentedAppend wraps Append with the appends_total/append_failures_total
// counters. The counters are purely observational: they play no role in
// chain integrity and their loss changes nothing about correctness.
func (l *Log) InstrumentedAppend(ctx context.Context, actorID, objectName, action, status string) (Record, error) {
	r, err := l.Append(ctx, actorID, objectName, action, status)
	if err != nil {
		appendFailuresTotal.Inc()
		return r, err
	}
	appendsTotal.WithLabelValues(status).Inc()
	return r, nil
}
