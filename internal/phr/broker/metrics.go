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

package broker

import "github.com/prometheus/client_golang/prometheus"

var (
	decisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "phr",
		Subsystem: "broker",
		Name:      "decisions_total",
		Help:      "Audited broker access decisions, by audit status.",
	}, []string{"status"})

	failuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "phr",
		Subsystem: "broker",
		Name:      "failures_total",
		Help:      "Broker requests aborted before a decision (setup or integrity failures), by error kind.",
	}, []string{"kind"})
)

// MustRegister registers the broker package's metrics on reg. Call once at
// startup.
func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(decisionsTotal, failuresTotal)
}
