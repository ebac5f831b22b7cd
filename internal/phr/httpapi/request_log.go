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

package httpapi

import (
	"net/http"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/sesphr/srsbroker/pkg/logctx"
)

const requestIDHeader = "X-Request-ID"

// RequestLogMiddleware stamps every request with a request id (reusing one
// supplied by the caller or an upstream proxy, minting a fresh one
// otherwise), stores it on the request context, and logs the request's
// method and path at V(1) before handing it on. Every handler's own log lines inherit the same id through
// logctx.LoggerWithContext, so a single request's log lines can be
// correlated without threading an id through every call signature.
func RequestLogMiddleware(log logr.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(requestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, reqID)

		ctx := logctx.WithRequestID(r.Context(), reqID)
		r = r.WithContext(ctx)

		reqLog := logctx.LoggerWithContext(log, ctx)
		reqLog.V(1).Info("request received", "method", r.Method, "path", r.URL.Path)

		next.ServeHTTP(w, r)
	})
}
