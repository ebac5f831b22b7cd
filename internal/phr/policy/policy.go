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

// Package policy evaluates the conjunctive attribute-bag predicates
// attached to object records. Evaluation is total and side-effect-free:
// malformed policy text never panics, it simply fails to be satisfied.
package policy

import "strings"

// RevokedSentinelValue is the attribute value that can never legitimately
// appear in a user's attribute bag. A policy of "Role:RevokedSentinelValue"
// is therefore unsatisfiable by any real caller.
const RevokedSentinelValue = "__REVOKED__"

// RevokedPolicy is the reserved blanket-revocation policy string.
const RevokedPolicy = "Role:" + RevokedSentinelValue

// Clause is a single parsed "key:value" requirement.
type Clause struct {
	Key   string
	Value string
}

// Parse tokenizes policy text into its conjunctive clauses. Clauses are
// split on the literal token "AND" (case-sensitive); each clause splits on
// its first colon. Parse returns an error for any malformed clause (empty
// key, empty value, or a clause with no colon) so that callers can choose
// to fail closed rather than silently skip a bad clause.
func Parse(policyText string) ([]Clause, error) {
	fields := strings.Fields(policyText)
	if len(fields) == 0 {
		return nil, errEmptyPolicy
	}

	var clauseTokens []string
	expectClause := true
	for _, f := range fields {
		if f == "AND" {
			if expectClause {
				return nil, errMalformedClause
			}
			expectClause = true
			continue
		}
		if !expectClause {
			// Two clause tokens in a row with no "AND" between them.
			return nil, errMalformedClause
		}
		clauseTokens = append(clauseTokens, f)
		expectClause = false
	}
	if expectClause {
		return nil, errMalformedClause
	}

	clauses := make([]Clause, 0, len(clauseTokens))
	for _, tok := range clauseTokens {
		key, value, ok := strings.Cut(tok, ":")
		if !ok || key == "" || value == "" {
			return nil, errMalformedClause
		}
		if !isValidKey(key) {
			return nil, errMalformedClause
		}
		clauses = append(clauses, Clause{Key: key, Value: value})
	}

	return clauses, nil
}

func isValidKey(key string) bool {
	for i, r := range key {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r == '_':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// Evaluate reports whether attrs satisfies policyText. Evaluation is
// fail-closed: a parse error, like a missing attribute, makes the policy
// unsatisfied rather than propagating an error to the caller.
func Evaluate(policyText string, attrs map[string]string) bool {
	clauses, err := Parse(policyText)
	if err != nil {
		return false
	}
	for _, c := range clauses {
		if attrs[c.Key] != c.Value {
			return false
		}
	}
	return true
}
