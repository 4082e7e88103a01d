// Package query evaluates find parameters against stored record documents.
//
// Parameters are split into equality filters and a small set of reserved
// keys: "where" holds a boolean expression evaluated by a pluggable
// Evaluator (expr by default, CEL, or JavaScript with the js_eval build tag),
// "limit" and "offset" window the result.
package query
