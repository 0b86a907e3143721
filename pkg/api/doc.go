// Package api defines the domain vocabulary shared across the gateway:
// parsed request types (actions, targets, preferences, media types), the
// tagged result-set union produced by statement execution, and the single
// error type threaded through the request pipeline.
package api
