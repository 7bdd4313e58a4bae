// Package pipeline runs the configured stages once, in order, threading each
// stage's payload into the next. A cycle stops at the first failed stage or
// when shutdown is requested between stages; failed stages are not retried
// within the cycle.
package pipeline
