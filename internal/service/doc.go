// Package service implements the request lifecycle for speech generation:
// correlation, validation, admission (rate limit, then queue capacity),
// engine invocation and encoding. It also aggregates health signals and
// carries the process-wide shutdown flag.
//
// The order of checks in Generate is fixed; each rejection is final and
// later stages never run:
//
//	shutdown flag -> validation -> rate limit -> queue capacity -> engine -> encode
package service
