// Package engine owns the speech model and coordinates its initialization
// and use. It is structured into small files by concern:
//
//   - engine.go: core Engine type, Config, constructor, getters, Close.
//   - ensure.go: EnsureLoaded, the single-flight model initialization.
//   - synth.go: Synthesize, worker-pool dispatch and chunk concatenation.
//   - backend.go: Backend/Model interfaces implemented by runtimes.
//   - backend_http.go: runtime backed by an external inference sidecar.
//   - backend_tone.go: deterministic in-process generator for dev and tests.
//   - errors.go: LoadError, SynthesisError and Is* helpers.
//   - events.go, eventpub_*.go: lifecycle events and publishers.
//   - metrics.go: Prometheus instrumentation.
//
// The loaded flag is monotonic: once EnsureLoaded succeeds the model stays
// loaded until the process exits. Failed loads leave the engine unloaded and
// the next caller retries.
package engine
