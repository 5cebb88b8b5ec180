// Package tracing wraps OpenTelemetry so that taskd services can start and
// end spans around uploads, enqueues and job launches without importing the
// upstream packages directly. Spans are no-ops until Init installs a provider.
package tracing
