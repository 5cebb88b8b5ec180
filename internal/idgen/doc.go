// Package idgen wraps the UUID generator so that it can be stubbed in tests.
// Job identifiers are opaque tokens: callers must not parse them or rely on
// their length.
package idgen
