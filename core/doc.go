// Package core contains the canonical credential broker domain: flow
// sessions, token persistence, entry normalization, and the sanitizer.
// Transport and storage adapters depend on this package; core must not
// depend on provider-specific or transport-specific adapters.
package core
