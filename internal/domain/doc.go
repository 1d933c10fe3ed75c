// Package domain re-exports the shared types and service contracts of
// commcore so callers import one package instead of two.
//
// The definitions live in domain/types (wire and state records) and
// domain/interfaces (services, stores and transports).
package domain
