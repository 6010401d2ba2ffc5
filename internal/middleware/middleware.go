// Package middleware provides HTTP middleware shared across handlers.
package middleware

// contextKey is a private type for context keys to avoid collisions.
type contextKey string
