// Package infra holds the adapters for third-party systems. Subpackages
// implement interfaces declared under core and are wired together in app.
package infra
