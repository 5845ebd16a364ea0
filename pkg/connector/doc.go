// Package connector provides in-process consumers, producers and services
// that need no external transport. They back the "builtin" kinds of the
// flowhost configuration and are handy in tests.
package connector
