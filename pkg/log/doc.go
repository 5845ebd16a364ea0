// Package log provides a logging abstraction for flowhost components.
//
// This package defines a Logger interface that can be implemented by
// any logging library. Default implementations are provided for zerolog
// and a no-op logger for testing.
//
// # Usage
//
// Use the provided zerolog adapter:
//
//	logger := log.NewZerologAdapterWithLogger(zerolog.New(os.Stderr))
//
// Or build a console logger at a configured level:
//
//	logger, err := log.NewConsoleLogger("debug")
//
// Use the no-op logger for testing:
//
//	logger := log.NewNoopLogger()
//
// Lifecycle containers hand their logger down to every child they own, so
// configuring the adapter's logger is usually enough.
//
// # Version
//
// Current version: 1.1.0
// Minimum compatible version: 1.0.0
package log
