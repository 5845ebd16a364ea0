// Package recovery implements the failure handling strategies of a flowhost
// adapter.
//
// Three kinds of failure are handled independently:
//
//   - Connection errors (a transport lost its connection): a
//     ConnectionErrorHandler marks the affected channels unavailable and
//     closes them, or with the null variant marks them available again.
//   - Produce failures (a producer could not deliver a message): a
//     ProduceExceptionHandler restarts the failing workflow or its whole
//     channel on a bounded worker pool, or only logs.
//   - Processing failures (any failure while processing one message): a
//     ProcessingErrorHandler forwards the message to a FailureSink, or parks
//     it in a RetryStore for bounded, scheduled resubmission.
//
// Failures of one message never affect other messages. Retry state lives in
// memory only and is lost on restart.
package recovery
