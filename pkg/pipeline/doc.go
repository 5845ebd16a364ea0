// Package pipeline assembles the runtime topology of a flowhost adapter.
//
// An Adapter owns Channels, a Channel owns Workflows, and a Workflow owns a
// Producer, a ServiceList and a Consumer. Every one of them is a
// lifecycle.Container, so a single Start on the adapter brings the whole tree
// up in insertion order and a single Stop tears it down in reverse:
//
//	adapter
//	└── channel "inbound"
//	    ├── connection (optional, shared by the channel's workflows)
//	    └── workflow "orders"
//	        ├── producer
//	        ├── services
//	        └── consumer
//
// The consumer is the last child of a workflow, so it starts after the
// producer is ready and stops before the producer goes away.
//
// Failures are routed to the recovery handlers configured on the workflow,
// or inherited from the adapter when the workflow has none:
//
//   - a failed message goes to the workflow's recovery.ProcessingErrorHandler;
//   - a failed produce additionally goes to its recovery.ProduceExceptionHandler;
//   - a connection error reported by the consumer goes to the channel's
//     recovery.ConnectionErrorHandler.
package pipeline
