// Package flowhost runs an adapter topology described by a Config.
//
// A Host builds the adapter, its channels and workflows from builtin
// connectors, owns the worker pool that carries out recovery restarts and
// connection-error closes, and drives plugins alongside the topology.
//
// Example:
//
//	host, err := flowhost.New(cfg, flowhost.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	if err := host.Start(ctx); err != nil {
//		return err
//	}
//	defer host.Stop(context.Background())
package flowhost
