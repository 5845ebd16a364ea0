package flowhost

import (
	"fmt"

	"github.com/bft-labs/flowhost/pkg/connector"
	"github.com/bft-labs/flowhost/pkg/lifecycle"
	"github.com/bft-labs/flowhost/pkg/pipeline"
	"github.com/bft-labs/flowhost/pkg/poll"
	"github.com/bft-labs/flowhost/pkg/recovery"
	"github.com/bft-labs/flowhost/pkg/retrier"
)

// build assembles the adapter, its channels and their workflows from h.config.
func (h *Host) build() error {
	mode, err := retrier.ParseMode(h.config.RegistrationMode)
	if err != nil {
		return err
	}

	var emitter lifecycle.EventEmitter
	switch {
	case h.recorder != nil && h.opts.emitter != nil:
		emitter = emitters{h.recorder, h.opts.emitter}
	case h.recorder != nil:
		emitter = h.recorder
	default:
		emitter = h.opts.emitter
	}

	adapterOpts := []pipeline.AdapterOption{
		pipeline.WithLogger(h.logger),
		pipeline.WithEventEmitter(emitter),
	}
	if h.recorder != nil {
		adapterOpts = append(adapterOpts, pipeline.WithRetryObserver(h.recorder))
	}

	h.adapter, err = pipeline.NewAdapter(pipeline.AdapterConfig{
		Name:             h.config.Name,
		RegistrationMode: mode,
		Retry: recovery.RetryConfig{
			Interval:     h.config.RetryInterval,
			Limit:        h.config.RetryLimit,
			ScanInterval: h.config.RetryScanInterval,
		},
		RetryFailedMessages:     h.config.RetryFailedMessages,
		Sink:                    h.opts.sink,
		ProduceExceptionHandler: h.produceHandler(),
	}, adapterOpts...)
	if err != nil {
		return err
	}

	for _, chCfg := range h.config.Channels {
		ch, err := pipeline.NewChannel(pipeline.ChannelConfig{
			Name:                   chCfg.Name,
			ConnectionErrorHandler: h.connectionHandler(chCfg.ConnectionHandler),
		})
		if err != nil {
			return err
		}
		if err := h.adapter.AddChannel(ch); err != nil {
			return err
		}
		for _, wfCfg := range chCfg.Workflows {
			wf, err := h.buildWorkflow(chCfg.Name, wfCfg)
			if err != nil {
				return err
			}
			if err := ch.AddWorkflow(wf); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *Host) buildWorkflow(channel string, cfg WorkflowConfig) (*pipeline.Workflow, error) {
	key := componentKey(channel, cfg.Name)

	var consumer pipeline.Consumer
	switch cfg.Consumer.Kind {
	case ConsumerTicker:
		policy, err := poll.ParsePolicy(cfg.Consumer.Policy)
		if err != nil {
			return nil, err
		}
		var opts []pipeline.PollingOption
		if h.recorder != nil {
			opts = append(opts, pipeline.WithPollObserver(h.recorder))
		}
		consumer = pipeline.NewPollingConsumer(cfg.Name+"/consumer",
			connector.NewTicker(cfg.Consumer.Payload, cfg.Consumer.Batch),
			poll.SchedulerConfig{
				Name:            key,
				Interval:        cfg.Consumer.Interval,
				Policy:          policy,
				ShutdownTimeout: h.config.ShutdownTimeout,
			}, opts...)
	case ConsumerInbox:
		in := connector.NewInbox(cfg.Name+"/consumer", cfg.Consumer.Buffer)
		h.inboxes[key] = in
		consumer = in
	default:
		return nil, fmt.Errorf("%w: workflow %s: unknown consumer kind %q", pipeline.ErrConfiguration, cfg.Name, cfg.Consumer.Kind)
	}

	services := make([]pipeline.Service, 0, len(cfg.Services))
	for _, s := range cfg.Services {
		switch s.Kind {
		case ServiceMetadata:
			services = append(services, connector.AddMetadata(s.Key, s.Value))
		case ServiceLog:
			services = append(services, connector.LogService(key, h.logger))
		default:
			return nil, fmt.Errorf("%w: workflow %s: unknown service kind %q", pipeline.ErrConfiguration, cfg.Name, s.Kind)
		}
	}

	var producer pipeline.Producer
	switch cfg.Producer.Kind {
	case ProducerLog:
		producer = connector.NewLogProducer(cfg.Name+"/producer", h.logger)
	case ProducerDiscard:
		producer = connector.NewDiscardProducer(cfg.Name + "/producer")
	case ProducerCapture:
		c := connector.NewCaptureProducer(cfg.Name + "/producer")
		h.captures[key] = c
		producer = c
	default:
		return nil, fmt.Errorf("%w: workflow %s: unknown producer kind %q", pipeline.ErrConfiguration, cfg.Name, cfg.Producer.Kind)
	}

	return pipeline.NewWorkflow(pipeline.WorkflowConfig{
		Name:     cfg.Name,
		ID:       cfg.ID,
		Consumer: consumer,
		Services: services,
		Producer: producer,
	})
}

func (h *Host) produceHandler() recovery.ProduceExceptionHandler {
	var opts []recovery.HandlerOption
	if h.recorder != nil {
		opts = append(opts, recovery.WithRestartObserver(h.recorder))
	}
	switch h.config.ProduceHandler {
	case ProduceRestartWorkflow:
		return recovery.NewRestartWorkflowHandler(h, h.logger, opts...)
	case ProduceRestartChannel:
		return recovery.NewRestartChannelHandler(h, h.logger, opts...)
	default:
		return recovery.NullProduceExceptionHandler{Logger: h.logger}
	}
}

func (h *Host) connectionHandler(kind string) recovery.ConnectionErrorHandler {
	if kind == ConnectionNull {
		return recovery.NewNullConnectionErrorHandler(h.logger)
	}
	return recovery.NewCloseOnErrorHandler(h, h.logger)
}

// Inbox returns the inbox consuming for workflow in channel, if it has one.
func (h *Host) Inbox(channel, workflow string) (*connector.Inbox, bool) {
	in, ok := h.inboxes[componentKey(channel, workflow)]
	return in, ok
}

// Capture returns the capture producer of workflow in channel, if it has one.
func (h *Host) Capture(channel, workflow string) (*connector.CaptureProducer, bool) {
	c, ok := h.captures[componentKey(channel, workflow)]
	return c, ok
}

func componentKey(channel, workflow string) string {
	return channel + "/" + workflow
}

// emitters fans a state change out to several emitters.
type emitters []lifecycle.EventEmitter

func (e emitters) OnStateChange(component string, previous, current lifecycle.State, reason string) {
	for _, em := range e {
		em.OnStateChange(component, previous, current, reason)
	}
}
