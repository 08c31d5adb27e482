package server

import (
	"encoding/json"
	"sync"

	"github.com/decred/slog"
)

// delivery is one outbound payload addressed to one or more connections.
type delivery struct {
	conns   []*Conn
	payload []byte
}

// EventProcessor decouples room-level broadcasting from the transport.
// Rooms enqueue deliveries while holding their own mutex; a worker drains
// the queue and hands payloads to each connection's writer. A single worker
// keeps per-connection ordering intact.
type EventProcessor struct {
	queue chan delivery
	log   slog.Logger

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopped  chan struct{}
}

// NewEventProcessor starts the delivery worker with the given queue depth.
func NewEventProcessor(queueSize int, log slog.Logger) *EventProcessor {
	if log == nil {
		log = slog.Disabled
	}
	ep := &EventProcessor{
		queue:   make(chan delivery, queueSize),
		log:     log,
		stopped: make(chan struct{}),
	}
	ep.wg.Add(1)
	go ep.run()
	return ep
}

func (ep *EventProcessor) run() {
	defer ep.wg.Done()
	for {
		select {
		case d := <-ep.queue:
			for _, c := range d.conns {
				c.Send(d.payload)
			}
		case <-ep.stopped:
			// Drain what is already queued before exiting.
			for {
				select {
				case d := <-ep.queue:
					for _, c := range d.conns {
						c.Send(d.payload)
					}
				default:
					return
				}
			}
		}
	}
}

// Publish serializes v once and enqueues it for the given connections. Nil
// connections are skipped. A full queue drops the delivery and logs it;
// blocking here would stall a room mutex holder.
func (ep *EventProcessor) Publish(v any, conns ...*Conn) {
	var live []*Conn
	for _, c := range conns {
		if c != nil {
			live = append(live, c)
		}
	}
	if len(live) == 0 {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		ep.log.Errorf("marshal outbound message: %v", err)
		return
	}
	select {
	case ep.queue <- delivery{conns: live, payload: payload}:
	default:
		ep.log.Warnf("event queue full, dropping delivery to %d conns", len(live))
	}
}

// Stop shuts the worker down after draining queued deliveries.
func (ep *EventProcessor) Stop() {
	ep.stopOnce.Do(func() { close(ep.stopped) })
	ep.wg.Wait()
}
