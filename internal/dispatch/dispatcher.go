package dispatch

import (
	"encoding/json"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pushtray/pushtray/internal/domain"
)

// Sink receives validated, normalized drafts. Satisfied by the store.
type Sink interface {
	Add(domain.Draft) (string, error)
}

// Drop reasons reported through Hooks.OnDropped.
const (
	DropMalformed = "malformed"
	DropInvalid   = "invalid"
	DropThrottled = "throttled"
	DropRejected  = "rejected"
)

// Hooks carries the metric callback functions injected by main.
// Nil fields are replaced with no-ops.
type Hooks struct {
	OnData    func()
	OnControl func(frameType string)
	OnDropped func(reason string)
	OnAck     func(authenticated bool)
}

func (h *Hooks) fillNoops() {
	if h.OnData == nil {
		h.OnData = func() {}
	}
	if h.OnControl == nil {
		h.OnControl = func(string) {}
	}
	if h.OnDropped == nil {
		h.OnDropped = func(string) {}
	}
	if h.OnAck == nil {
		h.OnAck = func(bool) {}
	}
}

// Dispatcher turns raw inbound frames into zero or more Sink.Add calls
// and nothing else. Control frames (pong, connection_ack) are consumed;
// everything else is a data message. Malformed or invalid candidates are
// dropped silently; no failure here ever propagates to the caller.
//
// The only state held across frames is the authenticated flag carried on
// the most recent connection_ack, kept for diagnostics.
type Dispatcher struct {
	sink    Sink
	limiter *rate.Limiter
	logger  *zap.Logger
	hooks   Hooks

	acked  atomic.Bool
	authed atomic.Bool
}

// New constructs a dispatcher. limit 0 disables the flood guard;
// otherwise data messages beyond limit/burst are dropped, not queued.
func New(sink Sink, limit rate.Limit, burst int, logger *zap.Logger, hooks Hooks) *Dispatcher {
	hooks.fillNoops()
	d := &Dispatcher{
		sink:   sink,
		logger: logger,
		hooks:  hooks,
	}
	if limit > 0 {
		d.limiter = rate.NewLimiter(limit, burst)
	}
	return d
}

// HandleFrame processes one raw text frame. A frame that does not parse
// as JSON is dropped whole; within a parsed array each element is an
// independent candidate, processed in order, so one bad element never
// sinks its neighbors.
func (d *Dispatcher) HandleFrame(data []byte) {
	candidates, err := domain.SplitPayload(data)
	if err != nil {
		d.logger.Debug("dropping malformed frame", zap.Error(err), zap.Int("bytes", len(data)))
		d.hooks.OnDropped(DropMalformed)
		return
	}
	for _, raw := range candidates {
		d.dispatch(raw)
	}
}

// Authenticated reports the flag carried on the most recent
// connection_ack, false before any ack has been seen.
func (d *Dispatcher) Authenticated() bool {
	return d.authed.Load()
}

func (d *Dispatcher) dispatch(raw json.RawMessage) {
	var ctrl domain.ControlFrame
	if err := json.Unmarshal(raw, &ctrl); err != nil {
		d.logger.Debug("dropping undecodable candidate", zap.Error(err))
		d.hooks.OnDropped(DropMalformed)
		return
	}

	switch ctrl.Type {
	case domain.FrameTypePong:
		d.hooks.OnControl(domain.FrameTypePong)
		return
	case domain.FrameTypeConnectionAck:
		first := !d.acked.Swap(true)
		prev := d.authed.Swap(ctrl.Authenticated)
		if first || prev != ctrl.Authenticated {
			d.logger.Info("push channel acknowledged", zap.Bool("authenticated", ctrl.Authenticated))
		}
		d.hooks.OnControl(domain.FrameTypeConnectionAck)
		d.hooks.OnAck(ctrl.Authenticated)
		return
	}

	if d.limiter != nil && !d.limiter.Allow() {
		d.logger.Warn("flood guard dropped data message")
		d.hooks.OnDropped(DropThrottled)
		return
	}

	var draft domain.Draft
	if err := json.Unmarshal(raw, &draft); err != nil {
		d.logger.Debug("dropping undecodable data message", zap.Error(err))
		d.hooks.OnDropped(DropMalformed)
		return
	}
	if draft.Message == "" || len(draft.Message) > domain.MaxMessageLen {
		d.logger.Debug("dropping data message without usable message field")
		d.hooks.OnDropped(DropInvalid)
		return
	}
	if draft.Kind == "" {
		draft.Kind = domain.KindInfo
	} else if !draft.Kind.IsValid() {
		d.logger.Debug("coercing unknown kind to info", zap.String("kind", string(draft.Kind)))
		draft.Kind = domain.KindInfo
	}
	if draft.Duration == nil {
		dur := domain.DefaultDurationMillis
		draft.Duration = &dur
	}

	id, err := d.sink.Add(draft)
	if err != nil {
		d.logger.Warn("store rejected data message", zap.Error(err))
		d.hooks.OnDropped(DropRejected)
		return
	}
	d.hooks.OnData()
	d.logger.Debug("notification dispatched", zap.String("id", id), zap.String("kind", string(draft.Kind)))
}
