package router

import (
	"context"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/ereojs/ereo/pkg/codec"
	"github.com/ereojs/ereo/pkg/common"
)

// Conn is the transport-level view of a WebSocket connection. Writers
// must be safe for concurrent use; the gorilla adapter serializes writes
// with a mutex.
type Conn interface {
	// WriteFrame emits one server frame to the peer.
	WriteFrame(frame *codec.ServerFrame) error

	// Request returns the original upgrade request, or nil when the
	// transport did not preserve it.
	Request() *http.Request
}

// SubscriptionEngine drives the per-connection subscription protocol.
// Hosts either use the gorilla adapter (Upgrade) or wire the
// Open/Message/Close triple of the returned Session into their own
// transport.
type SubscriptionEngine struct {
	router     *Router
	logger     *zap.Logger
	sinkBuffer int
}

// NewSubscriptionEngine creates an engine over the router's route tree
// and pipeline configuration.
func NewSubscriptionEngine(r *Router) *SubscriptionEngine {
	return &SubscriptionEngine{
		router:     r,
		logger:     r.logger.Named("ws"),
		sinkBuffer: 16,
	}
}

// Session is the state machine for one connection. The subscription
// table is owned exclusively by this session; ids are unique within the
// connection, never globally.
type Session struct {
	engine *SubscriptionEngine
	conn   Conn

	mu   sync.Mutex
	subs map[string]*subEntry

	base   context.Context
	cancel context.CancelFunc

	// wg tracks subscription pump tasks so Wait can observe drain in
	// tests and during shutdown.
	wg sync.WaitGroup
}

// Open initializes a session for a newly accepted connection.
func (e *SubscriptionEngine) Open(conn Conn) *Session {
	base, cancel := context.WithCancel(context.Background())
	return &Session{
		engine: e,
		conn:   conn,
		subs:   make(map[string]*subEntry),
		base:   base,
		cancel: cancel,
	}
}

// Message processes one inbound frame. Malformed frames produce a
// PARSE_ERROR addressed to an empty id; the protocol tolerates an error
// with no matching subscription.
func (s *Session) Message(data []byte) {
	frame, err := codec.DecodeClientFrame(data)
	if err != nil {
		s.write(codec.ErrorFrame("", common.NewError(common.CodeParseError, "malformed frame")))
		return
	}

	switch frame.Type {
	case codec.FramePing:
		// Heartbeats never touch subscription bookkeeping.
		s.write(codec.PongFrame())
	case codec.FrameUnsubscribe:
		s.unsubscribe(frame.ID)
	case codec.FrameSubscribe:
		s.subscribe(frame)
	}
}

// Close cancels every outstanding subscription and clears the table.
func (s *Session) Close() {
	s.mu.Lock()
	for id, entry := range s.subs {
		entry.cancel()
		delete(s.subs, id)
	}
	s.mu.Unlock()
	s.cancel()
}

// Wait blocks until all subscription tasks have drained. Cancellation
// is cooperative, so a stream handler that never yields between values
// can delay this.
func (s *Session) Wait() {
	s.wg.Wait()
}

// ActiveSubscriptions returns the ids currently registered.
func (s *Session) ActiveSubscriptions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	return ids
}

// unsubscribe cancels and removes the id immediately. It is idempotent:
// unknown ids are ignored.
func (s *Session) unsubscribe(id string) {
	s.mu.Lock()
	entry, ok := s.subs[id]
	if ok {
		delete(s.subs, id)
	}
	s.mu.Unlock()
	if ok {
		entry.cancel()
	}
}

// subscribe resolves, validates, registers, and launches one
// subscription. The duplicate check reserves the id before any slow work
// so two racing subscribes under one id cannot both win; the loser is
// rejected and the winner keeps running.
func (s *Session) subscribe(frame *codec.ClientFrame) {
	if frame.ID == "" {
		s.write(codec.ErrorFrame("", common.NewError(common.CodeBadRequest, "missing subscription id")))
		return
	}

	subCtx, cancel := context.WithCancel(s.base)
	entry := &subEntry{cancel: cancel}
	s.mu.Lock()
	if _, exists := s.subs[frame.ID]; exists {
		s.mu.Unlock()
		cancel()
		s.write(codec.ErrorFrame(frame.ID, common.NewError(common.CodeDuplicateID, "subscription id already active")))
		return
	}
	s.subs[frame.ID] = entry
	s.mu.Unlock()

	proc, callCtx, input, rpcErr := s.prepare(frame)
	if rpcErr != nil {
		s.remove(frame.ID, entry)
		cancel()
		s.write(codec.ErrorFrame(frame.ID, rpcErr))
		return
	}

	s.start(frame.ID, entry, subCtx, proc, callCtx, input)
}

// prepare resolves the leaf and runs the pipeline and validation,
// mirroring HTTP dispatch semantics.
func (s *Session) prepare(frame *codec.ClientFrame) (*Procedure, *common.Context, any, *common.Error) {
	proc, ok := Resolve(s.engine.router.routes, SplitPath(frame.Path))
	if !ok {
		return nil, nil, nil, common.NewError(common.CodeNotFound, "no procedure at path")
	}
	if proc.kind != KindSubscription {
		return nil, nil, nil, common.Errorf(common.CodeMethodMismatch,
			"procedure is a %s, requested as subscription", proc.kind)
	}

	// Use the original upgrade request when the transport preserved it,
	// else a synthetic placeholder so middleware has a request to read.
	req := s.conn.Request()
	if req == nil {
		req = placeholderRequest()
	}

	callCtx, rpcErr := s.engine.router.runPipeline(req, proc)
	if rpcErr != nil {
		return nil, nil, nil, rpcErr
	}

	input, rpcErr := s.engine.router.validateInput(proc, frame.Input)
	if rpcErr != nil {
		return nil, nil, nil, rpcErr
	}
	return proc, callCtx, input, nil
}

// start launches the producer and pump tasks for one registered
// subscription. The producer runs the stream handler, pushing values
// into the sink's bounded channel; the pump drains the channel into data
// frames in production order. Channel close marks end of values, the
// error channel carries the distinct completion-versus-failure signal.
func (s *Session) start(id string, entry *subEntry, subCtx context.Context, proc *Procedure, callCtx *common.Context, input any) {
	sink := newSink(subCtx, s.engine.sinkBuffer)
	errc := make(chan error, 1)
	s.engine.router.metrics.SubscriptionStarted()

	go func() {
		errc <- s.runStream(proc, subCtx, callCtx, input, sink)
		close(sink.ch)
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.engine.router.metrics.SubscriptionEnded()

		for value := range sink.ch {
			if subCtx.Err() != nil {
				break
			}
			s.write(codec.DataFrame(id, value))
		}
		// Drain remaining values if we left the loop early.
		for range sink.ch {
		}

		err := <-errc
		switch {
		case subCtx.Err() != nil:
			// Cancelled by unsubscribe or close; no terminal frame, and
			// the table entry is already gone or about to be cleared.
		case err != nil:
			s.engine.logger.Warn("subscription handler failed",
				zap.String("id", id),
				zap.Error(err),
			)
			s.write(codec.ErrorFrame(id, common.NewError(common.CodeSubscriptionError, "subscription failed")))
		default:
			s.write(codec.CompleteFrame(id))
		}
		s.remove(id, entry)
	}()
}

// runStream executes the stream handler with panic recovery.
func (s *Session) runStream(proc *Procedure, subCtx context.Context, callCtx *common.Context, input any, sink *Sink) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			s.engine.logger.Error("panic recovered in subscription handler",
				zap.Any("panic", rec),
			)
			err = common.NewError(common.CodeInternal, "subscription handler panicked")
		}
	}()
	return proc.stream(subCtx, callCtx, input, sink)
}

// subEntry identifies one registered subscription. Removal compares
// identities so a finished task cannot evict a newer subscription that
// reused its id after an unsubscribe.
type subEntry struct {
	cancel context.CancelFunc
}

// remove drops the id from the table if it still maps to this entry.
func (s *Session) remove(id string, entry *subEntry) {
	s.mu.Lock()
	if current, ok := s.subs[id]; ok && current == entry {
		delete(s.subs, id)
	}
	s.mu.Unlock()
}

func (s *Session) write(frame *codec.ServerFrame) {
	if err := s.conn.WriteFrame(frame); err != nil {
		s.engine.logger.Debug("frame write failed", zap.Error(err))
	}
}

// placeholderRequest synthesizes a request for pipelines on transports
// that did not preserve the upgrade request.
func placeholderRequest() *http.Request {
	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	return req
}

// Sink is the bounded queue a stream handler produces into.
type Sink struct {
	ctx context.Context
	ch  chan any
}

func newSink(ctx context.Context, buffer int) *Sink {
	return &Sink{ctx: ctx, ch: make(chan any, buffer)}
}

// Send pushes one value toward the client. It returns false once the
// subscription is cancelled; handlers should stop producing when it
// does. Values accepted before cancellation may still be discarded
// rather than emitted if cancellation lands first.
func (s *Sink) Send(value any) bool {
	select {
	case <-s.ctx.Done():
		return false
	case s.ch <- value:
		return true
	}
}
