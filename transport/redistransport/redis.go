// Package redistransport implements transport.Contract over Redis
// pub/sub: send is a PUBLISH on the outbound channel, receive is a
// SUBSCRIBE to the inbound channel. Two independently-deployed peers
// exchange verbs through a shared Redis instance instead of a direct
// socket — the two-primitive transport contract applies unchanged.
package redistransport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-redis/redis/v8"

	"github.com/bfix/gospel/logger"

	"github.com/benbucksch/jpc/transport"
	"github.com/benbucksch/jpc/wireerr"
)

type frame struct {
	CorrID  int64           `json:"corrId"`
	Kind    string          `json:"kind"` // "call" | "reply"
	Method  string          `json:"method,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	ErrKind string          `json:"errKind,omitempty"`
	ErrMsg  string          `json:"errMsg,omitempty"`
}

// Transport is one end of a Redis-pub/sub-connected peer pair. chanOut is
// published to for outbound verbs; chanIn is subscribed to for inbound
// ones — the peer's chanOut must be configured as this side's chanIn and
// vice versa.
type Transport struct {
	rdb     *redis.Client
	chanOut string
	pubsub  *redis.PubSub
	cancel  context.CancelFunc

	handlersMu sync.Mutex
	handlers   map[string]transport.Handler

	pendingMu sync.Mutex
	pending   map[int64]chan frame
	nextCorr  int64
}

// New connects to the Redis instance at addr/db and wires chanOut/chanIn.
func New(ctx context.Context, addr string, db int, chanOut, chanIn string) (*Transport, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redistransport: ping %s: %w", addr, err)
	}
	subCtx, cancel := context.WithCancel(ctx)
	ps := rdb.Subscribe(subCtx, chanIn)
	t := &Transport{
		rdb:      rdb,
		chanOut:  chanOut,
		pubsub:   ps,
		cancel:   cancel,
		handlers: make(map[string]transport.Handler),
		pending:  make(map[int64]chan frame),
	}
	go t.readLoop(subCtx)
	return t, nil
}

// RegisterIncoming implements transport.Contract.
func (t *Transport) RegisterIncoming(method string, handler transport.Handler) {
	t.handlersMu.Lock()
	defer t.handlersMu.Unlock()
	t.handlers[method] = handler
}

// CallRemote implements transport.Contract.
func (t *Transport) CallRemote(ctx context.Context, method string, payload []byte) ([]byte, error) {
	id := atomic.AddInt64(&t.nextCorr, 1)
	replyCh := make(chan frame, 1)
	t.pendingMu.Lock()
	t.pending[id] = replyCh
	t.pendingMu.Unlock()
	defer func() {
		t.pendingMu.Lock()
		delete(t.pending, id)
		t.pendingMu.Unlock()
	}()

	raw, err := json.Marshal(frame{CorrID: id, Kind: "call", Method: method, Payload: payload})
	if err != nil {
		return nil, err
	}
	if err := t.rdb.Publish(ctx, t.chanOut, raw).Err(); err != nil {
		return nil, wireerr.New(wireerr.ConnectionLost, "publish: %s", err)
	}

	select {
	case reply := <-replyCh:
		if reply.ErrKind != "" {
			return nil, &wireerr.Error{Kind: wireerr.Kind(reply.ErrKind), Message: reply.ErrMsg}
		}
		return reply.Payload, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close unsubscribes and closes the Redis client.
func (t *Transport) Close() error {
	t.cancel()
	_ = t.pubsub.Close()
	return t.rdb.Close()
}

func (t *Transport) readLoop(ctx context.Context) {
	ch := t.pubsub.Channel()
	for msg := range ch {
		var f frame
		if err := json.Unmarshal([]byte(msg.Payload), &f); err != nil {
			logger.Printf(logger.WARN, "[redistransport] malformed frame: %s", err)
			continue
		}
		switch f.Kind {
		case "reply":
			t.pendingMu.Lock()
			replyCh, ok := t.pending[f.CorrID]
			t.pendingMu.Unlock()
			if ok {
				replyCh <- f
			}
		case "call":
			go t.dispatch(ctx, f)
		}
	}
}

func (t *Transport) dispatch(ctx context.Context, f frame) {
	t.handlersMu.Lock()
	handler, ok := t.handlers[f.Method]
	t.handlersMu.Unlock()

	reply := frame{CorrID: f.CorrID, Kind: "reply"}
	if !ok {
		reply.ErrKind = string(wireerr.UnknownRemote)
		reply.ErrMsg = fmt.Sprintf("no handler registered for verb %q", f.Method)
	} else if result, err := handler(context.Background(), f.Payload); err != nil {
		if we, ok := err.(*wireerr.Error); ok {
			reply.ErrKind = string(we.Kind)
			reply.ErrMsg = we.Message
		} else {
			reply.ErrKind = string(wireerr.UserException)
			reply.ErrMsg = err.Error()
		}
	} else {
		reply.Payload = result
	}
	raw, err := json.Marshal(reply)
	if err != nil {
		logger.Printf(logger.WARN, "[redistransport] encoding reply failed: %s", err)
		return
	}
	if err := t.rdb.Publish(ctx, t.chanOut, raw).Err(); err != nil {
		logger.Printf(logger.WARN, "[redistransport] publishing reply failed: %s", err)
	}
}
