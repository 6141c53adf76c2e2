package eventproc

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"cloud.google.com/go/pubsub"
)

// PubSubEventProc routes handler-callback and rpc-completion lane work
// through separate Cloud Pub/Sub topics, each with message ordering keyed
// per session, so dispatch and call completion stay ordered even when
// delivered back to a different process instance than the one that posted
// them. The internal lane runs in-process: there's no cross-process
// durability requirement for a session's own receive-cycle bookkeeping.
//
// Closures can't be marshaled onto a Pub/Sub message, so only a ticket is
// published per lane; the closure itself lives in a local map and runs when
// the matching message comes back from that lane's subscription. This buys
// ordering and at-least-once redelivery within a process's lifetime, not
// durability across a restart — the ticket map itself is in-memory.
type PubSubEventProc struct {
	internal lane

	client         *pubsub.Client
	handlerLane    pubsubLane
	completionLane pubsubLane

	orderingKey string
	logger      *slog.Logger
	cancel      context.CancelFunc
}

// pubsubLane is one topic/subscription pair carrying tickets for a single
// EventProc lane.
type pubsubLane struct {
	topic *pubsub.Topic
	sub   *pubsub.Subscription

	mu      sync.Mutex
	tickets map[string]func()
	next    atomic.Uint64
	prefix  string
}

func newPubSubLane(ctx context.Context, client *pubsub.Client, topicID, subID, prefix string) (pubsubLane, error) {
	l := pubsubLane{tickets: make(map[string]func()), prefix: prefix}

	topic := client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		return l, fmt.Errorf("topic.Exists(%s): %w", topicID, err)
	}
	if !exists {
		topic, err = client.CreateTopic(ctx, topicID)
		if err != nil {
			return l, fmt.Errorf("CreateTopic(%s): %w", topicID, err)
		}
	}
	topic.EnableMessageOrdering = true
	l.topic = topic

	sub := client.Subscription(subID)
	subExists, err := sub.Exists(ctx)
	if err != nil {
		return l, fmt.Errorf("subscription.Exists(%s): %w", subID, err)
	}
	if !subExists {
		sub, err = client.CreateSubscription(ctx, subID, pubsub.SubscriptionConfig{
			Topic:                 topic,
			EnableMessageOrdering: true,
		})
		if err != nil {
			return l, fmt.Errorf("CreateSubscription(%s): %w", subID, err)
		}
	}
	l.sub = sub

	return l, nil
}

func (l *pubsubLane) post(orderingKey string, logger *slog.Logger, fn func()) {
	id := fmt.Sprintf("%s-%s-%d", l.prefix, orderingKey, l.next.Add(1))

	l.mu.Lock()
	l.tickets[id] = fn
	l.mu.Unlock()

	msg := &pubsub.Message{
		Data:        []byte(id),
		OrderingKey: orderingKey,
	}
	result := l.topic.Publish(context.Background(), msg)
	go func() {
		if _, err := result.Get(context.Background()); err != nil {
			logger.Error("pubsub publish failed", "lane", l.prefix, "ticket", id, "err", err)
		}
	}()
}

func (l *pubsubLane) receiveLoop(ctx context.Context, logger *slog.Logger) {
	err := l.sub.Receive(ctx, func(_ context.Context, msg *pubsub.Message) {
		id := string(msg.Data)

		l.mu.Lock()
		fn, ok := l.tickets[id]
		delete(l.tickets, id)
		l.mu.Unlock()

		if ok {
			fn()
		}
		msg.Ack()
	})
	if err != nil && ctx.Err() == nil {
		logger.Error("pubsub receive loop exited", "lane", l.prefix, "err", err)
	}
}

// PubSubTopics names the two topic/subscription pairs (four IDs) a
// PubSubEventProc needs for its two durable lanes.
type PubSubTopics struct {
	HandlerTopic, HandlerSub       string
	CompletionTopic, CompletionSub string
}

// NewPubSubEventProc creates (or attaches to) the topics/subscriptions named
// in topics under projectID, and starts background receive loops for both
// lanes. orderingKey scopes FIFO delivery to one session; callers typically
// pass the remote peer's session ID.
func NewPubSubEventProc(ctx context.Context, projectID string, topics PubSubTopics, orderingKey string) (*PubSubEventProc, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub.NewClient: %w", err)
	}

	handlerLane, err := newPubSubLane(ctx, client, topics.HandlerTopic, topics.HandlerSub, "handler")
	if err != nil {
		client.Close()
		return nil, err
	}
	completionLane, err := newPubSubLane(ctx, client, topics.CompletionTopic, topics.CompletionSub, "completion")
	if err != nil {
		client.Close()
		return nil, err
	}

	recvCtx, cancel := context.WithCancel(context.Background())
	p := &PubSubEventProc{
		client:         client,
		handlerLane:    handlerLane,
		completionLane: completionLane,
		orderingKey:    orderingKey,
		logger:         slog.Default(),
		cancel:         cancel,
	}
	p.internal.start()

	go p.handlerLane.receiveLoop(recvCtx, p.logger)
	go p.completionLane.receiveLoop(recvCtx, p.logger)
	return p, nil
}

func (p *PubSubEventProc) PostInternalMessage(fn func()) { p.internal.post(fn) }

// PostHandlerCallback publishes a ticket on the handler-callback topic; fn
// itself runs later, on that lane's receive loop, once the message is
// delivered back.
func (p *PubSubEventProc) PostHandlerCallback(fn func()) {
	p.handlerLane.post(p.orderingKey, p.logger, fn)
}

// PostRPCCompletion publishes a ticket on the rpc-completion topic, same
// shape as PostHandlerCallback but kept on its own lane so a burst of
// inbound dispatch can never delay an outbound call's completion.
func (p *PubSubEventProc) PostRPCCompletion(fn func()) {
	p.completionLane.post(p.orderingKey, p.logger, fn)
}

// Close stops both receive loops and the in-process internal lane, and
// closes the underlying client. Tickets still pending delivery are dropped.
func (p *PubSubEventProc) Close() error {
	p.cancel()
	p.internal.close()
	return p.client.Close()
}
