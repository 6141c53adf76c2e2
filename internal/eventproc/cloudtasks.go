package eventproc

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	cloudtasks "cloud.google.com/go/cloudtasks/apiv2"
	taskspb "cloud.google.com/go/cloudtasks/apiv2/cloudtaskspb"
)

// CloudTasksEventProc schedules handler-callback lane work as HTTP-targeted
// Cloud Tasks. The internal and rpc-completion lanes run in-process: routing
// them through a network round trip would violate the same-session
// serialization invariant those two lanes exist to preserve.
//
// As with PubSubEventProc, a closure can't travel inside an HTTP task body,
// so only a ticket ID is enqueued; CallbackHandler executes the matching
// closure when Cloud Tasks delivers the push request back to CallbackURL.
type CloudTasksEventProc struct {
	internal lane
	rpc      lane

	client      *cloudtasks.Client
	queuePath   string
	callbackURL string
	logger      *slog.Logger

	mu      sync.Mutex
	tickets map[string]func()
	next    atomic.Uint64
}

// NewCloudTasksEventProc enqueues handler-callback work onto
// projects/projectID/locations/locationID/queues/queueID. callbackURL is the
// publicly reachable address of a handler registered with
// http.Handle(path, proc.CallbackHandler()).
func NewCloudTasksEventProc(ctx context.Context, projectID, locationID, queueID, callbackURL string) (*CloudTasksEventProc, error) {
	client, err := cloudtasks.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("cloudtasks.NewClient: %w", err)
	}

	p := &CloudTasksEventProc{
		client:      client,
		queuePath:   fmt.Sprintf("projects/%s/locations/%s/queues/%s", projectID, locationID, queueID),
		callbackURL: callbackURL,
		logger:      slog.Default(),
		tickets:     make(map[string]func()),
	}
	p.internal.start()
	p.rpc.start()
	return p, nil
}

func (p *CloudTasksEventProc) PostInternalMessage(fn func()) { p.internal.post(fn) }
func (p *CloudTasksEventProc) PostRPCCompletion(fn func())   { p.rpc.post(fn) }

// PostHandlerCallback enqueues a Cloud Task that, once delivered, causes
// CallbackHandler to run fn. Enqueue failures fall back to running fn
// in-process immediately, so a handler callback is never silently dropped.
func (p *CloudTasksEventProc) PostHandlerCallback(fn func()) {
	id := fmt.Sprintf("t-%d", p.next.Add(1))

	p.mu.Lock()
	p.tickets[id] = fn
	p.mu.Unlock()

	req := &taskspb.CreateTaskRequest{
		Parent: p.queuePath,
		Task: &taskspb.Task{
			MessageType: &taskspb.Task_HttpRequest{
				HttpRequest: &taskspb.HttpRequest{
					HttpMethod: taskspb.HttpMethod_POST,
					Url:        p.callbackURL,
					Headers:    map[string]string{"Content-Type": "text/plain"},
					Body:       []byte(id),
				},
			},
		},
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if _, err := p.client.CreateTask(ctx, req); err != nil {
			p.logger.Error("cloud task enqueue failed, running inline", "ticket", id, "err", err)
			p.takeTicket(id)
			fn()
		}
	}()
}

func (p *CloudTasksEventProc) takeTicket(id string) (func(), bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn, ok := p.tickets[id]
	delete(p.tickets, id)
	return fn, ok
}

// CallbackHandler returns the http.Handler to register at callbackURL. Cloud
// Tasks retries on any non-2xx response, so an unknown or already-consumed
// ticket is reported as a client error rather than retried forever.
func (p *CloudTasksEventProc) CallbackHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "read body", http.StatusBadRequest)
			return
		}

		fn, ok := p.takeTicket(string(body))
		if !ok {
			http.Error(w, "unknown ticket", http.StatusGone)
			return
		}
		fn()
		w.WriteHeader(http.StatusOK)
	})
}

// Close stops the in-process lanes and closes the underlying client. Tasks
// already enqueued with Cloud Tasks will still be delivered and return 410
// Gone once the ticket map no longer has their closure.
func (p *CloudTasksEventProc) Close() error {
	p.internal.close()
	p.rpc.close()
	return p.client.Close()
}
