package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"gitlab.com/timkado/api/message-snapper/internal/adapters/config"
	"gitlab.com/timkado/api/message-snapper/internal/adapters/onebot"
	"gitlab.com/timkado/api/message-snapper/internal/application"
	"gitlab.com/timkado/api/message-snapper/internal/domain"
	"gitlab.com/timkado/api/message-snapper/pkg/safego"
)

// Reply headers. A successful reply carries the PNG bytes as its body, a failed
// one a JSON domain.ErrorResponse.
const (
	HeaderStatus      = "Snapper-Status"
	HeaderContentType = "Content-Type"
	StatusOK          = "ok"
)

// SnapshotGenerator is the part of the snapshot service the responder needs.
type SnapshotGenerator interface {
	GenerateSnapshot(ctx context.Context, req domain.SnapshotRequest) ([]byte, error)
}

// SnapshotResponder answers snapshot requests published on a NATS subject.
// Instances share the load through a queue group.
type SnapshotResponder struct {
	nc        *nats.Conn
	logger    domain.Logger
	cfg       config.NATSConfig
	timeout   time.Duration
	generator SnapshotGenerator
	group     *safego.Group
	sub       *nats.Subscription
	closed    chan struct{}
}

// NewSnapshotResponder connects to NATS when nats.enabled is set. A disabled responder
// is returned otherwise, and its Start is a no-op.
func NewSnapshotResponder(ctx context.Context, cfgProvider config.Provider, appLogger domain.Logger, generator SnapshotGenerator) (*SnapshotResponder, func(), error) {
	appCfg := cfgProvider.Get()
	r := &SnapshotResponder{
		logger:    appLogger.With("component", "nats_responder"),
		cfg:       appCfg.NATS,
		timeout:   time.Duration(appCfg.Render.TimeoutSeconds)*time.Second + 10*time.Second,
		generator: generator,
		group:     safego.NewGroup(appLogger),
		closed:    make(chan struct{}),
	}
	if !appCfg.NATS.Enabled {
		return r, func() {}, nil
	}

	appLogger.Info(ctx, "Attempting to connect to NATS server", "url", appCfg.NATS.URL)
	nc, err := nats.Connect(appCfg.NATS.URL,
		nats.Name(fmt.Sprintf("%s-snapshot-responder", appCfg.App.ServiceName)),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
		nats.ErrorHandler(func(c *nats.Conn, s *nats.Subscription, err error) {
			subject := ""
			if s != nil {
				subject = s.Subject
			}
			appLogger.Error(ctx, "NATS error", "subscription", subject, "error", err.Error())
		}),
		nats.ClosedHandler(func(c *nats.Conn) {
			appLogger.Info(ctx, "NATS connection closed")
			close(r.closed)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			appLogger.Info(ctx, "NATS reconnected", "url", c.ConnectedUrl())
		}),
		nats.DisconnectErrHandler(func(c *nats.Conn, err error) {
			appLogger.Warn(ctx, "NATS disconnected", "error", err)
		}),
	)
	if err != nil {
		appLogger.Error(ctx, "Failed to connect to NATS", "url", appCfg.NATS.URL, "error", err.Error())
		return nil, nil, fmt.Errorf("failed to connect to NATS at %s: %w", appCfg.NATS.URL, err)
	}
	r.nc = nc

	cleanup := func() {
		appLogger.Info(context.Background(), "Closing NATS connection...")
		r.Close()
	}
	return r, cleanup, nil
}

// Start queue-subscribes to the snapshot subject. Each request is handled on its own goroutine.
func (r *SnapshotResponder) Start(ctx context.Context) error {
	if r.nc == nil {
		r.logger.Info(ctx, "NATS snapshot responder disabled")
		return nil
	}
	sub, err := r.nc.QueueSubscribe(r.cfg.SnapshotSubject, r.cfg.QueueGroup, func(msg *nats.Msg) {
		r.group.Go(ctx, "nats-snapshot-request", func() { r.handle(ctx, msg) })
	})
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", r.cfg.SnapshotSubject, err)
	}
	r.sub = sub
	r.logger.Info(ctx, "Subscribed to snapshot requests", "subject", r.cfg.SnapshotSubject, "queue_group", r.cfg.QueueGroup)
	return nil
}

// Close drains the subscription and the connection, then waits for in-flight requests.
func (r *SnapshotResponder) Close() {
	if r.nc != nil && !r.nc.IsClosed() {
		if err := r.nc.Drain(); err != nil {
			r.logger.Error(context.Background(), "Error draining NATS connection", "error", err.Error())
			r.nc.Close()
		}
		select {
		case <-r.closed:
		case <-time.After(r.timeout):
			r.logger.Warn(context.Background(), "Timed out waiting for NATS drain")
		}
	}
	r.group.Wait()
}

// Status reports the connection state for readiness checks.
func (r *SnapshotResponder) Status() string {
	if r.nc == nil {
		return "not_configured"
	}
	if r.nc.Status() == nats.CONNECTED {
		return "connected"
	}
	return "disconnected"
}

func (r *SnapshotResponder) handle(ctx context.Context, msg *nats.Msg) {
	if msg.Reply == "" {
		r.logger.Warn(ctx, "Dropping snapshot request without reply subject", "subject", msg.Subject)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := msg.RespondMsg(r.process(ctx, msg.Data)); err != nil {
		r.logger.Error(ctx, "Failed to publish snapshot reply", "reply", msg.Reply, "error", err.Error())
	}
}

// process turns one request body into the reply message.
func (r *SnapshotResponder) process(ctx context.Context, data []byte) *nats.Msg {
	var payload domain.SnapshotRequestPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return errorReply(domain.NewErrorResponse(domain.ErrBadRequest, "Malformed snapshot request", err.Error()))
	}
	req, err := onebot.DecodeSnapshotRequest(payload)
	if err != nil {
		return errorReply(domain.NewErrorResponse(domain.ErrBadRequest, "Invalid snapshot request", err.Error()))
	}

	img, err := r.generator.GenerateSnapshot(ctx, req)
	switch {
	case err == nil:
		reply := nats.NewMsg("")
		reply.Header.Set(HeaderStatus, StatusOK)
		reply.Header.Set(HeaderContentType, "image/png")
		reply.Data = img
		return reply
	case errors.Is(err, application.ErrUnsupportedMessage):
		return errorReply(domain.NewErrorResponse(domain.ErrUnsupportedMessage, "Message has nothing to render", ""))
	case errors.Is(err, application.ErrRenderFailed):
		return errorReply(domain.NewErrorResponse(domain.ErrRenderFailed, "Rendering failed", err.Error()))
	default:
		r.logger.Error(ctx, "Snapshot generation failed", "error", err.Error())
		return errorReply(domain.NewErrorResponse(domain.ErrInternal, "Snapshot generation failed", ""))
	}
}

func errorReply(er domain.ErrorResponse) *nats.Msg {
	reply := nats.NewMsg("")
	reply.Header.Set(HeaderStatus, string(er.Code))
	reply.Header.Set(HeaderContentType, "application/json")
	reply.Data, _ = json.Marshal(er)
	return reply
}
