package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/livebridge/internal/command"
	"github.com/mattjoyce/livebridge/internal/events"
	"github.com/mattjoyce/livebridge/internal/host"
	"github.com/mattjoyce/livebridge/internal/journal"
	"github.com/mattjoyce/livebridge/internal/log"
	"github.com/mattjoyce/livebridge/internal/protocol"
)

//go:generate mockgen -destination=mocks/mock_recorder.go -package=mocks github.com/mattjoyce/livebridge/internal/dispatch Recorder

// Recorder persists dispatch outcomes.
type Recorder interface {
	Record(ctx context.Context, e journal.Entry) error
}

// Publisher fans dispatch outcomes out to observers.
type Publisher interface {
	Publish(eventType string, data any)
}

// Options holds the optional collaborators of a Dispatcher.
type Options struct {
	Journal Recorder
	Events  Publisher
}

// Dispatcher resolves requests against a registry and executes them.
type Dispatcher struct {
	registry *command.Registry
	bridge   *host.Bridge
	journal  Recorder
	events   Publisher
	logger   *slog.Logger
}

// New creates a Dispatcher.
func New(reg *command.Registry, bridge *host.Bridge, opts Options) *Dispatcher {
	return &Dispatcher{
		registry: reg,
		bridge:   bridge,
		journal:  opts.Journal,
		events:   opts.Events,
		logger:   log.WithComponent("dispatch"),
	}
}

// Registry returns the command table the dispatcher resolves against.
func (d *Dispatcher) Registry() *command.Registry {
	return d.registry
}

// HandleFrame decodes one request frame and dispatches it. A frame that is
// not a valid request yields an error envelope and a non-nil error; the
// caller should send the envelope and then drop the connection.
func (d *Dispatcher) HandleFrame(ctx context.Context, frame []byte) (*protocol.Response, error) {
	req, err := protocol.DecodeRequest(frame)
	if err != nil {
		d.logger.Warn("rejecting malformed request", "error", err, "remote", remoteFrom(ctx))
		return protocol.Failure(protocol.MessageOf(err)), err
	}
	return d.Dispatch(ctx, req), nil
}

// Dispatch executes req and always returns a valid envelope.
func (d *Dispatcher) Dispatch(ctx context.Context, req *protocol.Request) *protocol.Response {
	id := uuid.NewString()
	started := time.Now()
	logger := log.WithCommand(req.Type, id).With("component", "dispatch")

	entry, ok := d.registry.Lookup(req.Type)
	if !ok {
		err := &protocol.Error{
			Kind:    protocol.KindUnknownCommand,
			Command: req.Type,
			Message: protocol.UnknownCommandPrefix + req.Type,
		}
		logger.Warn("unknown command")
		resp := protocol.Failure(err.Message)
		d.complete(ctx, id, req.Type, "", started, err)
		return resp
	}

	logger.Debug("dispatching", "class", entry.Class.String(), "params", req.Params)

	op := entry.Bind(req.Params)
	var (
		value any
		err   error
	)
	if entry.Class.Bridged() {
		value, err = d.bridge.Call(ctx, entry.Name, entry.Class, op)
	} else {
		value, err = d.bridge.Inline(ctx, entry.Name, op)
	}

	var resp *protocol.Response
	if err == nil {
		resp, err = protocol.Success(value)
	}
	if err != nil {
		resp = protocol.Failure(protocol.MessageOf(err))
	}

	d.complete(ctx, id, entry.Name, entry.Class.String(), started, err)
	return resp
}

// complete logs, journals and publishes one outcome.
func (d *Dispatcher) complete(ctx context.Context, id, name, class string, started time.Time, err error) {
	duration := time.Since(started)
	status := statusOf(err)
	remote := remoteFrom(ctx)

	var message string
	if err != nil {
		message = protocol.MessageOf(err)
		d.logger.Warn("command failed",
			"command", name, "dispatch_id", id, "class", class,
			"status", string(status), "error", err, "duration_ms", duration.Milliseconds())
	} else {
		d.logger.Info("command completed",
			"command", name, "dispatch_id", id, "class", class,
			"duration_ms", duration.Milliseconds())
	}

	if d.journal != nil {
		// The dispatch context may already be cancelled; the record should land anyway.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		rerr := d.journal.Record(rctx, journal.Entry{
			ID:        id,
			Command:   name,
			Class:     class,
			Status:    status,
			Message:   message,
			Duration:  duration,
			Remote:    remote,
			StartedAt: started,
		})
		cancel()
		if rerr != nil {
			d.logger.Error("failed to journal command", "command", name, "dispatch_id", id, "error", rerr)
		}
	}

	if d.events != nil {
		d.events.Publish(events.TypeCommandCompleted, events.CommandCompleted{
			DispatchID: id,
			Command:    name,
			Class:      class,
			Status:     string(status),
			Message:    message,
			DurationMS: duration.Milliseconds(),
			Remote:     remote,
		})
	}
}

func statusOf(err error) journal.Status {
	switch {
	case err == nil:
		return journal.StatusSucceeded
	case protocol.KindOf(err) == protocol.KindUnknownCommand:
		return journal.StatusUnknown
	case protocol.KindOf(err) == protocol.KindBridgeTimeout:
		return journal.StatusTimedOut
	default:
		return journal.StatusFailed
	}
}

type remoteKey struct{}

// WithRemote tags ctx with the peer address of the connection being served.
func WithRemote(ctx context.Context, remote string) context.Context {
	return context.WithValue(ctx, remoteKey{}, remote)
}

func remoteFrom(ctx context.Context) string {
	remote, _ := ctx.Value(remoteKey{}).(string)
	return remote
}
