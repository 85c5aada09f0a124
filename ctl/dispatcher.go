// Package ctl implements CtlQueue (the subject-subscription multiplexer)
// and CtlDispatcher (subject routing, handler dispatch, reply encoding).
// Dispatcher panic recovery follows a defer-ordered recover idiom; routing
// errors use a small set of typed sentinel errors.
package ctl

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/latticehost/hostcore/ctlapi"
	"github.com/latticehost/hostcore/host"
	"github.com/latticehost/hostcore/hostlog"
	"github.com/latticehost/hostcore/latticedata"
	"github.com/latticehost/hostcore/telemetry"
)

var tracer = otel.Tracer("github.com/latticehost/hostcore/ctl")

// Dispatcher routes a delivered subject+payload to the matching Host
// handler method and encodes the reply.
type Dispatcher struct {
	prefix  string
	lattice string
	hostID  string
	h       *host.Host
	log     hostlog.Logger
}

// New builds a Dispatcher bound to host h, routing subjects under
// "{prefix}.v1.{lattice}.".
func New(prefix, lattice, hostID string, h *host.Host, log hostlog.Logger) *Dispatcher {
	if log == nil {
		log = hostlog.Noop()
	}
	return &Dispatcher{prefix: prefix, lattice: lattice, hostID: hostID, h: h, log: hostlog.WithPrefix(log, "dispatcher")}
}

// Result is the outcome of one dispatch: either Reply carries bytes to
// send back (SendReply true), or the handler declined to reply (an
// auction with no bid) and SendReply is false.
type Result struct {
	Reply     []byte
	RawReply  bool // true for config.get/link.get: Reply is the raw value, not a ctlapi.Reply envelope
	SendReply bool
	IsError   bool // true when Reply encodes a ctlapi error envelope
}

// Dispatch routes one delivered message. It never panics across this
// boundary: any handler panic is recovered and converted to a
// protocol-error reply.
func (d *Dispatcher) Dispatch(ctx context.Context, subject string, payload []byte) (result Result) {
	var verb string
	start := time.Now()

	ctx, span := tracer.Start(ctx, "ctl.dispatch",
		trace.WithAttributes(attribute.String("subject", subject)))
	defer span.End()

	// Registered before the recovery defer below so it runs after it:
	// by the time it reads result, the panic-recovery defer has already
	// fixed up result if a handler panicked.
	defer func() {
		status := "success"
		switch {
		case !result.SendReply:
			status = "no_reply"
		case result.IsError:
			status = "error"
		}
		telemetry.RecordDispatch(verb, status, time.Since(start).Seconds())
	}()
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("recovered handler panic", "subject", subject, "panic", r)
			result = d.errorResult(NewPanicError(subject, r))
		}
	}()

	tail, ok := ctlapi.TrimPrefixAndVersion(subject, d.prefix, d.lattice)
	if !ok {
		return d.errorResult(NewUnsupportedSubjectError(subject))
	}
	verb = tail[0]

	switch {
	case matches(tail, "component", "auction"):
		resp, err := d.h.AuctionComponent(ctx, payload)
		if err == host.ErrNoBid {
			return Result{SendReply: false}
		}
		return d.encode(subject, resp, err)

	case matches(tail, "component", "scale"):
		resp, err := d.h.ScaleComponent(ctx, payload)
		return d.encode(subject, resp, err)

	case matches(tail, "component", "update"):
		resp, err := d.h.UpdateComponent(ctx, payload)
		return d.encode(subject, resp, err)

	case matches(tail, "provider", "auction"):
		resp, err := d.h.AuctionProvider(ctx, payload)
		if err == host.ErrNoBid {
			return Result{SendReply: false}
		}
		return d.encode(subject, resp, err)

	case matches(tail, "provider", "start"):
		resp, err := d.h.StartProvider(ctx, payload, uuid.NewString)
		return d.encode(subject, resp, err)

	case matches(tail, "provider", "stop"):
		resp, err := d.h.StopProvider(ctx, payload)
		return d.encode(subject, resp, err)

	case matches(tail, "host", "get"):
		resp, err := d.h.Inventory(ctx, payload)
		return d.encode(subject, resp, err)

	case matches(tail, "host", "ping"):
		resp, err := d.h.Ping(ctx, payload)
		return d.encode(subject, resp, err)

	case matches(tail, "host", "stop"):
		resp, err := d.h.StopHost(ctx, payload)
		return d.encode(subject, resp, err)

	case matches(tail, "claims", "get"):
		resp, err := d.h.ClaimsGet(ctx, payload)
		return d.encode(subject, resp, err)

	case matches(tail, "link", "put"):
		resp, err := d.h.LinkPut(ctx, payload, hashLinkKey)
		return d.encode(subject, resp, err)

	case matches(tail, "link", "del"):
		resp, err := d.h.LinkDel(ctx, payload)
		return d.encode(subject, resp, err)

	case matches(tail, "link", "get"):
		resp, err := d.h.LinkGet(ctx, payload)
		return d.encodeRaw(subject, resp, err)

	case matches(tail, "label", "put"):
		resp, err := d.h.LabelPut(ctx, payload)
		return d.encode(subject, resp, err)

	case matches(tail, "label", "del"):
		resp, err := d.h.LabelDel(ctx, payload)
		return d.encode(subject, resp, err)

	case matches(tail, "registry", "put"):
		resp, err := d.h.RegistriesPut(ctx, payload)
		return d.encode(subject, resp, err)

	case len(tail) >= 2 && tail[0] == "config" && tail[1] == "get":
		value, err := d.h.ConfigGet(ctx, nameOf(tail))
		return d.encodeRawBytes(value, err)

	case len(tail) >= 2 && tail[0] == "config" && tail[1] == "put":
		err := d.h.ConfigPut(ctx, nameOf(tail), payload)
		return d.encode(subject, struct{}{}, err)

	case len(tail) >= 2 && tail[0] == "config" && tail[1] == "del":
		err := d.h.ConfigDelete(ctx, nameOf(tail))
		return d.encode(subject, struct{}{}, err)

	default:
		return d.errorResult(NewUnsupportedSubjectError(subject))
	}
}

// matches reports whether tail's first two tokens are (entity, verb),
// ignoring any trailing host_id token: routing considers up to four path
// segments but only the first two select the handler.
func matches(tail []string, entity, verb string) bool {
	return len(tail) >= 2 && tail[0] == entity && tail[1] == verb
}

// nameOf returns the config name token trailing "config.get"/"config.put"/
// "config.del" in the subject tail.
func nameOf(tail []string) string {
	if len(tail) < 3 {
		return ""
	}
	return tail[2]
}

func (d *Dispatcher) encode(subject string, resp any, err error) Result {
	if err != nil {
		d.log.Warn("handler error", "subject", subject, "error", err)
		return d.errorResult(err)
	}
	data, encErr := ctlapi.OK(resp).Encode()
	if encErr != nil {
		return d.errorResult(NewDecodeError(subject, encErr))
	}
	return Result{Reply: data, SendReply: true}
}

// encodeRaw is used by link.get: success returns the raw JSON-encoded
// value with no envelope wrapping.
func (d *Dispatcher) encodeRaw(subject string, resp any, err error) Result {
	if err != nil {
		return d.errorResult(err)
	}
	data, encErr := json.Marshal(resp)
	if encErr != nil {
		return d.errorResult(NewDecodeError(subject, encErr))
	}
	return Result{Reply: data, RawReply: true, SendReply: true}
}

// encodeRawBytes is used by config.get: success returns the stored bytes
// verbatim with no envelope wrapping.
func (d *Dispatcher) encodeRawBytes(value []byte, err error) Result {
	if err != nil {
		return d.errorResult(err)
	}
	return Result{Reply: value, RawReply: true, SendReply: true}
}

func (d *Dispatcher) errorResult(err error) Result {
	data, _ := ctlapi.Err(err.Error()).Encode()
	return Result{Reply: data, SendReply: true, IsError: true}
}

func hashLinkKey(key latticedata.LinkKey) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(key.SourceID+"|"+key.Name+"|"+key.WitNamespace+"|"+key.WitPackage)).String()
}
