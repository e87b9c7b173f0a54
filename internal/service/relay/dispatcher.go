package relay

import (
	"context"
	"errors"
	"time"

	"zax_relay/internal/channel"
	"zax_relay/internal/model"
	"zax_relay/internal/protocol/command"
	"zax_relay/internal/protocol/envelope"
	"zax_relay/internal/repository/mailbox"
	"zax_relay/internal/repository/sessionkey"
	"zax_relay/internal/utils/log"
	"zax_relay/internal/zaxerr"

	"go.uber.org/zap"
)

// DefaultMaxItems caps a single download.
const DefaultMaxItems = 100

// stage is the last step a request completed.
type stage uint8

const (
	stageReceived stage = iota
	stageParsed
	stageKeysLoaded
	stageDecrypted
	stageValidated
	stageDispatched
	stageResponseReady
)

func (s stage) String() string {
	switch s {
	case stageReceived:
		return "received"
	case stageParsed:
		return "parsed"
	case stageKeysLoaded:
		return "keys_loaded"
	case stageDecrypted:
		return "decrypted"
	case stageValidated:
		return "validated"
	case stageDispatched:
		return "dispatched"
	default:
		return "response_ready"
	}
}

type (
	Dispatcher struct {
		sessionKeys sessionkey.Store
		mailboxes   mailbox.Store
		channel     *channel.Channel
		maxItems    int
		now         func() time.Time
	}

	Option func(*Dispatcher)

	// Reply is what the transport writes back. A nil Body means an empty
	// success response.
	Reply struct {
		Command command.Name
		Body    []byte
	}

	// exchange is the per-request state; nothing survives the request.
	exchange struct {
		stage   stage
		request *envelope.Request
		keys    *model.SessionKeys
		cmd     command.Command
		// rspNonce seals the reply and is recorded on uploaded messages.
		rspNonce model.Nonce
	}
)

func WithMaxItems(n int) Option {
	return func(d *Dispatcher) {
		d.maxItems = n
	}
}

func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		d.now = now
	}
}

func NewDispatcher(sessionKeys sessionkey.Store, mailboxes mailbox.Store, ch *channel.Channel, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		sessionKeys: sessionKeys,
		mailboxes:   mailboxes,
		channel:     ch,
		maxItems:    DefaultMaxItems,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Process runs one command from raw request body to sealed reply. Any error
// is a *zaxerr.Error; the details are logged here and must not reach the caller.
func (d *Dispatcher) Process(ctx context.Context, body []byte) (*Reply, error) {
	ex := &exchange{stage: stageReceived}

	reply, err := d.process(ctx, ex, body)
	if err != nil {
		var zerr *zaxerr.Error
		if !errors.As(err, &zerr) {
			err = zaxerr.Wrap(zaxerr.Unexpected, "dispatch", err)
		}
		fields := []zap.Field{
			zap.Stringer("kind", zaxerr.KindOf(err)),
			zap.Stringer("stage", ex.stage),
			zap.ByteString("body", body),
			zap.Error(err),
		}
		if ex.request != nil {
			fields = append(fields, zap.Stringer("hpk", ex.request.HPK))
		}
		log.Warn("Process command aborted", fields...)
		return nil, err
	}
	return reply, nil
}

func (d *Dispatcher) process(ctx context.Context, ex *exchange, body []byte) (*Reply, error) {
	var err error

	ex.request, err = envelope.ParseRequest(body)
	if err != nil {
		return nil, err
	}
	ex.stage = stageParsed

	ex.keys, err = d.sessionKeys.Load(ctx, ex.request.HPK)
	if err != nil {
		return nil, err
	}
	ex.stage = stageKeysLoaded

	plain, err := d.channel.Open(ex.keys, ex.request.Nonce, ex.request.Ciphertext)
	if err != nil {
		return nil, err
	}
	ex.stage = stageDecrypted

	ex.cmd, err = command.Parse(plain)
	if err != nil {
		return nil, err
	}
	ex.stage = stageValidated

	ex.rspNonce, err = d.channel.GenerateNonce()
	if err != nil {
		return nil, err
	}

	result, err := d.dispatch(ctx, ex)
	if err != nil {
		return nil, err
	}
	ex.stage = stageDispatched

	reply := &Reply{Command: ex.cmd.Name()}
	if result != nil {
		ct, err := d.channel.Encrypt(ex.keys, ex.rspNonce, result)
		if err != nil {
			return nil, err
		}
		reply.Body = envelope.EncodeResponse(ex.rspNonce, ct)
	}
	ex.stage = stageResponseReady

	log.Debug("command processed",
		zap.String("cmd", string(reply.Command)),
		zap.Stringer("hpk", ex.request.HPK),
	)
	return reply, nil
}

// dispatch runs the mailbox operation and returns the value to seal, or nil
// for commands answered with an empty body.
func (d *Dispatcher) dispatch(ctx context.Context, ex *exchange) (any, error) {
	caller := ex.request.HPK

	switch cmd := ex.cmd.(type) {
	case command.Upload:
		msg := &model.StoredMessage{
			From:  caller,
			Nonce: ex.rspNonce,
			Time:  d.now().Unix(),
			Data:  cmd.Payload,
		}
		if err := d.mailboxes.Append(ctx, cmd.To, msg); err != nil {
			return nil, err
		}
		log.Info("message uploaded",
			zap.Stringer("from", caller),
			zap.Stringer("to", cmd.To),
			zap.Int64("id", msg.ID),
		)
		return nil, nil

	case command.Count:
		n, err := d.mailboxes.Count(ctx, caller)
		if err != nil {
			return nil, err
		}
		return model.CountResponse{Count: n}, nil

	case command.Download:
		messages, err := d.mailboxes.ReadRange(ctx, caller, cmd.Start, d.maxItems)
		if err != nil {
			return nil, err
		}
		views := make([]model.MessageView, 0, len(messages))
		for i := range messages {
			views = append(views, messages[i].View())
		}
		return views, nil

	case command.Delete:
		if err := d.mailboxes.Delete(ctx, caller, cmd.IDs...); err != nil {
			return nil, err
		}
		return nil, nil
	}

	return nil, zaxerr.New(zaxerr.UnknownCommand, "dispatch", "unhandled command %T", ex.cmd)
}
