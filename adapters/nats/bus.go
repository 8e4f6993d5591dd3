package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/codewandler/vfs-es/core/es"
)

const (
	DefaultStream        = "VFS_EVENTS"
	DefaultSubjectPrefix = "vfs.events"
)

const (
	hdrEventType     = "x-event-type"
	hdrAggregateType = "x-aggregate-type"
	hdrAggregateID   = "x-aggregate-id"
)

type BusConfig struct {
	Connect       Connector
	Log           *slog.Logger
	StreamName    string
	SubjectPrefix string
	// Durable names the consumer shared by every Subscribe call. Without it
	// each subscription gets an ephemeral consumer that only sees new events.
	Durable string

	// At most one of these is needed; MaxAge defaults to a day.
	MaxAge   time.Duration
	MaxBytes int64
	MaxMsgs  int64
	// Duplicates is the window in which a repeated envelope id is dropped.
	Duplicates time.Duration
}

// Bus is an es.EventBus on a JetStream stream. Each envelope is published to
// <prefix>.<aggregate type>.<aggregate id> with its id as the message id, so
// a retried publish is de-duplicated by the server.
type Bus struct {
	js            jetstream.JetStream
	stream        jetstream.Stream
	closeNc       closeFunc
	log           *slog.Logger
	subjectPrefix string
	durable       string
}

func NewBus(ctx context.Context, cfg BusConfig) (*Bus, error) {
	doConnect := cfg.Connect
	if doConnect == nil {
		doConnect = ConnectDefault()
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	streamName := strings.ToUpper(cfg.StreamName)
	if streamName == "" {
		streamName = DefaultStream
	}
	subjectPrefix := cfg.SubjectPrefix
	if subjectPrefix == "" {
		subjectPrefix = DefaultSubjectPrefix
	}
	if cfg.MaxAge == 0 && cfg.MaxBytes == 0 && cfg.MaxMsgs == 0 {
		cfg.MaxAge = 24 * time.Hour
	}

	nc, closeNc, err := doConnect()
	if err != nil {
		return nil, err
	}
	js, err := jetstream.New(nc)
	if err != nil {
		closeNc()
		return nil, err
	}

	log = log.With(
		slog.String("component", "nats_bus"),
		slog.String("stream", streamName),
		slog.String("subject_prefix", subjectPrefix),
	)

	stream, info, err := ensureStream(ctx, js, jetstream.StreamConfig{
		Name:       streamName,
		Subjects:   []string{subjectPrefix + ".>"},
		Retention:  jetstream.LimitsPolicy,
		MaxAge:     cfg.MaxAge,
		MaxBytes:   nonZero(cfg.MaxBytes),
		MaxMsgs:    nonZero(cfg.MaxMsgs),
		Duplicates: cfg.Duplicates,
	})
	if err != nil {
		closeNc()
		return nil, err
	}
	log.Debug("stream ready", slog.Uint64("msgs", info.State.Msgs), slog.Uint64("last_seq", info.State.LastSeq))

	return &Bus{
		js:            js,
		stream:        stream,
		closeNc:       closeNc,
		log:           log,
		subjectPrefix: subjectPrefix,
		durable:       cfg.Durable,
	}, nil
}

// nonZero maps an unset limit to JetStream's "unlimited".
func nonZero(v int64) int64 {
	if v == 0 {
		return -1
	}
	return v
}

func ensureStream(ctx context.Context, js jetstream.JetStream, cfg jetstream.StreamConfig) (jetstream.Stream, *jetstream.StreamInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*natsgo.DefaultTimeout)
	defer cancel()

	s, err := js.CreateOrUpdateStream(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("stream %s: %w", cfg.Name, err)
	}
	si, err := s.Info(ctx)
	if err != nil {
		return nil, nil, err
	}
	return s, si, nil
}

func (b *Bus) subject(aggType, aggID string) string {
	return b.subjectPrefix + "." + aggType + "." + aggID
}

func (b *Bus) Publish(ctx context.Context, envelopes ...es.Envelope) error {
	for _, env := range envelopes {
		data, err := json.Marshal(env)
		if err != nil {
			return fmt.Errorf("encode envelope %s: %w", env.ID, err)
		}
		msg := natsgo.NewMsg(b.subject(env.AggregateType, env.AggregateID))
		msg.Header.Set(hdrEventType, env.Type)
		msg.Header.Set(hdrAggregateType, env.AggregateType)
		msg.Header.Set(hdrAggregateID, env.AggregateID)
		msg.Data = data

		ack, err := b.js.PublishMsg(ctx, msg, jetstream.WithMsgID(env.ID))
		if err != nil {
			return fmt.Errorf("publish %s to %s: %w", env.Type, msg.Subject, err)
		}
		if ack.Duplicate {
			b.log.Debug("duplicate publish", slog.String("id", env.ID))
		}
	}
	return nil
}

// Subscribe delivers envelopes to handler and acks each one after handler
// returns. Envelope.Seq keeps the store position; the stream sequence is not
// exposed.
func (b *Bus) Subscribe(ctx context.Context, handler func(es.Envelope)) (es.Subscription, error) {
	cfg := jetstream.ConsumerConfig{
		DeliverPolicy:     jetstream.DeliverNewPolicy,
		AckPolicy:         jetstream.AckExplicitPolicy,
		FilterSubject:     b.subjectPrefix + ".>",
		InactiveThreshold: 10 * time.Minute,
	}
	name := b.durable
	if name != "" {
		cfg.Durable = name
		cfg.InactiveThreshold = 0
	} else {
		name = "vfs-" + gonanoid.Must(10)
		cfg.Name = name
	}

	consumer, err := b.stream.CreateOrUpdateConsumer(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("consumer %s: %w", name, err)
	}
	log := b.log.With(slog.String("consumer", name))

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		var env es.Envelope
		if err := json.Unmarshal(msg.Data(), &env); err != nil {
			log.Error("drop undecodable message", slog.String("subject", msg.Subject()), slog.Any("error", err))
			_ = msg.Term()
			return
		}
		handler(env)
		if err := msg.Ack(); err != nil {
			log.Warn("ack failed", slog.Any("error", err))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", name, err)
	}

	sub := &subscription{}
	sub.cancel = func() {
		cc.Drain()
		if b.durable == "" {
			delCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), natsgo.DefaultTimeout)
			defer cancel()
			if err := b.stream.DeleteConsumer(delCtx, name); err != nil {
				log.Warn("delete consumer", slog.Any("error", err))
			}
		}
		log.Debug("unsubscribed")
	}
	context.AfterFunc(ctx, sub.Cancel)

	log.Debug("subscribed")
	return sub, nil
}

func (b *Bus) Close() error {
	b.closeNc()
	return nil
}

type subscription struct {
	once   sync.Once
	cancel func()
}

func (s *subscription) Cancel() { s.once.Do(s.cancel) }

var _ es.EventBus = (*Bus)(nil)
