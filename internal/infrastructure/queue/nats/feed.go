package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kbretrieval/knowledge-service/internal/core/domain"
	"github.com/kbretrieval/knowledge-service/internal/infrastructure/resilience"
)

const (
	consumerGroup = "knowledge-ingest"
	publishBatch  = 200
)

// Feed carries document batches over a NATS subject. Every message body is a
// JSON array of {text, source} objects.
type Feed struct {
	conn     *nats.Conn
	subject  string
	executor *resilience.Executor
}

type Options struct {
	Name                 string
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
}

func New(url, subject string) (*Feed, error) {
	return NewWithOptions(url, subject, Options{})
}

func NewWithOptions(url, subject string, options Options) (*Feed, error) {
	name := options.Name
	if name == "" {
		name = "knowledge-service"
	}
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}

	conn, err := nats.Connect(
		url,
		nats.Name(name),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Feed{
		conn:     conn,
		subject:  subject,
		executor: options.ResilienceExecutor,
	}, nil
}

func (f *Feed) Close() {
	if f.conn != nil {
		f.conn.Close()
	}
}

// PublishDocuments splits docs into messages that fit the server's payload
// limit and publishes them in order.
func (f *Feed) PublishDocuments(ctx context.Context, docs []domain.Document) error {
	if len(docs) == 0 {
		return nil
	}
	payloads, err := encodeBatches(docs, publishBatch, f.conn.MaxPayload())
	if err != nil {
		return err
	}
	for _, payload := range payloads {
		call := func(_ context.Context) error {
			if err := f.conn.Publish(f.subject, payload); err != nil {
				return fmt.Errorf("nats publish: %w", err)
			}
			return nil
		}
		if err := f.executor.Execute(ctx, "nats.publish", call, classifyNATSError); err != nil {
			return wrapFeedError("nats publish", err)
		}
	}
	if err := f.conn.FlushTimeout(5 * time.Second); err != nil {
		return wrapFeedError("nats flush", err)
	}
	return nil
}

// SubscribeDocuments delivers decoded batches to handler until ctx ends,
// then drains the subscription. Members of the consumer group share the
// subject's messages.
func (f *Feed) SubscribeDocuments(ctx context.Context, handler func(context.Context, []domain.Document) error) error {
	sub, err := f.conn.QueueSubscribe(f.subject, consumerGroup, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}

		docs, err := decodeBatch(msg.Data)
		if err != nil {
			slog.Error("feed_message_invalid", "subject", msg.Subject, "bytes", len(msg.Data), "error", err)
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, docs); err != nil {
			slog.Error("feed_handler_failed", "subject", msg.Subject, "documents", len(docs), "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := f.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := f.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

// encodeBatches marshals docs in chunks of at most size documents, halving a
// chunk until it fits maxPayload. A single document larger than maxPayload is
// an error.
func encodeBatches(docs []domain.Document, size int, maxPayload int64) ([][]byte, error) {
	if size <= 0 {
		size = publishBatch
	}
	var out [][]byte
	for start := 0; start < len(docs); {
		n := min(size, len(docs)-start)
		for {
			payload, err := json.Marshal(docs[start : start+n])
			if err != nil {
				return nil, fmt.Errorf("encode document batch: %w", err)
			}
			if maxPayload <= 0 || int64(len(payload)) <= maxPayload {
				out = append(out, payload)
				break
			}
			if n == 1 {
				return nil, domain.WrapError(domain.ErrInvalidInput, "encode document batch",
					fmt.Errorf("document %q exceeds max payload of %d bytes", docs[start].Source, maxPayload))
			}
			n /= 2
		}
		start += n
	}
	return out, nil
}

func decodeBatch(data []byte) ([]domain.Document, error) {
	var docs []domain.Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("decode document batch: %w", err)
	}
	return docs, nil
}
