package push

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"ChatRelay/tools/errs"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// Message is one provider push request.
type Message struct {
	To    string `json:"to"`
	Title string `json:"title"`
	Body  string `json:"body"`
	Sound string `json:"sound,omitempty"`
}

// Batch is the provider-mandated submission unit.
type Batch struct {
	BatchID  string    `json:"batch_id"`
	Messages []Message `json:"messages"`
}

// Transport submits batches to the delivery provider. Each batch fails or
// succeeds independently of every other batch.
type Transport interface {
	SendBatch(ctx context.Context, batch Batch) error
}

// NatsConfig for the NATS-backed transport.
type NatsConfig struct {
	Servers       []string
	Name          string
	Subject       string
	ReconnectWait time.Duration
	Timeout       time.Duration
}

type natsTransport struct {
	nc      *nats.Conn
	subject string
	timeout time.Duration
}

// NewNatsTransport connects to NATS and returns a transport that publishes
// each batch as one JSON message on the configured subject. The delivery
// worker consuming that subject owns the provider handoff.
func NewNatsTransport(cfg NatsConfig) (Transport, error) {
	if len(cfg.Servers) == 0 {
		return nil, errs.New("nats servers missing")
	}
	if cfg.Subject == "" {
		return nil, errs.New("nats subject missing")
	}
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = 500 * time.Millisecond
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 3 * time.Second
	}

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(cfg.Timeout),
	}
	nc, err := nats.Connect(strings.Join(cfg.Servers, ","), opts...)
	if err != nil {
		return nil, errs.WrapMsg(err, "connect nats")
	}
	return &natsTransport{nc: nc, subject: cfg.Subject, timeout: cfg.Timeout}, nil
}

func (t *natsTransport) SendBatch(ctx context.Context, batch Batch) error {
	if batch.BatchID == "" {
		batch.BatchID = uuid.NewString()
	}
	data, err := json.Marshal(batch)
	if err != nil {
		return errs.ErrDelivery.WrapMsg("marshal batch", "batch", batch.BatchID)
	}

	msg := &nats.Msg{
		Subject: t.subject,
		Header:  nats.Header{"Nats-Msg-Id": []string{batch.BatchID}},
		Data:    data,
	}
	if err := t.nc.PublishMsg(msg); err != nil {
		return errs.ErrDelivery.WrapMsg("publish batch", "batch", batch.BatchID, "err", err)
	}

	flushCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	if err := t.nc.FlushWithContext(flushCtx); err != nil {
		return errs.ErrDelivery.WrapMsg("flush batch", "batch", batch.BatchID, "err", err)
	}
	return nil
}
