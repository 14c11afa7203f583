package events

import (
	"context"
	"encoding/json"
	"time"

	"shard-exchange/internal/domain"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// TransferProducer publishes committed transfers to Kafka, keyed by issuer so one issuer's
// transfers stay ordered on a single partition.
type TransferProducer struct {
	writer messageWriter
}

func NewTransferProducer(brokers []string, topic string) *TransferProducer {
	return &TransferProducer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

// TransferMessage is the JSON value written for each transfer.
type TransferMessage struct {
	Type   string                `json:"type"`
	Record domain.TransferRecord `json:"record"`
}

const transferMessageType = "shard.transfer.executed"

func transferMessage(rec domain.TransferRecord) (kafka.Message, error) {
	value, err := json.Marshal(TransferMessage{Type: transferMessageType, Record: rec})
	if err != nil {
		return kafka.Message{}, errors.Wrap(err, "encode transfer")
	}
	return kafka.Message{
		Key:   []byte(rec.IssuerID.String()),
		Value: value,
		Time:  rec.CreatedAt,
		Headers: []kafka.Header{
			{Key: "sequence_token", Value: []byte(rec.SequenceToken)},
		},
	}, nil
}

// PublishTransfer implements ledger.TransferPublisher.
func (p *TransferProducer) PublishTransfer(ctx context.Context, rec domain.TransferRecord) error {
	msg, err := transferMessage(rec)
	if err != nil {
		return err
	}
	return errors.Wrap(p.writer.WriteMessages(ctx, msg), "write transfer message")
}

// Ping dials the first broker; used by the health endpoint.
func Ping(ctx context.Context, brokers []string) error {
	if len(brokers) == 0 {
		return errors.New("no kafka brokers configured")
	}
	conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		return errors.Wrap(err, "dial kafka")
	}
	return conn.Close()
}

func (p *TransferProducer) Close() error {
	return p.writer.Close()
}
