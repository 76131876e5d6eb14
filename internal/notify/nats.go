package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

const subjectPrefix = "apptgate.policies."

// NATSNotifier publishes policy-change envelopes to NATS subjects
// ("apptgate.policies.<event>"). Publish failures are logged and dropped.
type NATSNotifier struct {
	conn *nats.Conn
	log  *slog.Logger
}

func NewNATSNotifier(url string, log *slog.Logger) (*NATSNotifier, error) {
	if log == nil {
		log = slog.Default()
	}
	conn, err := nats.Connect(url,
		nats.Name("apptgate"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, err
	}
	return &NATSNotifier{
		conn: conn,
		log:  log.With(slog.String("component", "notify.nats")),
	}, nil
}

func (n *NATSNotifier) PolicyChanged(ctx context.Context, event Event, practitionerID string, payload any) {
	subject, data, err := encodeEnvelope(event, practitionerID, payload, time.Now().UTC())
	if err != nil {
		n.log.Warn("policy change encode failed",
			slog.Any("err", err),
			slog.String("event", string(event)),
			slog.String("practitioner_id", practitionerID),
		)
		return
	}
	if err := n.conn.Publish(subject, data); err != nil {
		n.log.Warn("policy change publish failed",
			slog.Any("err", err),
			slog.String("subject", subject),
			slog.String("practitioner_id", practitionerID),
		)
	}
}

func (n *NATSNotifier) Close() {
	if n.conn != nil {
		n.conn.Close()
	}
}

func encodeEnvelope(event Event, practitionerID string, payload any, at time.Time) (string, []byte, error) {
	data, err := json.Marshal(envelope{
		Event:          event,
		PractitionerID: practitionerID,
		Payload:        payload,
		Timestamp:      at,
	})
	if err != nil {
		return "", nil, err
	}
	return subjectPrefix + string(event), data, nil
}
