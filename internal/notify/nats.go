package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/dukerupert/vanir/internal/domain"
)

// NATSDispatcher publishes order events to NATS subjects of the form
// "<prefix>.<event type>", e.g. "orders.payment.approved".
type NATSDispatcher struct {
	conn          *nats.Conn
	subjectPrefix string
}

// Compile-time check that NATSDispatcher implements Dispatcher.
var _ Dispatcher = (*NATSDispatcher)(nil)

// NewNATSDispatcher connects to the NATS server at url.
// An empty subjectPrefix defaults to "orders".
func NewNATSDispatcher(url, subjectPrefix string) (*NATSDispatcher, error) {
	if subjectPrefix == "" {
		subjectPrefix = "orders"
	}

	conn, err := nats.Connect(url,
		nats.Name("vanir-order-pipeline"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, domain.WrapError(err, domain.EINTERNAL, "notify.nats", "failed to connect to NATS")
	}

	return &NATSDispatcher{
		conn:          conn,
		subjectPrefix: subjectPrefix,
	}, nil
}

// Dispatch publishes the event as JSON.
func (d *NATSDispatcher) Dispatch(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return domain.WrapError(err, domain.EINTERNAL, "notify.dispatch", "failed to encode event")
	}

	subject := fmt.Sprintf("%s.%s", d.subjectPrefix, event.Type)
	if err := d.conn.Publish(subject, payload); err != nil {
		return domain.WrapError(err, domain.EINTERNAL, "notify.dispatch",
			fmt.Sprintf("failed to publish %s", subject))
	}
	return nil
}

// Close drains the connection.
func (d *NATSDispatcher) Close() {
	if d.conn != nil {
		d.conn.Drain() //nolint:errcheck
	}
}
