package alert

import (
	"context"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/metal-toolbox/printwatch/internal/metrics"
	"github.com/metal-toolbox/printwatch/internal/model"
	"github.com/metal-toolbox/printwatch/types"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultSubject = "printwatch.alerts.low"

	defaultConnectTimeout = 10 * time.Second
)

// NatsDispatcher publishes one types.LowLevelAlert message per low level device.
type NatsDispatcher struct {
	conn    *nats.Conn
	subject string
	logger  *logrus.Logger
}

// NewNatsDispatcher connects to the NATS server at url.
func NewNatsDispatcher(url, subject string, logger *logrus.Logger) (*NatsDispatcher, error) {
	if subject == "" {
		subject = DefaultSubject
	}

	conn, err := nats.Connect(
		url,
		nats.Name(model.AppName),
		nats.Timeout(defaultConnectTimeout),
	)
	if err != nil {
		return nil, errors.Wrap(ErrDispatch, "nats connect: "+err.Error())
	}

	return &NatsDispatcher{conn: conn, subject: subject, logger: logger}, nil
}

// NotifyLowLevel implements the Dispatcher interface.
func (n *NatsDispatcher) NotifyLowLevel(ctx context.Context, notice *Notice) error {
	if notice == nil || len(notice.Devices) == 0 {
		return nil
	}

	spanCtx := trace.SpanFromContext(ctx).SpanContext()

	var merr *multierror.Error

	for _, device := range notice.Devices {
		msg := &types.LowLevelAlert{
			RunID:        notice.RunID.String(),
			PolledAt:     notice.PolledAt,
			Site:         device.Site,
			Address:      device.Address,
			Model:        device.Model,
			Name:         device.Name,
			Toner:        device.Toner,
			Kit:          device.Kit,
			Imaging:      device.Imaging,
			LowThreshold: notice.LowThreshold,
		}

		if spanCtx.IsValid() {
			msg.TraceID = spanCtx.TraceID().String()
			msg.SpanID = spanCtx.SpanID().String()
		}

		if err := n.conn.Publish(n.subject, msg.MustBytes()); err != nil {
			metrics.AlertCounter.WithLabelValues("error").Inc()
			merr = multierror.Append(merr, errors.Wrap(err, device.Address))

			continue
		}

		metrics.AlertCounter.WithLabelValues("published").Inc()
	}

	if err := n.conn.FlushWithContext(ctx); err != nil {
		merr = multierror.Append(merr, errors.Wrap(err, "flush"))
	}

	if err := merr.ErrorOrNil(); err != nil {
		return errors.Wrap(ErrDispatch, err.Error())
	}

	n.logger.WithFields(logrus.Fields{
		"runID":   notice.RunID.String(),
		"subject": n.subject,
		"devices": len(notice.Devices),
	}).Info("low level alerts published")

	return nil
}

// Close drains and closes the NATS connection.
func (n *NatsDispatcher) Close() {
	if err := n.conn.Drain(); err != nil {
		n.conn.Close()
	}
}
