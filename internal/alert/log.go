package alert

import (
	"context"

	"github.com/metal-toolbox/printwatch/internal/metrics"
	"github.com/sirupsen/logrus"
)

// LogDispatcher writes low level devices to the logger, it is used when no NATS server is configured.
type LogDispatcher struct {
	Logger *logrus.Logger
}

func percent(f *float64) any {
	if f == nil {
		return nil
	}

	return *f * 100
}

// NotifyLowLevel implements the Dispatcher interface.
func (l *LogDispatcher) NotifyLowLevel(_ context.Context, notice *Notice) error {
	if notice == nil {
		return nil
	}

	for _, device := range notice.Devices {
		l.Logger.WithFields(logrus.Fields{
			"runID":   notice.RunID.String(),
			"site":    device.Site,
			"address": device.Address,
			"model":   device.Model,
			"toner":   percent(device.Toner),
			"kit":     percent(device.Kit),
			"imaging": percent(device.Imaging),
		}).Warn("consumable below low threshold")

		metrics.AlertCounter.WithLabelValues("logged").Inc()
	}

	return nil
}
