// Package alert notifies an external collaborator of devices with consumables at the low level.
package alert

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/metal-toolbox/printwatch/internal/model"
	"github.com/pkg/errors"
)

var (
	ErrDispatch = errors.New("error dispatching low level alerts")
)

// Dispatcher receives the low level devices of a completed poll run.
//
//go:generate mockgen -source alert.go -destination=../fixtures/mock_dispatcher.go -package fixtures
type Dispatcher interface {
	NotifyLowLevel(ctx context.Context, notice *Notice) error
}

// DeviceLevels are the consumable fractions of a low level device.
type DeviceLevels struct {
	Site    string
	Address string
	Model   string
	Name    string
	Toner   *float64
	Kit     *float64
	Imaging *float64
}

// Notice is the batch of low level devices of one poll run.
type Notice struct {
	RunID        uuid.UUID
	PolledAt     time.Time
	LowThreshold int
	Devices      []DeviceLevels
}

// NewNotice returns the notice for the outcome, nil when no device is at the low level.
func NewNotice(outcome *model.RunOutcome) *Notice {
	notice := &Notice{
		RunID:        outcome.ID,
		PolledAt:     outcome.Timestamp,
		LowThreshold: outcome.Thresholds.Low,
	}

	for _, result := range outcome.Results {
		if result.Level != model.LevelLow {
			continue
		}

		notice.Devices = append(notice.Devices, DeviceLevels{
			Site:    result.Device.Site,
			Address: result.Device.Address,
			Model:   result.Device.Model,
			Name:    result.Device.Name,
			Toner:   result.Fractions.Toner,
			Kit:     result.Fractions.Kit,
			Imaging: result.Fractions.Imaging,
		})
	}

	if len(notice.Devices) == 0 {
		return nil
	}

	return notice
}
