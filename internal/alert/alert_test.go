package alert

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/metal-toolbox/printwatch/internal/model"
	"github.com/metal-toolbox/printwatch/types"
	srvtest "github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fptr(f float64) *float64 { return &f }

func testOutcome() *model.RunOutcome {
	return &model.RunOutcome{
		ID:         uuid.New(),
		Status:     model.RunWarning,
		Thresholds: model.Thresholds{Low: 10, Medium: 25},
		Timestamp:  time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC),
		Results: []model.DeviceResult{
			{
				Device:    model.Device{Address: "10.0.0.1", Model: "Lexmark MX611dhe", Site: "North"},
				Fractions: model.Fractions{Toner: fptr(0.05), Kit: fptr(0.5)},
				Level:     model.LevelLow,
			},
			{
				Device:    model.Device{Address: "10.0.0.2", Model: "Lexmark T654", Site: "South"},
				Fractions: model.Fractions{Toner: fptr(0.2)},
				Level:     model.LevelMedium,
			},
			{
				Device: model.Device{Address: "10.0.0.3", Model: "Lexmark T654", Site: "South"},
				Level:  model.LevelAbsent,
			},
		},
	}
}

func TestNewNotice(t *testing.T) {
	outcome := testOutcome()

	notice := NewNotice(outcome)
	require.NotNil(t, notice)
	assert.Equal(t, outcome.ID, notice.RunID)
	assert.Equal(t, 10, notice.LowThreshold)
	require.Len(t, notice.Devices, 1)
	assert.Equal(t, "10.0.0.1", notice.Devices[0].Address)
	assert.Equal(t, "North", notice.Devices[0].Site)

	outcome.Results = outcome.Results[1:]
	assert.Nil(t, NewNotice(outcome))
}

func TestNatsDispatcher(t *testing.T) {
	opts := srvtest.DefaultTestOptions
	opts.Port = -1
	srv := srvtest.RunServer(&opts)

	defer srv.Shutdown()

	sub, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)

	defer sub.Close()

	msgCh := make(chan *nats.Msg, 4)
	s, err := sub.ChanSubscribe(DefaultSubject, msgCh)
	require.NoError(t, err)

	defer func() { _ = s.Unsubscribe() }()

	require.NoError(t, sub.Flush())

	d, err := NewNatsDispatcher(srv.ClientURL(), "", logrus.New())
	require.NoError(t, err)

	defer d.Close()

	notice := NewNotice(testOutcome())
	require.NoError(t, d.NotifyLowLevel(context.Background(), notice))

	select {
	case msg := <-msgCh:
		got := &types.LowLevelAlert{}
		require.NoError(t, json.Unmarshal(msg.Data, got))

		assert.Equal(t, notice.RunID.String(), got.RunID)
		assert.Equal(t, "10.0.0.1", got.Address)
		assert.Equal(t, "North", got.Site)
		assert.Equal(t, types.Version, got.MsgVersion)
		require.NotNil(t, got.Toner)
		assert.InDelta(t, 0.05, *got.Toner, 1e-9)
		assert.Nil(t, got.Imaging)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for alert message")
	}

	// nothing to publish
	assert.NoError(t, d.NotifyLowLevel(context.Background(), nil))
}

func TestNatsDispatcherConnectError(t *testing.T) {
	_, err := NewNatsDispatcher("nats://127.0.0.1:1", "", logrus.New())
	assert.ErrorIs(t, err, ErrDispatch)
}

func TestLogDispatcher(t *testing.T) {
	logger, hook := test.NewNullLogger()

	d := &LogDispatcher{Logger: logger}
	require.NoError(t, d.NotifyLowLevel(context.Background(), NewNotice(testOutcome())))

	require.Len(t, hook.AllEntries(), 1)
	entry := hook.LastEntry()
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, "10.0.0.1", entry.Data["address"])
	assert.InDelta(t, 5.0, entry.Data["toner"], 1e-9)
	assert.Nil(t, entry.Data["imaging"])
}
