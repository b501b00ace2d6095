package publish

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"lib.hemtjan.st/device"

	"hemtjan.st/meter2car/config"
	"hemtjan.st/meter2car/meter"
)

type testDevices struct {
	infos   []*device.Info
	values  map[string]string
	failNew bool
}

func (d *testDevices) newDevice(info *device.Info) (UpdateFunc, error) {
	if d.failNew {
		return nil, errors.New("mqtt down")
	}
	d.infos = append(d.infos, info)
	return func(feature, value string) error {
		d.values[feature] = value
		return nil
	}, nil
}

func TestPublish(t *testing.T) {
	devs := &testDevices{values: map[string]string{}}
	p := New(config.PublishConfig{Topic: "sensor/electricity/meter2car", Name: "meter2car"}, devs.newDevice, zaptest.NewLogger(t))

	r := &meter.Reading{Magnitudes: []uint32{31963313, 8820719, 81560, 4789275, 0, 2729}}
	p.Publish(r)
	p.Publish(r)

	require.Len(t, devs.infos, 1)
	info := devs.infos[0]
	assert.Equal(t, "sensor/electricity/meter2car", info.Topic)
	assert.Equal(t, "energyMeter", info.Type)
	assert.Len(t, info.Features, 5)

	assert.Equal(t, map[string]string{
		"currentPower":         "0",
		"currentPowerProduced": "2729",
		"availablePower":       "2729",
		"energyUsed":           "31963.313",
		"energyProduced":       "8820.719",
	}, devs.values)
}

func TestPublishRetriesDevice(t *testing.T) {
	devs := &testDevices{values: map[string]string{}, failNew: true}
	p := New(config.PublishConfig{}, devs.newDevice, nil)

	r := &meter.Reading{Magnitudes: []uint32{0, 0, 0, 0, 500, 0}}
	p.Publish(r)
	assert.Empty(t, devs.values)

	devs.failNew = false
	p.Publish(r)
	assert.Equal(t, "-500", devs.values["availablePower"])
}
