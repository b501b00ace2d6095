package publish

import (
	"fmt"

	"go.uber.org/zap"
	"lib.hemtjan.st/device"
	"lib.hemtjan.st/feature"

	"hemtjan.st/meter2car/config"
	"hemtjan.st/meter2car/meter"
)

const (
	// Re-use currentPower from hemtjanst for power flowing in from the grid
	currentPower = string(feature.CurrentPower)
	// Custom feature for power exported to the grid
	currentPowerProduced = "currentPowerProduced"
	energyUsed           = string(feature.EnergyUsed)
	energyProduced       = "energyProduced"
	availablePower       = "availablePower"
)

// UpdateFunc sets the value of a feature of a published device.
type UpdateFunc func(feature, value string) error

// DeviceFactory announces a device and returns a function updating it.
type DeviceFactory func(info *device.Info) (UpdateFunc, error)

// Publisher publishes meter readings as a hemtjanst energy meter.
type Publisher struct {
	cfg       config.PublishConfig
	newDevice DeviceFactory
	update    UpdateFunc
	log       *zap.Logger
}

func New(cfg config.PublishConfig, newDevice DeviceFactory, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{
		cfg:       cfg,
		newDevice: newDevice,
		log:       log,
	}
}

// Publish sends the values of r. The device is announced with the first reading.
func (p *Publisher) Publish(r *meter.Reading) {
	if p.update == nil {
		update, err := p.newDevice(&device.Info{
			Topic: p.cfg.Topic,
			Name:  p.cfg.Name,
			Type:  "energyMeter",
			Features: map[string]*feature.Info{
				currentPower:         {},
				currentPowerProduced: {},
				energyUsed:           {},
				energyProduced:       {},
				availablePower:       {},
			},
		})
		if err != nil {
			p.log.Error("creating device", zap.Error(err))
			return
		}
		p.update = update
	}

	values := []struct {
		feature string
		value   string
	}{
		// Power in W
		{currentPower, fmt.Sprintf("%d", r.PowerImport())},
		{currentPowerProduced, fmt.Sprintf("%d", r.PowerExport())},
		{availablePower, fmt.Sprintf("%d", r.AvailablePower())},
		// Energy in kWh
		{energyUsed, fmt.Sprintf("%.3f", float64(r.EnergyImport())/1000)},
		{energyProduced, fmt.Sprintf("%.3f", float64(r.EnergyExport())/1000)},
	}
	for _, v := range values {
		if err := p.update(v.feature, v.value); err != nil {
			p.log.Warn("updating feature", zap.String("feature", v.feature), zap.Error(err))
		}
	}
}
