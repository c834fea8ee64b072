package device_test

import (
	"testing"

	"github.com/radio-control/rfcontrol/internal/device"
	"github.com/radio-control/rfcontrol/internal/devicetest"
)

func TestDeviceConformance(t *testing.T) {
	devicetest.RunConformance(t, func() devicetest.Controller {
		d := device.New()
		d.Connect("DEV001")
		return d
	}, devicetest.Expectations{
		IdleStatus:      device.StatusIdle,
		OperatingStatus: device.OperatingStatus,
		Concurrency:     64,
	})
}
