package drivers

import (
	"context"
	"testing"
)

func TestGetIoDriverByName(t *testing.T) {
	t.Run("McpIO", func(t *testing.T) {
		mcp := McpIO{}
		got := mcp.String()
		want := "mcpio"

		if got != want {
			t.Errorf("got %s want %s", got, want)
		}
	})

	t.Run("GpIO", func(t *testing.T) {
		gp := GpIO{}
		got := gp.String()
		want := "gpio"

		if got != want {
			t.Errorf("got %s want %s", got, want)
		}
	})
}

func TestMapAllIoDrivers(t *testing.T) {
	mapped := MapAllIoDrivers()

	for _, name := range []string{"gpio", "mcpio", "mock_driver"} {
		driver, found := mapped[name]
		if !found {
			t.Errorf("driver %s not mapped", name)
			continue
		}
		if driver.IsReady() {
			t.Errorf("driver %s ready before Setup", name)
		}
	}
}

func TestMcp3208RejectsChannelOutOfRange(t *testing.T) {
	adc := Mcp3208{}

	err := adc.Setup(context.Background(), []uint16{0, 8})
	if err == nil {
		t.Error("expected error for channel 8, got nil")
	}
	if adc.IsReady() {
		t.Error("mcp3208 should not be ready after failed Setup")
	}
}
