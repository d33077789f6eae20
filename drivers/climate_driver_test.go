package drivers

import (
	"os"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeIioDevice(t *testing.T, temperature, humidity string) string {
	t.Helper()

	root := t.TempDir()
	device := path.Join(root, iioDefaultDevice)
	require.NoError(t, os.MkdirAll(device, 0755))
	if len(temperature) > 0 {
		require.NoError(t, os.WriteFile(path.Join(device, iioTemperatureFile), []byte(temperature), 0644))
	}
	if len(humidity) > 0 {
		require.NoError(t, os.WriteFile(path.Join(device, iioHumidityFile), []byte(humidity), 0644))
	}
	return root
}

func TestIioClimateRead(t *testing.T) {
	dht := IioClimate{sysPath: makeIioDevice(t, "23400\n", "55100\n")}

	require.NoError(t, dht.Setup())
	assert.True(t, dht.IsReady())

	climate, err := dht.Read()
	require.NoError(t, err)
	assert.InDelta(t, 23.4, climate.Temperature, 1e-9)
	assert.InDelta(t, 55.1, climate.Humidity, 1e-9)
}

func TestIioClimateSetupMissingFile(t *testing.T) {
	dht := IioClimate{sysPath: makeIioDevice(t, "23400", "")}

	assert.Error(t, dht.Setup())
	assert.False(t, dht.IsReady())
}

func TestIioClimateReadGarbage(t *testing.T) {
	dht := IioClimate{sysPath: makeIioDevice(t, "not-a-number", "55100"), Retries: 1}

	_, err := dht.Read()
	assert.Error(t, err)
}

func TestMockClimate(t *testing.T) {
	mc := MockClimate{Temperature: 21.5, Humidity: 40}

	climate, err := mc.Read()
	require.NoError(t, err)
	assert.Equal(t, Climate{Temperature: 21.5, Humidity: 40}, climate)
	assert.Equal(t, 1, mc.Reads())
}
