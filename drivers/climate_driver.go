package drivers

import (
	"os"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

const iioSystemPath string = "/sys/bus/iio/devices"
const iioDefaultDevice string = "iio:device0"
const iioTemperatureFile string = "in_temp_input"
const iioHumidityFile string = "in_humidityrelative_input"

const iioClimateDriverName string = "iio_dht"
const defaultClimateRetries = 3
const climateRetryDelay = 100 * time.Millisecond

// Climate is one temperature / relative humidity sample.
type Climate struct {
	Temperature float64
	Humidity    float64
}

// ClimateSensor is the shared (not multiplexed) DHT22 of the station.
type ClimateSensor interface {
	Setup() error
	Close() error
	IsReady() bool
	Name() string
	Read() (Climate, error)
}

// IioClimate reads a DHT22 through the Linux dht11 IIO driver
// (dtoverlay=dht11,gpiopin=4). Values in sysfs are milli-units.
type IioClimate struct {
	Device  string
	Retries int

	sysPath string
	ready   bool
	lock    sync.Mutex
}

func (dht *IioClimate) devicePath() string {
	root := dht.sysPath
	if len(root) == 0 {
		root = iioSystemPath
	}
	device := dht.Device
	if len(device) == 0 {
		device = iioDefaultDevice
	}
	return path.Join(root, device)
}

func (dht *IioClimate) Setup() (err error) {
	_, err = os.ReadDir(dht.devicePath())
	if err != nil {
		err = errors.Wrapf(err, "failed to init iio climate driver: error reading dir (%s)", dht.devicePath())
		return
	}

	for _, file := range []string{iioTemperatureFile, iioHumidityFile} {
		_, err = os.Stat(path.Join(dht.devicePath(), file))
		if err != nil {
			err = errors.Wrapf(err, "failed to init iio climate driver, missing %s", file)
			return
		}
	}

	dht.ready = true
	return
}

func (dht *IioClimate) Close() error {
	dht.ready = false
	return nil
}

func (dht *IioClimate) IsReady() bool {
	return dht.ready
}

func (dht *IioClimate) Name() string {
	return iioClimateDriverName
}

func (dht *IioClimate) readMilli(file string) (float64, error) {
	filePath := path.Join(dht.devicePath(), file)
	raw, err := os.ReadFile(filePath)
	if err != nil {
		return 0, errors.Wrapf(err, "failed reading %s", filePath)
	}
	valueString := strings.TrimSpace(string(raw))
	milli, err := strconv.ParseInt(valueString, 10, 32)
	if err != nil {
		return 0, errors.Wrapf(err, "failed converting %s value: %s to milli units", file, valueString)
	}
	return float64(milli) / 1000, nil
}

// Read returns temperature (°C) and humidity (%). The dht11 driver fails a read
// now and then (checksum or timing), those reads are retried.
func (dht *IioClimate) Read() (climate Climate, err error) {
	dht.lock.Lock()
	defer dht.lock.Unlock()

	retries := dht.Retries
	if retries <= 0 {
		retries = defaultClimateRetries
	}

	for attempt := 0; attempt < retries; attempt++ {
		if attempt > 0 {
			time.Sleep(climateRetryDelay)
		}
		climate.Temperature, err = dht.readMilli(iioTemperatureFile)
		if err != nil {
			continue
		}
		climate.Humidity, err = dht.readMilli(iioHumidityFile)
		if err == nil {
			return
		}
	}

	err = errors.Wrapf(err, "dht read failed after %d attempts", retries)
	return
}

// MockClimate returns a fixed sample, or Err when set.
type MockClimate struct {
	Temperature float64
	Humidity    float64
	Err         error

	ready bool
	reads int
}

func (mc *MockClimate) Setup() error {
	mc.ready = true
	return nil
}

func (mc *MockClimate) Close() error {
	mc.ready = false
	return nil
}

func (mc *MockClimate) IsReady() bool {
	return mc.ready
}

func (mc *MockClimate) Name() string {
	return "mock_climate"
}

func (mc *MockClimate) Read() (Climate, error) {
	mc.reads++
	if mc.Err != nil {
		return Climate{}, mc.Err
	}
	return Climate{Temperature: mc.Temperature, Humidity: mc.Humidity}, nil
}

// Reads tells how many times Read was called.
func (mc *MockClimate) Reads() int {
	return mc.reads
}
