package irrigkit

const adcFullScale = 4095

// Percent maps a raw 12-bit sample (0..4095) onto 0..100, truncating like
// Arduino's map(). Out of range samples are not clamped.
func Percent(raw int) int {
	return raw * 100 / adcFullScale
}
