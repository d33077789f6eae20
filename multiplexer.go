package irrigkit

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/hubertat/irrigkit/drivers"
)

// MuxChannels is the number of analog lines behind a CD74HC4067 style multiplexer.
const MuxChannels = 16

const muxSelectLines = 4
const defaultSettleDelay = 10 * time.Millisecond

var ErrChannelOutOfRange = errors.New("channel out of range")

// Multiplexer selects one of 16 analog lines by driving 4 select outputs.
type Multiplexer struct {
	selectLines [muxSelectLines]drivers.DigitalOutput
	settle      time.Duration
}

func NewMultiplexer(selectLines [muxSelectLines]drivers.DigitalOutput, settle time.Duration) (*Multiplexer, error) {
	for k, line := range selectLines {
		if line == nil {
			return nil, errors.Errorf("multiplexer select line S%d not set", k)
		}
	}

	return &Multiplexer{selectLines: selectLines, settle: settle}, nil
}

// SelectChannel writes bit k of index to select line k and waits for the
// analog line to settle. Readings taken after it returns belong to index.
func (mux *Multiplexer) SelectChannel(ctx context.Context, index int) error {
	if index < 0 || index >= MuxChannels {
		return errors.Wrapf(ErrChannelOutOfRange, "mux channel %d", index)
	}

	for k, line := range mux.selectLines {
		err := line.Set(index>>k&1 == 1)
		if err != nil {
			return errors.Wrapf(err, "failed to set mux select line S%d", k)
		}
	}

	return settle(ctx, mux.settle)
}

func settle(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
