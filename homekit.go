package irrigkit

import (
	"context"
	"fmt"
	"hash/fnv"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	dnslog "github.com/brutella/dnssd/log"
	"github.com/brutella/hap"
	"github.com/brutella/hap/accessory"
	hklog "github.com/brutella/hap/log"
	"github.com/pkg/errors"
)

const defaultHomeKitDirectory = "./homekit"
const homeKitBridgeName = "irrigkit"
const homeKitBridgeAuthor = "github.com/hubertat"

// ChannelSwitch exposes one control channel as a HomeKit switch. The switch
// is on while irrigation runs, which is the internal state false.
type ChannelSwitch struct {
	Channel int

	hk      *accessory.Switch
	deliver func(ctx context.Context, msg ControlMessage) error
}

func NewChannelSwitch(name string, channel Channel, deliver func(ctx context.Context, msg ControlMessage) error) *ChannelSwitch {
	cs := &ChannelSwitch{Channel: channel.Index, deliver: deliver}

	cs.hk = accessory.NewSwitch(accessory.Info{
		Name:         fmt.Sprintf("%s c%d", name, channel.Index),
		SerialNumber: fmt.Sprintf("irrigation:%s", channel.InboundTopic),
	})
	cs.hk.Switch.On.SetValue(!channel.State)
	cs.hk.Switch.On.OnValueRemoteUpdate(cs.SetValue)

	return cs
}

func (cs *ChannelSwitch) GetUniqueId() uint64 {
	hash := fnv.New64()
	hash.Write([]byte("ChannelSwitch_" + strconv.Itoa(cs.Channel)))
	return hash.Sum64()
}

// SetValue queues the HomeKit change as a regular control message.
func (cs *ChannelSwitch) SetValue(on bool) {
	ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
	defer cancel()

	err := cs.deliver(ctx, ControlMessage{
		Topic:   fmt.Sprintf(inboundTopicPattern, cs.Channel),
		Payload: []byte(strconv.FormatBool(!on)),
	})
	if err != nil {
		cs.hk.Switch.On.SetValue(!on)
	}
}

func (cs *ChannelSwitch) Sync(ch Channel) {
	if cs.hk.Switch.On.Value() != !ch.State {
		cs.hk.Switch.On.SetValue(!ch.State)
	}
}

func (cs *ChannelSwitch) GetHk() *accessory.A {
	return cs.hk.A
}

// HomeKitSwitches builds one switch per channel and keeps them in sync with
// the controller's state reports.
func (ik *IrrigKit) HomeKitSwitches() []*ChannelSwitch {
	switches := []*ChannelSwitch{}
	for _, ch := range ik.controller.Store().Channels() {
		switches = append(switches, NewChannelSwitch(ik.bridgeName(), ch, ik.controller.Deliver))
	}

	ik.controller.OnStateChange(func(channels []Channel) {
		for _, ch := range channels {
			for _, sw := range switches {
				if sw.Channel == ch.Index {
					sw.Sync(ch)
				}
			}
		}
	})
	return switches
}

func (ik *IrrigKit) bridgeName() string {
	if len(ik.Name) < 1 {
		return homeKitBridgeName
	}
	return ik.Name
}

func (ik *IrrigKit) GetHkAccessories(firmwareVersion string) (acc []*accessory.A) {
	acc = []*accessory.A{}

	for _, sw := range ik.HomeKitSwitches() {
		a := sw.GetHk()
		if a.Info != nil && a.Info.FirmwareRevision != nil {
			a.Info.FirmwareRevision.SetValue(firmwareVersion)
		}
		a.Id = sw.GetUniqueId()
		acc = append(acc, a)
	}

	return
}

func (ik *IrrigKit) StartHomeKit(ctx context.Context, firmwareVersion string) error {
	bridge := accessory.NewBridge(accessory.Info{
		Name:         ik.bridgeName(),
		Manufacturer: homeKitBridgeAuthor,
		Firmware:     firmwareVersion,
	})

	var store hap.Store
	if len(ik.HkDirectory) > 1 {
		store = hap.NewFsStore(ik.HkDirectory)
	} else {
		store = hap.NewFsStore(defaultHomeKitDirectory)
	}
	hkServer, err := hap.NewServer(store, bridge.A, ik.GetHkAccessories(firmwareVersion)...)
	if err != nil {
		return errors.Wrap(err, "failed to create HomeKit server")
	}
	hkServer.Pin = ik.HkPin
	if len(ik.HkAddress) > 0 {
		hkServer.Addr = ik.HkAddress
	}

	if ik.HkDebug {
		hklog.Debug.Enable()
		dnslog.Debug.Enable()
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(c)
	}()

	return hkServer.ListenAndServe(ctx)
}
