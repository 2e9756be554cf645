package client

import (
	"context"
	"net"
	"time"

	"github.com/mattjoyce/livebridge/internal/command"
)

const (
	DefaultAddress            = "localhost:9877"
	DefaultReadOnlyTimeout    = 12 * time.Second
	DefaultMutatingTimeout    = 30 * time.Second
	DefaultLongRunningTimeout = 120 * time.Second
	DefaultSettleDelay        = 100 * time.Millisecond
	DefaultConnectTimeout     = 5 * time.Second
	DefaultGreetingTimeout    = 5 * time.Second
)

// Dialer opens the transport. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Options configures a Connection. Zero durations take the defaults; a
// negative SettleDelay or GreetingTimeout disables that step.
type Options struct {
	Address string
	// Classifier maps command names to classes. Names it does not know are
	// treated as read_only.
	Classifier command.Classifier

	ReadOnlyTimeout    time.Duration
	MutatingTimeout    time.Duration
	LongRunningTimeout time.Duration
	SettleDelay        time.Duration
	ConnectTimeout     time.Duration
	GreetingTimeout    time.Duration

	MaxFrameSize int
	Clock        Clock
	Dialer       Dialer
}

func (o Options) withDefaults() Options {
	if o.Address == "" {
		o.Address = DefaultAddress
	}
	if o.Classifier == nil {
		o.Classifier = command.Table{}
	}
	if o.ReadOnlyTimeout == 0 {
		o.ReadOnlyTimeout = DefaultReadOnlyTimeout
	}
	if o.MutatingTimeout == 0 {
		o.MutatingTimeout = DefaultMutatingTimeout
	}
	if o.LongRunningTimeout == 0 {
		o.LongRunningTimeout = DefaultLongRunningTimeout
	}
	if o.SettleDelay == 0 {
		o.SettleDelay = DefaultSettleDelay
	}
	if o.ConnectTimeout == 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.GreetingTimeout == 0 {
		o.GreetingTimeout = DefaultGreetingTimeout
	}
	if o.Clock == nil {
		o.Clock = RealClock{}
	}
	if o.Dialer == nil {
		o.Dialer = &net.Dialer{}
	}
	return o
}
