package wiz

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/dokzlo13/lightseq/internal/device"
)

const (
	defaultTimeout   = 2 * time.Second
	defaultRPS       = 20
	resendInterval   = 500 * time.Millisecond
	maxDatagramBytes = 2048
)

// Options configures a Client.
type Options struct {
	Port          int           // bulb port, Port when zero
	CallTimeout   time.Duration // per call deadline
	RateLimitRPS  float64       // per bulb request rate
	DiscoveryWait time.Duration // how long to collect registration replies
}

// Client creates bulbs and discovers them. Bulbs created by the same client
// share nothing but its options; each has its own rate limiter.
type Client struct {
	opts Options

	mu    sync.Mutex
	bulbs map[device.ID]*Bulb
}

// NewClient creates a client, filling zero options with defaults.
func NewClient(opts Options) *Client {
	if opts.Port == 0 {
		opts.Port = Port
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = defaultTimeout
	}
	if opts.RateLimitRPS <= 0 {
		opts.RateLimitRPS = defaultRPS
	}
	if opts.DiscoveryWait <= 0 {
		opts.DiscoveryWait = 2 * time.Second
	}
	return &Client{opts: opts, bulbs: make(map[device.ID]*Bulb)}
}

// Bulb returns the bulb at ip, creating it on first use.
func (c *Client) Bulb(ip string) *Bulb {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := device.ID(ip)
	if b, ok := c.bulbs[id]; ok {
		return b
	}
	burst := int(c.opts.RateLimitRPS)
	if burst < 1 {
		burst = 1
	}
	b := &Bulb{
		id:      id,
		addr:    net.JoinHostPort(ip, strconv.Itoa(c.opts.Port)),
		timeout: c.opts.CallTimeout,
		limiter: rate.NewLimiter(rate.Limit(c.opts.RateLimitRPS), burst),
	}
	c.bulbs[id] = b
	return b
}

// Bulb is a single WiZ light. It implements device.Light.
type Bulb struct {
	id      device.ID
	addr    string
	timeout time.Duration
	limiter *rate.Limiter
}

var _ device.Light = (*Bulb)(nil)

func (b *Bulb) ID() device.ID { return b.id }

// TurnOn applies a color, brightness or scene.
func (b *Bulb) TurnOn(ctx context.Context, p device.Pilot) error {
	msg, err := setPilotMessage(p)
	if err != nil {
		return err
	}
	_, err = b.call(ctx, "setPilot", msg)
	return err
}

// TurnOff switches the bulb off.
func (b *Bulb) TurnOff(ctx context.Context) error {
	msg, err := turnOffMessage()
	if err != nil {
		return err
	}
	_, err = b.call(ctx, "setPilot", msg)
	return err
}

// UpdateState asks the bulb for its current pilot.
func (b *Bulb) UpdateState(ctx context.Context) (device.State, error) {
	msg, err := getPilotMessage()
	if err != nil {
		return device.State{}, err
	}
	resp, err := b.call(ctx, "getPilot", msg)
	if err != nil {
		return device.State{}, err
	}
	return stateFromPilot(resp.Result)
}

// call sends msg and waits for the matching reply, resending on silence
// until the call deadline. Cancelling ctx aborts the call.
func (b *Bulb) call(ctx context.Context, method string, msg []byte) (*response, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	if err := b.limiter.Wait(ctx); err != nil {
		return nil, b.callErr(ctx, err)
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", b.addr)
	if err != nil {
		return nil, fmt.Errorf("wiz %s: %w", b.id, err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	defer stop()

	deadline, _ := ctx.Deadline()
	buf := make([]byte, maxDatagramBytes)
	for {
		if _, err := conn.Write(msg); err != nil {
			return nil, b.callErr(ctx, err)
		}
		wait := time.Now().Add(resendInterval)
		if wait.After(deadline) {
			wait = deadline
		}
		conn.SetReadDeadline(wait)

		n, err := conn.Read(buf)
		if err != nil {
			if isTimeout(err) && ctx.Err() == nil && time.Now().Before(deadline) {
				log.Trace().Str("device", string(b.id)).Str("method", method).Msg("No reply, resending")
				continue
			}
			return nil, b.callErr(ctx, err)
		}
		return decodeResponse(buf[:n], method)
	}
}

func (b *Bulb) callErr(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	if ctx.Err() != nil || isTimeout(err) {
		return fmt.Errorf("wiz %s: %w after %s", b.id, ErrTimeout, b.timeout)
	}
	return fmt.Errorf("wiz %s: %w", b.id, err)
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
