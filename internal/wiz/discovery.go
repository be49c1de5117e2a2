package wiz

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lightseq/internal/device"
)

var _ device.Discoverer = (*Client)(nil)

// Discover broadcasts a registration request and collects the address of
// every bulb that answers within the discovery wait. An empty result is not an
// error here; callers decide whether to retry.
func (c *Client) Discover(ctx context.Context, broadcast string) ([]device.Light, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.DiscoveryWait)
	defer cancel()

	target, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(broadcast, strconv.Itoa(c.opts.Port)))
	if err != nil {
		return nil, fmt.Errorf("wiz discovery: %w", err)
	}
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{})
	if err != nil {
		return nil, fmt.Errorf("wiz discovery: %w", err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	defer stop()

	msg, err := registrationMessage()
	if err != nil {
		return nil, err
	}

	found := make(map[string]struct{})
	buf := make([]byte, maxDatagramBytes)
	nextSend := time.Time{}
	for ctx.Err() == nil {
		if now := time.Now(); !now.Before(nextSend) {
			if _, err := conn.WriteToUDP(msg, target); err != nil {
				return nil, fmt.Errorf("wiz discovery: %w", err)
			}
			nextSend = now.Add(resendInterval * 2)
		}
		readBy := nextSend
		if dl, ok := ctx.Deadline(); ok && dl.Before(readBy) {
			readBy = dl
		}
		conn.SetReadDeadline(readBy)

		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			if isTimeout(err) {
				continue
			}
			if ctx.Err() != nil {
				break
			}
			return nil, fmt.Errorf("wiz discovery: %w", err)
		}
		if _, err := decodeResponse(buf[:n], "registration"); err != nil {
			log.Debug().Err(err).Str("from", from.String()).Msg("Ignoring discovery reply")
			continue
		}
		ip := from.IP.String()
		if _, seen := found[ip]; !seen {
			log.Debug().Str("device", ip).Msg("Bulb answered discovery")
			found[ip] = struct{}{}
		}
	}

	if errors.Is(ctx.Err(), context.Canceled) {
		return nil, ctx.Err()
	}

	ips := make([]string, 0, len(found))
	for ip := range found {
		ips = append(ips, ip)
	}
	sort.Strings(ips)

	lights := make([]device.Light, len(ips))
	for i, ip := range ips {
		lights[i] = c.Bulb(ip)
	}
	return lights, nil
}
