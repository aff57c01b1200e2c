// Package discovery advertises the canvas server on the local network over
// mDNS and lets agents find it.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/grandcat/zeroconf"
)

const domain = "local."

var ErrNotFound = errors.New("no canvas server found")

// Advertise registers the server under service. Call Shutdown on the
// returned server to withdraw it.
func Advertise(instance, service, addr, board string) (*zeroconf.Server, error) {
	port, err := Port(addr)
	if err != nil {
		return nil, err
	}
	if instance == "" {
		host, _ := os.Hostname()
		instance = fmt.Sprintf("%s-%s", "collabcanvas", host)
	}
	server, err := zeroconf.Register(instance, service, domain, port, []string{"board=" + board, "path=/ws"}, nil)
	if err != nil {
		return nil, fmt.Errorf("register mDNS service %s: %w", service, err)
	}
	return server, nil
}

// Browse returns the websocket URL of the first server that answers
// before ctx expires.
func Browse(ctx context.Context, service string) (string, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return "", fmt.Errorf("mDNS resolver: %w", err)
	}
	entries := make(chan *zeroconf.ServiceEntry)
	if err := resolver.Browse(ctx, service, domain, entries); err != nil {
		return "", fmt.Errorf("browse %s: %w", service, err)
	}
	for {
		select {
		case <-ctx.Done():
			return "", ErrNotFound
		case entry, ok := <-entries:
			if !ok {
				return "", ErrNotFound
			}
			if url, ok := EntryURL(entry); ok {
				return url, nil
			}
		}
	}
}

// EntryURL builds ws://host:port/path from an mDNS answer.
func EntryURL(e *zeroconf.ServiceEntry) (string, bool) {
	if e == nil || e.Port == 0 {
		return "", false
	}
	var ip net.IP
	switch {
	case len(e.AddrIPv4) > 0:
		ip = e.AddrIPv4[0]
	case len(e.AddrIPv6) > 0:
		ip = e.AddrIPv6[0]
	default:
		return "", false
	}
	path := "/ws"
	for _, txt := range e.Text {
		if len(txt) > 5 && txt[:5] == "path=" {
			path = txt[5:]
		}
	}
	return "ws://" + net.JoinHostPort(ip.String(), strconv.Itoa(e.Port)) + path, true
}

// Port extracts the numeric port of a listen address such as ":3001".
func Port(addr string) (int, error) {
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, fmt.Errorf("listen address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(p)
	if err != nil || port <= 0 || port > 65535 {
		return 0, fmt.Errorf("listen address %q: bad port", addr)
	}
	return port, nil
}
