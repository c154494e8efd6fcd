package discovery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
)

// Service is the mDNS service type brokers advertise.
const Service = "_peerhub._tcp"

const domain = "local."

var ErrNotFound = errors.New("no broker found on the local network")

// Broker is an mDNS answer for a broker instance.
type Broker struct {
	Instance string
	IP       string
	Port     int
}

// Announce advertises a broker listening on port until ctx is done.
func Announce(ctx context.Context, instance string, port int) error {
	server, err := zeroconf.Register(instance, Service, domain, port, []string{"txtv=0", "app=peer-hub"}, nil)
	if err != nil {
		return fmt.Errorf("mdns register: %w", err)
	}
	log.Printf("mdns announcing %s on port %d", instance, port)
	go func() {
		<-ctx.Done()
		server.Shutdown()
	}()
	return nil
}

// Browse collects broker announcements for timeout.
func Browse(ctx context.Context, timeout time.Duration) ([]Broker, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("mdns resolver: %w", err)
	}
	entries := make(chan *zeroconf.ServiceEntry)
	var mu sync.Mutex
	var out []Broker
	go func() {
		for e := range entries {
			mu.Lock()
			for _, ip := range e.AddrIPv4 {
				out = append(out, Broker{Instance: e.Instance, IP: ip.String(), Port: e.Port})
			}
			mu.Unlock()
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := resolver.Browse(ctx, Service, domain, entries); err != nil {
		return nil, fmt.Errorf("mdns browse: %w", err)
	}
	<-ctx.Done()
	mu.Lock()
	defer mu.Unlock()
	return append([]Broker(nil), out...), nil
}

// Find returns the first broker that answers within timeout.
func Find(ctx context.Context, timeout time.Duration) (Broker, error) {
	found, err := Browse(ctx, timeout)
	if err != nil {
		return Broker{}, err
	}
	if len(found) == 0 {
		return Broker{}, ErrNotFound
	}
	return found[0], nil
}
