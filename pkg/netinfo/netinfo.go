package netinfo

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/pion/stun"
)

// DefaultSTUNServer answers binding requests for PublicIP.
const DefaultSTUNServer = "stun.l.google.com:19302"

var ErrNoAddress = errors.New("no active IPv4 address")

// LocalIP returns the first non-loopback IPv4 address on an active interface.
func LocalIP() (string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "", err
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ip := ipv4(addr); ip != "" {
				return ip, nil
			}
		}
	}
	return "", ErrNoAddress
}

func ipv4(addr net.Addr) string {
	var ip net.IP
	switch v := addr.(type) {
	case *net.IPNet:
		ip = v.IP
	case *net.IPAddr:
		ip = v.IP
	}
	if ip == nil || ip.IsLoopback() {
		return ""
	}
	if ip = ip.To4(); ip == nil {
		return ""
	}
	return ip.String()
}

// PublicIP asks a STUN server for the address this host is seen from.
// An empty server uses DefaultSTUNServer.
func PublicIP(server string, timeout time.Duration) (string, error) {
	if server == "" {
		server = DefaultSTUNServer
	}
	d := &net.Dialer{Timeout: timeout}
	conn, err := d.Dial("udp4", server)
	if err != nil {
		return "", fmt.Errorf("stun dial %s: %w", server, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(timeout))

	c, err := stun.NewClient(conn)
	if err != nil {
		return "", fmt.Errorf("stun client: %w", err)
	}
	defer c.Close()

	var ip string
	var reqErr error
	err = c.Do(stun.MustBuild(stun.TransactionID, stun.BindingRequest), func(res stun.Event) {
		if res.Error != nil {
			reqErr = res.Error
			return
		}
		var xor stun.XORMappedAddress
		if err := xor.GetFrom(res.Message); err != nil {
			reqErr = err
			return
		}
		ip = xor.IP.String()
	})
	if err != nil {
		return "", fmt.Errorf("stun transaction: %w", err)
	}
	if reqErr != nil {
		return "", reqErr
	}
	if ip == "" {
		return "", errors.New("stun returned empty address")
	}
	return ip, nil
}

// IsPrivate reports loopback, link-local and RFC 1918 / RFC 4193 addresses.
func IsPrivate(s string) bool {
	ip := net.ParseIP(s)
	if ip == nil {
		return false
	}
	return ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast()
}

// IsPublic reports whether s is a routable unicast address.
func IsPublic(s string) bool {
	ip := net.ParseIP(s)
	if ip == nil || ip.IsUnspecified() || ip.IsMulticast() {
		return false
	}
	return !IsPrivate(s)
}

// ResolvePublic turns a --public-ip flag value into an address: "auto" asks
// STUN and keeps the answer only if it differs from localIP, anything else is
// returned as given.
func ResolvePublic(flag, localIP, server string, timeout time.Duration) (string, error) {
	if flag != "auto" {
		return flag, nil
	}
	ip, err := PublicIP(server, timeout)
	if err != nil {
		return "", err
	}
	if ip == localIP || !IsPublic(ip) {
		return "", nil
	}
	return ip, nil
}
