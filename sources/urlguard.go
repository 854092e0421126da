package sources

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
)

// ErrPrivateAddress is returned for URLs that resolve to loopback, link-local
// or RFC 1918 addresses.
var ErrPrivateAddress = errors.New("sources: URL targets a private or loopback address")

// ErrScheme is returned for URLs that are not http or https.
var ErrScheme = errors.New("sources: only http and https URLs can be fetched")

var privateNets = func() []*net.IPNet {
	var nets []*net.IPNet
	for _, cidr := range []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16", "169.254.0.0/16", "fc00::/7", "::1/128"} {
		_, n, err := net.ParseCIDR(cidr)
		if err == nil {
			nets = append(nets, n)
		}
	}
	return nets
}()

// PublicURL rejects URLs a crawler must not follow: non-HTTP schemes, and
// hosts that resolve to private addresses. Unresolvable hosts pass; the
// fetch itself fails later.
func PublicURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("sources: invalid URL: %w", err)
	}
	if s := strings.ToLower(u.Scheme); s != "http" && s != "https" {
		return ErrScheme
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("sources: URL %q has no host", rawURL)
	}
	if ip := net.ParseIP(host); ip != nil {
		if privateIP(ip) {
			return ErrPrivateAddress
		}
		return nil
	}
	addrs, err := net.LookupHost(host)
	if err != nil {
		return nil
	}
	for _, a := range addrs {
		if ip := net.ParseIP(a); ip != nil && privateIP(ip) {
			return ErrPrivateAddress
		}
	}
	return nil
}

// AnyURL accepts every http and https URL. Tests and intranet crawls use it
// in place of PublicURL.
func AnyURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("sources: invalid URL: %w", err)
	}
	if s := strings.ToLower(u.Scheme); s != "http" && s != "https" {
		return ErrScheme
	}
	return nil
}

func privateIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}
	for _, n := range privateNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// readLimited reads at most max bytes and fails when r holds more.
func readLimited(r io.Reader, max int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > max {
		return nil, fmt.Errorf("sources: body exceeds %d bytes", max)
	}
	return data, nil
}
