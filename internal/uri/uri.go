// Package uri parses channel URIs of the form used to address streams,
// e.g. "aeron:udp?endpoint=localhost:54325" or "aeron:ipc".
package uri

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

const scheme = "aeron"

// Media selects the transport a channel rides on.
const (
	MediaUDP = "udp"
	MediaIPC = "ipc"
)

// ChannelURI is a parsed channel address. Two URIs with the same
// Canonical() form name the same channel.
type ChannelURI struct {
	Media    string
	Endpoint string            // host:port for udp media, empty for ipc
	Params   map[string]string // remaining query parameters, may be nil
}

// Parse validates and decomposes a channel URI string.
func Parse(channel string) (*ChannelURI, error) {
	rest, ok := strings.CutPrefix(channel, scheme+":")
	if !ok {
		return nil, fmt.Errorf("channel %q: scheme must be %q", channel, scheme)
	}
	media, query, _ := strings.Cut(rest, "?")
	u := &ChannelURI{Media: media}

	switch media {
	case MediaUDP, MediaIPC:
	default:
		return nil, fmt.Errorf("channel %q: unknown media %q", channel, media)
	}

	if query != "" {
		u.Params = make(map[string]string)
		for _, kv := range strings.Split(query, "|") {
			k, v, found := strings.Cut(kv, "=")
			if !found || k == "" {
				return nil, fmt.Errorf("channel %q: malformed parameter %q", channel, kv)
			}
			u.Params[k] = v
		}
	}

	if ep, ok := u.Params["endpoint"]; ok {
		host, port, err := net.SplitHostPort(ep)
		if err != nil {
			return nil, fmt.Errorf("channel %q: bad endpoint: %w", channel, err)
		}
		if _, err := strconv.ParseUint(port, 10, 16); err != nil {
			return nil, fmt.Errorf("channel %q: bad endpoint port %q", channel, port)
		}
		u.Endpoint = net.JoinHostPort(host, port)
		delete(u.Params, "endpoint")
	}

	if media == MediaUDP && u.Endpoint == "" {
		return nil, fmt.Errorf("channel %q: udp media requires an endpoint", channel)
	}
	if media == MediaIPC && u.Endpoint != "" {
		return nil, fmt.Errorf("channel %q: ipc media takes no endpoint", channel)
	}
	return u, nil
}

// Canonical returns the normalized URI string for identity comparison.
func (u *ChannelURI) Canonical() string {
	var b strings.Builder
	b.WriteString(scheme)
	b.WriteByte(':')
	b.WriteString(u.Media)
	if u.Endpoint != "" {
		b.WriteString("?endpoint=")
		b.WriteString(u.Endpoint)
	}
	return b.String()
}

// Fingerprint hashes a canonical channel plus stream id into the 64-bit
// key used for registry lookup.
func Fingerprint(canonical string, streamID int32) uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(canonical)
	_, _ = h.WriteString("|")
	_, _ = h.WriteString(strconv.FormatInt(int64(streamID), 10))
	return h.Sum64()
}
