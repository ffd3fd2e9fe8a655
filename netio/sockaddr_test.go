package netio

import (
	"net"
	"testing"

	"github.com/kylelemons/godebug/pretty"
)

// TestSockaddrRoundTrip checks that encodeSockaddr/decodeSockaddr agree on
// the wire format for both address families: encode what a caller would
// pass to Bind/Connect, decode it as if the kernel had filled the same
// bytes in (e.g. after accept(2)), and diff the result against what went
// in. pretty.Compare gives a field-by-field diff instead of just "not
// equal" when a family's byte layout regresses.
func TestSockaddrRoundTrip(t *testing.T) {
	cases := []struct {
		name    string
		ip      net.IP
		port    int
		network string
		want    net.Addr
	}{
		{
			name:    "ipv4 tcp",
			ip:      net.ParseIP("127.0.0.1"),
			port:    8080,
			network: "tcp",
			want:    &net.TCPAddr{IP: net.ParseIP("127.0.0.1").To4(), Port: 8080},
		},
		{
			name:    "ipv6 udp",
			ip:      net.ParseIP("::1"),
			port:    53,
			network: "udp",
			want:    &net.UDPAddr{IP: net.ParseIP("::1"), Port: 53},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			buf, err := encodeSockaddr(tc.ip, tc.port, "")
			if err != nil {
				t.Fatalf("encodeSockaddr: %v", err)
			}
			got, err := decodeSockaddr(buf, tc.network)
			if err != nil {
				t.Fatalf("decodeSockaddr: %v", err)
			}
			if diff := pretty.Compare(got, tc.want); diff != "" {
				t.Fatalf("round-tripped address differs (-got +want):\n%s", diff)
			}
		})
	}
}

// TestDecodeSockaddrRejectsShortBuffer guards the length checks decodeSockaddr
// relies on instead of trusting the kernel never writes a truncated sockaddr.
func TestDecodeSockaddrRejectsShortBuffer(t *testing.T) {
	if _, err := decodeSockaddr(nil, "tcp"); err == nil {
		t.Fatal("expected an error decoding an empty buffer")
	}
	if _, err := decodeSockaddr(make([]byte, 3), "tcp"); err == nil {
		t.Fatal("expected an error decoding a buffer shorter than the family header")
	}
}
