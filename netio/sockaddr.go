package netio

import (
	"encoding/binary"
	"net"
	"syscall"
)

// Wire sizes of struct sockaddr_in/sockaddr_in6, used directly rather than
// through golang.org/x/sys/unix's equivalents: an SQE's address field is a
// raw pointer into exactly these bytes, and building them by hand here
// keeps this package's only sockaddr dependency on the kernel ABI, not on
// whatever struct layout a particular unix package version happens to pick.
const (
	afInet  = 2
	afInet6 = 10

	sizeofSockaddrInet4 = 16
	sizeofSockaddrInet6 = 28
)

// encodeSockaddr marshals addr into the kernel's wire format. Callers must
// keep the returned slice alive and unmoved until the operation referencing
// it completes, the same constraint as every buffer this runtime submits.
func encodeSockaddr(ip net.IP, port int, zone string) ([]byte, error) {
	if ip4 := ip.To4(); ip4 != nil {
		buf := make([]byte, sizeofSockaddrInet4)
		binary.LittleEndian.PutUint16(buf[0:2], afInet)
		binary.BigEndian.PutUint16(buf[2:4], uint16(port))
		copy(buf[4:8], ip4)
		return buf, nil
	}
	ip6 := ip.To16()
	if ip6 == nil {
		return nil, syscall.EINVAL
	}
	buf := make([]byte, sizeofSockaddrInet6)
	binary.LittleEndian.PutUint16(buf[0:2], afInet6)
	binary.BigEndian.PutUint16(buf[2:4], uint16(port))
	copy(buf[8:24], ip6)
	if zone != "" {
		if iface, err := net.InterfaceByName(zone); err == nil {
			binary.LittleEndian.PutUint32(buf[24:28], uint32(iface.Index))
		}
	}
	return buf, nil
}

func encodeTCPAddr(addr *net.TCPAddr) ([]byte, error) {
	return encodeSockaddr(addr.IP, addr.Port, addr.Zone)
}

func encodeUDPAddr(addr *net.UDPAddr) ([]byte, error) {
	return encodeSockaddr(addr.IP, addr.Port, addr.Zone)
}

// decodeSockaddr unmarshals a buffer the kernel filled in (e.g. after
// accept(2) or recvfrom(2)) back into a net.Addr. network selects whether
// the result is reported as a *net.TCPAddr or *net.UDPAddr.
func decodeSockaddr(buf []byte, network string) (net.Addr, error) {
	if len(buf) < 4 {
		return nil, syscall.EINVAL
	}
	family := binary.LittleEndian.Uint16(buf[0:2])
	switch family {
	case afInet:
		if len(buf) < sizeofSockaddrInet4 {
			return nil, syscall.EINVAL
		}
		port := binary.BigEndian.Uint16(buf[2:4])
		ip := net.IP(append([]byte(nil), buf[4:8]...))
		return newAddr(network, ip, int(port), ""), nil
	case afInet6:
		if len(buf) < sizeofSockaddrInet6 {
			return nil, syscall.EINVAL
		}
		port := binary.BigEndian.Uint16(buf[2:4])
		ip := net.IP(append([]byte(nil), buf[8:24]...))
		return newAddr(network, ip, int(port), ""), nil
	default:
		return nil, syscall.EAFNOSUPPORT
	}
}

func newAddr(network string, ip net.IP, port int, zone string) net.Addr {
	if network == "udp" {
		return &net.UDPAddr{IP: ip, Port: port, Zone: zone}
	}
	return &net.TCPAddr{IP: ip, Port: port, Zone: zone}
}

// sockaddrLen returns the buffer size large enough for any sockaddr this
// package produces, used to size the scratch buffer accept(2)/getsockname
// style operations write their result into.
const sockaddrLen = sizeofSockaddrInet6
