// Package artnet provides Art-Net protocol packet building and transmission.
package artnet

import (
	"encoding/binary"
	"fmt"
	"net"
)

const (
	// OpCodeDMX is the Art-Net operation code for DMX data.
	OpCodeDMX uint16 = 0x5000
	// ProtocolVersion is the Art-Net protocol version.
	ProtocolVersion uint16 = 14
	// DMXDataLength is the number of DMX channels per universe.
	DMXDataLength uint16 = 512
	// PacketSize is the total size of an Art-Net DMX packet.
	PacketSize = 18 + DMXDataLength // Header (18) + Data (512)
	// DefaultPort is the standard Art-Net UDP port.
	DefaultPort = 6454

	// MaxSubnet is the highest valid subnet id.
	MaxSubnet = 15
	// MaxUniverse is the highest valid per-subnet universe id.
	MaxUniverse = 15
)

// ArtNetID is the Art-Net packet identifier.
var ArtNetID = []byte{'A', 'r', 't', '-', 'N', 'e', 't', 0x00}

// Address identifies a single DMX output: a 4-bit subnet and a 4-bit
// universe within that subnet, matching Art-Net's SubUni addressing.
type Address struct {
	Subnet   uint8
	Universe uint8
}

// Valid reports whether the address falls within the 0..15/0..15 range.
func (a Address) Valid() bool {
	return a.Subnet <= MaxSubnet && a.Universe <= MaxUniverse
}

// Combined returns the packed 8-bit SubUni field: (subnet<<4)|universe.
func (a Address) Combined() byte {
	return (a.Subnet << 4) | (a.Universe & 0x0f)
}

func (a Address) String() string {
	return fmt.Sprintf("%d.%d", a.Subnet, a.Universe)
}

// BuildDMXPacket creates an Art-Net ArtDMX packet for the given address.
// channels should be exactly 512 bytes; shorter slices are zero-padded,
// longer ones are truncated.
func BuildDMXPacket(addr Address, channels []byte, sequence byte) []byte {
	packet := make([]byte, PacketSize)

	copy(packet[0:8], ArtNetID)
	binary.LittleEndian.PutUint16(packet[8:10], OpCodeDMX)
	binary.BigEndian.PutUint16(packet[10:12], ProtocolVersion)
	packet[12] = sequence
	packet[13] = 0 // physical port
	packet[14] = addr.Combined()
	packet[15] = 0 // net, unused
	binary.BigEndian.PutUint16(packet[16:18], DMXDataLength)

	if len(channels) >= int(DMXDataLength) {
		copy(packet[18:18+DMXDataLength], channels[:DMXDataLength])
	} else {
		copy(packet[18:18+len(channels)], channels)
	}

	return packet
}

// Transport sends built Art-Net packets over UDP, either broadcasting to
// a fixed address or unicasting to a configured receiver.
type Transport struct {
	conn *net.UDPConn
}

// NewTransport dials a UDP socket pointed at host:port. host may be a
// broadcast address ("255.255.255.255") or a specific unicast IPv4.
func NewTransport(host string, port int) (*Transport, error) {
	addr, err := net.ResolveUDPAddr("udp4", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return nil, fmt.Errorf("resolve art-net address: %w", err)
	}

	conn, err := net.DialUDP("udp4", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("dial art-net socket: %w", err)
	}

	return &Transport{conn: conn}, nil
}

// Send writes a pre-built packet to the wire.
func (t *Transport) Send(packet []byte) error {
	if t == nil || t.conn == nil {
		return fmt.Errorf("art-net transport not initialized")
	}
	_, err := t.conn.Write(packet)
	return err
}

// Close closes the underlying socket.
func (t *Transport) Close() error {
	if t == nil || t.conn == nil {
		return nil
	}
	return t.conn.Close()
}
