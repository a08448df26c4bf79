// Package pcap feeds network observations from PCAP files or live capture.
package pcap

import (
	"context"
	"errors"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"github.com/flowsentry/flowsentry/pkg/events"
)

// Reader reads packets from PCAP files or live interfaces and converts them
// to NetworkEvents. Packet duration is approximated by the inter-arrival
// gap, since a single packet carries no flow duration of its own.
type Reader struct {
	handle        *pcap.Handle
	lastTimestamp time.Time
}

// NewFileReader creates a reader for PCAP files.
func NewFileReader(filename string) (*Reader, error) {
	handle, err := pcap.OpenOffline(filename)
	if err != nil {
		return nil, err
	}

	return &Reader{handle: handle}, nil
}

// NewLiveReader creates a reader for live packet capture.
func NewLiveReader(iface string, snaplen int32, promisc bool, timeout time.Duration) (*Reader, error) {
	handle, err := pcap.OpenLive(iface, snaplen, promisc, timeout)
	if err != nil {
		return nil, err
	}

	return &Reader{handle: handle}, nil
}

// Events returns a channel of observations built from captured packets.
// Packets without a network layer are dropped.
func (r *Reader) Events(ctx context.Context) (<-chan events.NetworkEvent, error) {
	if r.handle == nil {
		return nil, errors.New("pcap: reader not initialized")
	}

	out := make(chan events.NetworkEvent, 1000)
	packetSource := gopacket.NewPacketSource(r.handle, r.handle.LinkType())

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case packet, ok := <-packetSource.Packets():
				if !ok {
					return
				}
				event, ok := r.eventFromPacket(packet)
				if !ok {
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Close releases resources.
func (r *Reader) Close() error {
	if r.handle != nil {
		r.handle.Close()
	}
	return nil
}

// eventFromPacket builds a NetworkEvent from one captured packet.
func (r *Reader) eventFromPacket(packet gopacket.Packet) (events.NetworkEvent, bool) {
	netLayer := packet.NetworkLayer()
	if netLayer == nil {
		return events.NetworkEvent{}, false
	}

	flow := netLayer.NetworkFlow()
	event := events.NetworkEvent{
		SrcIP:    flow.Src().String(),
		DstIP:    flow.Dst().String(),
		Protocol: events.ProtocolOther,
		Bytes:    uint64(len(packet.Data())),
	}

	if metadata := packet.Metadata(); metadata != nil && !metadata.Timestamp.IsZero() {
		event.Timestamp = metadata.Timestamp
		if !r.lastTimestamp.IsZero() {
			event.Duration = metadata.Timestamp.Sub(r.lastTimestamp).Seconds()
		}
		r.lastTimestamp = metadata.Timestamp
	}

	if tcpLayer := packet.Layer(layers.LayerTypeTCP); tcpLayer != nil {
		tcp := tcpLayer.(*layers.TCP)
		event.Protocol = events.ProtocolTCP
		event.SrcPort = uint16(tcp.SrcPort)
		event.DstPort = uint16(tcp.DstPort)
	} else if udpLayer := packet.Layer(layers.LayerTypeUDP); udpLayer != nil {
		udp := udpLayer.(*layers.UDP)
		event.Protocol = events.ProtocolUDP
		event.SrcPort = uint16(udp.SrcPort)
		event.DstPort = uint16(udp.DstPort)
	} else if packet.Layer(layers.LayerTypeICMPv4) != nil {
		event.Protocol = events.ProtocolICMP
	}

	return event, true
}
