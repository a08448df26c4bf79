// Package events defines the structured network observations fed to the
// streaming detector and their parsing from flow-log records.
package events

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimestampLayout is the wire format for flow-log timestamps.
const TimestampLayout = "2006-01-02T15:04:05"

// Protocol identifies the transport protocol of a network event.
type Protocol int

const (
	ProtocolTCP Protocol = iota
	ProtocolUDP
	ProtocolICMP
	ProtocolOther
)

// String returns the canonical upper-case protocol name.
func (p Protocol) String() string {
	switch p {
	case ProtocolTCP:
		return "TCP"
	case ProtocolUDP:
		return "UDP"
	case ProtocolICMP:
		return "ICMP"
	default:
		return "OTHER"
	}
}

// Float returns the numeric encoding used in feature vectors.
func (p Protocol) Float() float64 {
	return float64(p)
}

// MarshalJSON renders the protocol as its canonical name.
func (p Protocol) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(p.String())), nil
}

// UnmarshalJSON accepts a protocol name.
func (p *Protocol) UnmarshalJSON(data []byte) error {
	name, err := strconv.Unquote(string(data))
	if err != nil {
		return fmt.Errorf("events: protocol must be a string: %w", err)
	}
	*p = ParseProtocol(name)
	return nil
}

// ParseProtocol maps a protocol name to its Protocol value. Unknown names
// map to ProtocolOther.
func ParseProtocol(s string) Protocol {
	switch strings.ToUpper(s) {
	case "TCP":
		return ProtocolTCP
	case "UDP":
		return ProtocolUDP
	case "ICMP":
		return ProtocolICMP
	default:
		return ProtocolOther
	}
}

// NetworkEvent is one observed network flow.
type NetworkEvent struct {
	Timestamp time.Time `json:"timestamp"`
	SrcIP     string    `json:"src_ip"`
	SrcPort   uint16    `json:"src_port"`
	DstIP     string    `json:"dst_ip"`
	DstPort   uint16    `json:"dst_port"`
	Protocol  Protocol  `json:"protocol"`
	Bytes     uint64    `json:"bytes"`
	Duration  float64   `json:"duration"`
}

// String formats the event for console output.
func (e NetworkEvent) String() string {
	return fmt.Sprintf("%s:%d -> %s:%d | %s | %d bytes | %.3fs",
		e.SrcIP, e.SrcPort, e.DstIP, e.DstPort, e.Protocol, e.Bytes, e.Duration)
}

// ParseLine parses one whitespace-separated flow record:
//
//	timestamp src_ip src_port dst_ip dst_port protocol bytes duration
//
// Example:
//
//	2024-01-15T10:30:00 192.168.1.10 54321 10.0.0.1 443 TCP 1500 0.05
//
// Blank lines and '#' comments return (nil, nil); malformed records return
// an error.
func ParseLine(line string) (*NetworkEvent, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil, nil
	}

	parts := strings.Fields(line)
	if len(parts) < 8 {
		return nil, fmt.Errorf("events: record has %d fields, want 8", len(parts))
	}

	timestamp, err := time.Parse(TimestampLayout, parts[0])
	if err != nil {
		return nil, fmt.Errorf("events: parse timestamp %q: %w", parts[0], err)
	}
	srcPort, err := strconv.ParseUint(parts[2], 10, 16)
	if err != nil {
		return nil, fmt.Errorf("events: parse src port %q: %w", parts[2], err)
	}
	dstPort, err := strconv.ParseUint(parts[4], 10, 16)
	if err != nil {
		return nil, fmt.Errorf("events: parse dst port %q: %w", parts[4], err)
	}
	bytes, err := strconv.ParseUint(parts[6], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("events: parse bytes %q: %w", parts[6], err)
	}
	duration, err := strconv.ParseFloat(parts[7], 64)
	if err != nil {
		return nil, fmt.Errorf("events: parse duration %q: %w", parts[7], err)
	}

	return &NetworkEvent{
		Timestamp: timestamp,
		SrcIP:     parts[1],
		SrcPort:   uint16(srcPort),
		DstIP:     parts[3],
		DstPort:   uint16(dstPort),
		Protocol:  ParseProtocol(parts[5]),
		Bytes:     bytes,
		Duration:  duration,
	}, nil
}
