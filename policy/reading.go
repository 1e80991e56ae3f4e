package policy

import "fmt"

// LinkType identifies the access-network technology a reading was taken on.
// It is a categorical component of the state key and is never binned.
type LinkType string

const (
	// LinkWifi marks readings taken on a Wi-Fi link.
	LinkWifi LinkType = "wifi"
	// LinkCellular marks readings taken on a cellular link.
	LinkCellular LinkType = "cellular"
)

// validLinkTypes maps accepted link type strings. Unexported to prevent mutation.
var validLinkTypes = map[LinkType]bool{
	LinkWifi:     true,
	LinkCellular: true,
}

// IsValidLinkType returns true if the given string is a recognized link type.
func IsValidLinkType(link string) bool {
	return validLinkTypes[LinkType(link)]
}

// ValidLinkTypes returns the recognized link types in declaration order.
func ValidLinkTypes() []LinkType {
	return []LinkType{LinkWifi, LinkCellular}
}

// MetricReading is one immutable sample of live network conditions, produced
// by the caller for each decision. The engine never stores or mutates it.
//
// Values outside their nominal ranges (including NaN and ±Inf) are not
// rejected anywhere in the decision path: encoding clamps them to the edge
// bins so that every reading yields a state key.
type MetricReading struct {
	LatencyMs     float64  // round-trip latency in milliseconds (nominal ≥ 0)
	LossPct       float64  // packet loss percentage (nominal [0, 100])
	BandwidthMbps float64  // available bandwidth in Mbit/s (nominal ≥ 0)
	Link          LinkType // access network type; passes through unbinned
}

// String renders the reading in a compact human-readable form for logs.
func (r MetricReading) String() string {
	return fmt.Sprintf("lat=%.1fms loss=%.2f%% bw=%.1fMbps link=%s",
		r.LatencyMs, r.LossPct, r.BandwidthMbps, r.Link)
}
