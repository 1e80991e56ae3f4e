package policy

import (
	"fmt"
	"strconv"
	"strings"
)

// StateKey is the discretized network condition a decision is made under:
// one bin index per continuous metric plus the link type. It is a plain
// comparable struct so it can key the action-value table directly; the
// encoder and the table can never drift apart on formatting, unlike a
// string-composed key.
type StateKey struct {
	Lat  int      // latency bin index, 0 = best (lowest latency)
	Loss int      // loss bin index, 0 = best (lowest loss)
	BW   int      // bandwidth bin index, 0 = lowest bandwidth
	Link LinkType // categorical, never binned
}

// String renders the canonical wire form used by the snapshot file
// contract: "<lat>|<loss>|<bw>|<link>", e.g. "1|0|2|wifi".
func (k StateKey) String() string {
	return fmt.Sprintf("%d|%d|%d|%s", k.Lat, k.Loss, k.BW, k.Link)
}

// ParseStateKey parses the canonical wire form back into a StateKey,
// checking each bin index against the bin counts declared by bounds and
// the link type against the known set. Used when loading a snapshot file;
// a failure there invalidates the whole file.
func ParseStateKey(s string, bounds BinBoundaries) (StateKey, error) {
	parts := strings.Split(s, "|")
	if len(parts) != 4 {
		return StateKey{}, invalidModelf("state key %q: expected 4 '|'-separated fields, got %d", s, len(parts))
	}
	latBins, lossBins, bwBins := bounds.binCounts()
	lat, err := parseBinIndex(s, "latency", parts[0], latBins)
	if err != nil {
		return StateKey{}, err
	}
	loss, err := parseBinIndex(s, "loss", parts[1], lossBins)
	if err != nil {
		return StateKey{}, err
	}
	bw, err := parseBinIndex(s, "bandwidth", parts[2], bwBins)
	if err != nil {
		return StateKey{}, err
	}
	if !IsValidLinkType(parts[3]) {
		return StateKey{}, invalidModelf("state key %q: unknown link type %q", s, parts[3])
	}
	return StateKey{Lat: lat, Loss: loss, BW: bw, Link: LinkType(parts[3])}, nil
}

// parseBinIndex parses one bin index field and range-checks it against the
// declared bin count for its axis.
func parseBinIndex(key, axis, field string, bins int) (int, error) {
	idx, err := strconv.Atoi(field)
	if err != nil {
		return 0, invalidModelf("state key %q: %s bin %q is not an integer", key, axis, field)
	}
	if idx < 0 || idx >= bins {
		return 0, invalidModelf("state key %q: %s bin %d out of range [0, %d]", key, axis, idx, bins-1)
	}
	return idx, nil
}
