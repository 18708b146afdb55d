// Package hasher computes the deterministic MasterProperty fingerprint.
// Room number is deliberately excluded: sites disagree on whether to
// publish it, so including it would fragment the same physical unit across
// listings.
package hasher

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// absentSentinel is written into the hash input for any field the caller
// does not supply, keeping every hash a fixed-order tuple regardless of
// which fields a given site publishes.
const absentSentinel = "<absent>"

// Input carries the optional attributes that make up a property hash. A nil
// pointer/empty string means "absent" for that field.
type Input struct {
	BuildingID uint64
	Floor      *int
	Area       *float64
	Layout     string
	Direction  string
}

// Hash computes H(building_id, floor, area_rounded_to_2dp, layout_upper_no_space,
// direction_no_space) as a SHA256 hex digest.
func Hash(in Input) string {
	floorPart := absentSentinel
	if in.Floor != nil {
		floorPart = strconv.Itoa(*in.Floor)
	}

	areaPart := absentSentinel
	if in.Area != nil {
		rounded := roundTo2dp(*in.Area)
		areaPart = strconv.FormatFloat(rounded, 'f', 2, 64)
	}

	layoutPart := absentSentinel
	if l := normalizeForHash(in.Layout); l != "" {
		layoutPart = l
	}

	directionPart := absentSentinel
	if d := normalizeForHash(in.Direction); d != "" {
		directionPart = d
	}

	input := fmt.Sprintf("%d|%s|%s|%s|%s", in.BuildingID, floorPart, areaPart, layoutPart, directionPart)
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

func normalizeForHash(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "　", "")
	return s
}

func roundTo2dp(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}
