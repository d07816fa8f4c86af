// Package polyline encodes and decodes route geometry in the encoded
// polyline format (precision 5) used by directions providers.
package polyline

import (
	"errors"
	"math"

	"github.com/paulmach/orb"
)

// ErrMalformed is returned when an encoded string ends inside a value.
var ErrMalformed = errors.New("malformed polyline")

const factor = 1e5

// Decode decodes an encoded polyline into [lon, lat] points.
func Decode(encoded string) (orb.LineString, error) {
	if encoded == "" {
		return nil, nil
	}

	var line orb.LineString
	index, lat, lon := 0, 0, 0

	for index < len(encoded) {
		latDelta, next, ok := decodeValue(encoded, index)
		if !ok {
			return nil, ErrMalformed
		}
		lonDelta, next, ok := decodeValue(encoded, next)
		if !ok {
			return nil, ErrMalformed
		}
		index = next
		lat += latDelta
		lon += lonDelta

		line = append(line, orb.Point{float64(lon) / factor, float64(lat) / factor})
	}

	return line, nil
}

// decodeValue reads one zig-zag encoded delta starting at index.
func decodeValue(encoded string, index int) (value, next int, ok bool) {
	shift, result := 0, 0
	for index < len(encoded) {
		b := int(encoded[index]) - 63
		index++
		result |= (b & 0x1f) << shift
		shift += 5
		if b < 0x20 {
			if result&1 != 0 {
				return ^(result >> 1), index, true
			}
			return result >> 1, index, true
		}
	}
	return 0, index, false
}

// Encode encodes [lon, lat] points as a polyline.
func Encode(line orb.LineString) string {
	if len(line) == 0 {
		return ""
	}

	buf := make([]byte, 0, len(line)*4)
	prevLat, prevLon := 0, 0
	for _, p := range line {
		lat := int(math.Round(p.Lat() * factor))
		lon := int(math.Round(p.Lon() * factor))
		buf = encodeValue(buf, lat-prevLat)
		buf = encodeValue(buf, lon-prevLon)
		prevLat, prevLon = lat, lon
	}
	return string(buf)
}

func encodeValue(buf []byte, value int) []byte {
	if value < 0 {
		value = ^(value << 1)
	} else {
		value <<= 1
	}
	for value >= 0x20 {
		buf = append(buf, byte((value&0x1f)|0x20)+63)
		value >>= 5
	}
	return append(buf, byte(value)+63)
}
