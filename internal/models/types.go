// Fleetwatch - Live Vehicle and Region-of-Interest Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetwatch

package models

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// RoiState is the reported state of one region of interest.
type RoiState struct {
	ID    string `json:"id"`
	State string `json:"state"`
}

// Key returns the store identity of the ROI state.
func (r RoiState) Key() string { return r.ID }

// LngLat is a WGS84 coordinate.
type LngLat struct {
	Lng float64 `json:"lng"`
	Lat float64 `json:"lat"`
}

// VehiclePosition is the latest reported position of one vehicle.
type VehiclePosition struct {
	VehicleGid string        `json:"vehicleGid"`
	JourneyGid string        `json:"journeyGid"`
	Speed      NumericString `json:"speed"`
	Pos        LngLat        `json:"pos"`
	Heading    NumericString `json:"heading"`
}

// Key returns the store identity of the position.
func (p VehiclePosition) Key() string { return p.VehicleGid }

// HeadingDegrees returns the heading as a float, or 0 when it does not parse.
func (p VehiclePosition) HeadingDegrees() float64 {
	return p.Heading.Float()
}

// NumericString is a number transported as a string. It unmarshals from a
// JSON string, a JSON number or null, and always marshals as a string.
type NumericString string

// UnmarshalJSON implements json.Unmarshaler.
func (n *NumericString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*n = ""
		return nil
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*n = NumericString(s)
		return nil
	default:
		if _, err := strconv.ParseFloat(string(data), 64); err != nil {
			return fmt.Errorf("numeric string: invalid value %s", data)
		}
		*n = NumericString(data)
		return nil
	}
}

var leadingNumber = regexp.MustCompile(`^\s*[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)

// Float parses the leading number of the value ("12.5deg" is 12.5),
// returning 0 when there is none.
func (n NumericString) Float() float64 {
	m := leadingNumber.FindString(string(n))
	if m == "" {
		return 0
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(m), 64)
	if err != nil {
		return 0
	}
	return f
}
