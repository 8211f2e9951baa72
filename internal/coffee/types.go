// Package coffee holds the storefront's domain types, its error taxonomy and
// the REST client for the order API.
package coffee

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Status is where an order is in the brew pipeline.
type Status uint8

const (
	StatusUnknown Status = iota
	StatusQueued
	StatusGrinding
	StatusBrewing
	StatusFrothing
	StatusReady
)

var statusNames = [...]string{
	StatusUnknown:  "UNKNOWN",
	StatusQueued:   "QUEUED",
	StatusGrinding: "GRINDING",
	StatusBrewing:  "BREWING",
	StatusFrothing: "FROTHING",
	StatusReady:    "READY",
}

var statusEmoji = [...]string{
	StatusUnknown:  "❓",
	StatusQueued:   "🕐",
	StatusGrinding: "⚙️",
	StatusBrewing:  "☕",
	StatusFrothing: "🥛",
	StatusReady:    "✅",
}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return statusNames[StatusUnknown]
}

// Code is the numeric form used by the CLI and accepted by the API.
func (s Status) Code() int { return int(s) }

func (s Status) Valid() bool { return s >= StatusQueued && s <= StatusReady }

func (s Status) Emoji() string {
	if s.Valid() {
		return statusEmoji[s]
	}
	return statusEmoji[StatusUnknown]
}

// Next returns the following pipeline step. READY has none.
func (s Status) Next() (Status, bool) {
	if !s.Valid() || s == StatusReady {
		return s, false
	}
	return s + 1, true
}

// ParseStatus accepts a name (any case) or a code 1..5.
func ParseStatus(v string) (Status, error) {
	v = strings.TrimSpace(v)
	if n, err := strconv.Atoi(v); err == nil {
		if s := Status(n); n >= 0 && n <= 255 && s.Valid() {
			return s, nil
		}
		return StatusUnknown, fmt.Errorf("coffee: status code %d out of range", n)
	}
	up := strings.ToUpper(v)
	for i, name := range statusNames {
		if s := Status(i); s.Valid() && name == up {
			return s, nil
		}
	}
	return StatusUnknown, fmt.Errorf("coffee: unknown status %q", v)
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON takes the status name or its numeric code.
func (s *Status) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	var raw string
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
	} else {
		raw = string(b)
	}
	p, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = p
	return nil
}

// MenuItem is one drink on the menu.
type MenuItem struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
}

// Order is a placed drink order.
type Order struct {
	OrderID      string `json:"orderId"`
	MenuItemName string `json:"menuItemName"`
	Status       Status `json:"status"`
}

type CreateOrderResult struct {
	OrderID string `json:"orderId"`
}

type DeleteResult struct {
	Success bool `json:"success"`
}

// FormatPrice renders a price with two decimals: 4.5 => "4.50".
func FormatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', 2, 64)
}
