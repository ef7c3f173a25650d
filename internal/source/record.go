// Package source reads bin collection schedules from the City of Calgary
// Open Data portal and turns them into calculator inputs.
package source

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrSchemaMismatch is returned when fetched data does not have the
	// expected shape. No partial results accompany it.
	ErrSchemaMismatch = errors.New("upstream schema mismatch")

	// ErrMissingCommodity is returned when one of the three carts is absent.
	ErrMissingCommodity = errors.New("missing commodity")

	// ErrUpstream is returned for transport and HTTP status failures.
	ErrUpstream = errors.New("upstream unavailable")
)

// Commodity identifies a cart.
type Commodity string

const (
	CommodityBlack Commodity = "Black"
	CommodityBlue  Commodity = "Blue"
	CommodityGreen Commodity = "Green"
)

// Commodities returns the carts in display order.
func Commodities() []Commodity {
	return []Commodity{CommodityBlack, CommodityBlue, CommodityGreen}
}

// Label returns a human readable cart description.
func (c Commodity) Label() string {
	switch c {
	case CommodityBlack:
		return "Black cart (garbage)"
	case CommodityBlue:
		return "Blue cart (recycling)"
	case CommodityGreen:
		return "Green cart (food and yard waste)"
	default:
		return string(c)
	}
}

// DayCode is clect_day_code, which the portal sends either as a number or
// as a numeric string.
type DayCode int

// UnmarshalJSON accepts 3 and "3".
func (d *DayCode) UnmarshalJSON(data []byte) error {
	raw := bytes.TrimSpace(data)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		raw = []byte(strings.TrimSpace(s))
	}

	f, err := strconv.ParseFloat(string(raw), 64)
	if err != nil || math.IsInf(f, 0) || f != math.Trunc(f) {
		return fmt.Errorf("clect_day_code %s is not a whole number", data)
	}
	*d = DayCode(f)
	return nil
}

// Record is one row of the collection schedule dataset. Fields are pointers
// so a missing key can be told apart from an empty string.
type Record struct {
	Commodity       *string  `json:"commodity" validate:"required,oneof=Black Blue Green"`
	CurrentSeason   *string  `json:"current_season" validate:"required"`
	FrequencyWinter *string  `json:"clect_int_winter" validate:"required"`
	DayWinter       *string  `json:"collection_day_winter" validate:"required"`
	FrequencySummer *string  `json:"clect_int_summer" validate:"required"`
	DaySummer       *string  `json:"collection_day_summer" validate:"required"`
	DayCode         *DayCode `json:"clect_day_code" validate:"required"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Decode parses and validates a JSON array of records.
func Decode(data []byte) ([]Record, error) {
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}
	if err := Validate(records); err != nil {
		return nil, err
	}
	return records, nil
}

// Validate checks every record and fails on the first invalid one.
func Validate(records []Record) error {
	if records == nil {
		return fmt.Errorf("%w: expected an array of records", ErrSchemaMismatch)
	}
	for i := range records {
		if err := validate.Struct(&records[i]); err != nil {
			return fmt.Errorf("%w: record %d: %v", ErrSchemaMismatch, i, err)
		}
	}
	return nil
}

// CommodityName returns the record's cart, or "" if unset.
func (r Record) CommodityName() Commodity {
	if r.Commodity == nil {
		return ""
	}
	return Commodity(*r.Commodity)
}
