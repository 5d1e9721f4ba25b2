package models

import (
	"fmt"
	"strconv"
)

// Credit is an amount of time credit in tenths of an hour.
// Integer storage keeps repeated settlements free of float drift.
type Credit int64

// CreditForMinutes converts presence minutes into credit using
// round(minutes / 60 * 10) / 10 with halves rounded up.
func CreditForMinutes(minutes int) Credit {
	if minutes <= 0 {
		return 0
	}
	return Credit((minutes + 3) / 6)
}

// Hours returns the credit as a decimal number of hours.
func (c Credit) Hours() float64 {
	return float64(c) / 10
}

func (c Credit) String() string {
	sign := ""
	v := int64(c)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%d", sign, v/10, v%10)
}

// MarshalJSON renders the credit as hours, e.g. 1.1.
func (c Credit) MarshalJSON() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Credit) UnmarshalJSON(data []byte) error {
	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("credit: %w", err)
	}
	if f < 0 {
		*c = Credit(f*10 - 0.5)
	} else {
		*c = Credit(f*10 + 0.5)
	}
	return nil
}
