package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidWaitDuration is returned for malformed wait tokens.
var ErrInvalidWaitDuration = errors.New("invalid wait duration")

// ParseWaitDuration parses a wait token.
//
// Accepted forms are Go durations ("90m", "24h"), bare numbers meaning hours ("24", "1.5")
// and day counts ("2d").
func ParseWaitDuration(token string) (time.Duration, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidWaitDuration)
	}

	if hours, err := strconv.ParseFloat(token, 64); err == nil {
		return checkPositive(token, time.Duration(hours*float64(time.Hour)))
	}

	if days, found := strings.CutSuffix(token, "d"); found {
		count, err := strconv.ParseFloat(days, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidWaitDuration, token)
		}

		return checkPositive(token, time.Duration(count*float64(24*time.Hour)))
	}

	duration, err := time.ParseDuration(token)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidWaitDuration, token)
	}

	return checkPositive(token, duration)
}

func checkPositive(token string, duration time.Duration) (time.Duration, error) {
	if duration <= 0 {
		return 0, fmt.Errorf("%w: %q must be positive", ErrInvalidWaitDuration, token)
	}

	return duration, nil
}
