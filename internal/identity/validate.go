package identity

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/upcast-io/upcast/internal/semver"
)

// ValidationError represents a single identity validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// feedSchemes are the transports the fetcher knows how to speak.
var feedSchemes = map[string]bool{
	"http":  true,
	"https": true,
	"s3":    true,
}

// Validate checks an identity for correctness and collects all problems.
func Validate(id *Identity) error {
	var errs []string

	if id.Name == "" {
		errs = append(errs, ValidationError{
			Field:   "name",
			Message: "is required",
		}.Error())
	}

	if id.Version == "" {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: "is required",
		}.Error())
	} else if _, err := semver.Parse(id.Version); err != nil {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("invalid semantic version %q", id.Version),
		}.Error())
	}

	if id.FeedURL == "" {
		errs = append(errs, ValidationError{
			Field:   "feed_url",
			Message: "is required",
		}.Error())
	} else {
		u, err := url.Parse(id.FeedURL)
		if err != nil {
			errs = append(errs, ValidationError{
				Field:   "feed_url",
				Message: fmt.Sprintf("invalid URL: %v", err),
			}.Error())
		} else if !feedSchemes[u.Scheme] {
			errs = append(errs, ValidationError{
				Field:   "feed_url",
				Message: fmt.Sprintf("unsupported scheme %q (expected http, https or s3)", u.Scheme),
			}.Error())
		}
	}

	if id.CheckInterval != "" {
		d, err := time.ParseDuration(id.CheckInterval)
		if err != nil {
			errs = append(errs, ValidationError{
				Field:   "check_interval",
				Message: fmt.Sprintf("invalid duration %q", id.CheckInterval),
			}.Error())
		} else if d <= 0 {
			errs = append(errs, ValidationError{
				Field:   "check_interval",
				Message: "must be positive",
			}.Error())
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}
