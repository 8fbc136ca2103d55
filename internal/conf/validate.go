// conf/validate.go

package conf

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// MinProbeInterval is the lowest allowed push re-establishment probe cadence.
const MinProbeInterval = 10 * time.Second

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	if err := validateMainSettings(&settings.Main); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := ValidateSyncSettings(&settings.Sync); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	// If there are any errors, return the ValidationError
	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateMainSettings(main *MainSettings) error {
	if main.Name == "" {
		return fmt.Errorf("main.name must not be empty")
	}
	switch main.Log.Rotation {
	case RotationDaily, RotationWeekly, RotationSize:
	default:
		return fmt.Errorf("main.log.rotation must be one of daily, weekly, size: got %q", main.Log.Rotation)
	}
	return nil
}

// ValidateSyncSettings checks the synchronization settings for configuration
// errors that cannot be recovered at runtime. These surface synchronously at
// construction time.
func ValidateSyncSettings(sync *SyncSettings) error {
	if strings.TrimSpace(sync.PushURL) == "" {
		return fmt.Errorf("sync.pushurl must not be empty")
	}
	if u, err := url.Parse(sync.PushURL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return fmt.Errorf("sync.pushurl must be a ws:// or wss:// URL: got %q", sync.PushURL)
	}

	if strings.TrimSpace(sync.PollURL) == "" {
		return fmt.Errorf("sync.pollurl must not be empty")
	}
	if u, err := url.Parse(sync.PollURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("sync.pollurl must be an http:// or https:// URL: got %q", sync.PollURL)
	}

	if sync.PollInterval <= 0 {
		return fmt.Errorf("sync.pollinterval must be positive: got %v", sync.PollInterval)
	}
	if sync.PollRestoreSuccesses < 1 {
		return fmt.Errorf("sync.pollrestoresuccesses must be at least 1: got %d", sync.PollRestoreSuccesses)
	}
	if sync.CoalesceWindow <= 0 {
		return fmt.Errorf("sync.coalescewindow must be positive: got %v", sync.CoalesceWindow)
	}
	if sync.PushAttemptWindow <= 0 {
		return fmt.Errorf("sync.pushattemptwindow must be positive: got %v", sync.PushAttemptWindow)
	}
	if sync.FailureThreshold < 1 {
		return fmt.Errorf("sync.failurethreshold must be at least 1: got %d", sync.FailureThreshold)
	}
	if sync.ProbeInterval < MinProbeInterval {
		return fmt.Errorf("sync.probeinterval must be at least %v: got %v", MinProbeInterval, sync.ProbeInterval)
	}
	if sync.BackoffBase <= 0 {
		return fmt.Errorf("sync.backoffbase must be positive: got %v", sync.BackoffBase)
	}
	if sync.BackoffMax < sync.BackoffBase {
		return fmt.Errorf("sync.backoffmax must be at least sync.backoffbase: got %v < %v", sync.BackoffMax, sync.BackoffBase)
	}
	return nil
}
