package apperr

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestRemoteError_WrapsAndNamesPayload(t *testing.T) {
	base := errors.New("missing attribute version")
	err := fmt.Errorf("sync: manifest: %w", &RemoteError{Action: "ScheduleGetEventVersions", Payload: "event_item[2]", Err: base})

	if !IsRemote(err) {
		t.Fatal("expected IsRemote to match wrapped RemoteError")
	}
	if !errors.Is(err, base) {
		t.Error("RemoteError should unwrap to the cause")
	}
	if !strings.Contains(err.Error(), "event_item[2]") {
		t.Errorf("message should name payload: %v", err)
	}
}

func TestConfigurationError(t *testing.T) {
	if NewConfigurationError("remote", nil) != nil {
		t.Error("nil cause should produce nil error")
	}
	err := NewConfigurationError("remote.base_url", errors.New("cannot be blank"))
	if !IsConfiguration(err) {
		t.Fatal("expected IsConfiguration")
	}
	if got := err.Error(); got != "configuration: remote.base_url: cannot be blank" {
		t.Errorf("Error() = %q", got)
	}
	if IsRemote(err) {
		t.Error("configuration error must not look remote")
	}
}

func TestSyncInProgressIsConflict(t *testing.T) {
	if !errors.Is(ErrSyncInProgress, ErrConflict) {
		t.Error("ErrSyncInProgress should wrap ErrConflict")
	}
}
