// Package unit holds sanity tests for phymuti's ambient stack — the
// frozen error code table and the default logging configuration — that
// don't belong under any single registry's own package.
package unit

import (
	"testing"

	phymuti "github.com/phymuti/phymuti-go"
	"github.com/phymuti/phymuti-go/internal/logging"
)

func TestErrorCodesAreNegativeExceptSuccess(t *testing.T) {
	codes := []phymuti.ErrorCode{
		phymuti.ErrCodeInvalidParam,
		phymuti.ErrCodeNotFound,
		phymuti.ErrCodeAlreadyExists,
		phymuti.ErrCodeNotSupported,
		phymuti.ErrCodeBusy,
		phymuti.ErrCodeDeviceTypeNotFound,
		phymuti.ErrCodeDeviceNotFound,
		phymuti.ErrCodeMemoryRegionNotFound,
		phymuti.ErrCodeMemoryOutOfRange,
		phymuti.ErrCodeMemoryPermission,
		phymuti.ErrCodeMemoryAlignment,
		phymuti.ErrCodeWatchpointNotFound,
		phymuti.ErrCodeWatchpointInvalidType,
		phymuti.ErrCodeActionNotFound,
		phymuti.ErrCodeActionInvalidType,
		phymuti.ErrCodeRuleNotFound,
		phymuti.ErrCodeRuleActionFailed,
	}
	for _, c := range codes {
		if c >= 0 {
			t.Errorf("code %v (%d) is not negative", c, c)
		}
		if c.String() == "" {
			t.Errorf("code %d has no String() representation", c)
		}
	}
}

func TestSuccessIsZero(t *testing.T) {
	if phymuti.Success != 0 {
		t.Fatalf("Success = %d, want 0", phymuti.Success)
	}
}

func TestUnknownCodeStringDoesNotPanic(t *testing.T) {
	c := phymuti.ErrorCode(-9999)
	if c.String() == "" {
		t.Fatal("String() returned empty for an unknown code")
	}
}

func TestDefaultLoggingConfig(t *testing.T) {
	cfg := logging.DefaultConfig()
	if cfg.Level != logging.LevelInfo {
		t.Fatalf("default level = %v, want LevelInfo", cfg.Level)
	}
	if cfg.Output == nil {
		t.Fatal("default output is nil")
	}
}

func TestNewSystemWiresSharedMetrics(t *testing.T) {
	sys := phymuti.NewSystem()
	if sys.Metrics == nil {
		t.Fatal("System.Metrics is nil")
	}
	if sys.Actions == nil || sys.Monitor == nil || sys.Memory == nil || sys.Devices == nil || sys.Rules == nil {
		t.Fatal("NewSystem left a registry nil")
	}
}

func TestFlagCombinationsAreUnionsOfBaseFlags(t *testing.T) {
	if phymuti.FlagRW != phymuti.FlagRead|phymuti.FlagWrite {
		t.Fatalf("FlagRW = %d, want FlagRead|FlagWrite", phymuti.FlagRW)
	}
	if phymuti.FlagRWX != phymuti.FlagRead|phymuti.FlagWrite|phymuti.FlagExec {
		t.Fatalf("FlagRWX = %d, want FlagRead|FlagWrite|FlagExec", phymuti.FlagRWX)
	}
}
