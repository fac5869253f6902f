package id_test

import (
	"strings"
	"testing"

	"github.com/xraph/conductor/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"TenantID", id.NewTenantID, "tnt_"},
		{"ProcessID", id.NewProcessID, "proc_"},
		{"VersionID", id.NewVersionID, "ver_"},
		{"AgentID", id.NewAgentID, "agt_"},
		{"ItemID", id.NewItemID, "item_"},
		{"ExecutionID", id.NewExecutionID, "exec_"},
		{"ScheduleID", id.NewScheduleID, "sched_"},
		{"ExceptionID", id.NewExceptionID, "exc_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.newFn().String()
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, got)
			}
		})
	}
}

func TestParseRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		newFn   func() id.ID
		parseFn func(string) (id.ID, error)
	}{
		{"TenantID", id.NewTenantID, id.ParseTenantID},
		{"ProcessID", id.NewProcessID, id.ParseProcessID},
		{"VersionID", id.NewVersionID, id.ParseVersionID},
		{"AgentID", id.NewAgentID, id.ParseAgentID},
		{"ItemID", id.NewItemID, id.ParseItemID},
		{"ExecutionID", id.NewExecutionID, id.ParseExecutionID},
		{"ScheduleID", id.NewScheduleID, id.ParseScheduleID},
		{"ExceptionID", id.NewExceptionID, id.ParseExceptionID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := tt.newFn()
			parsed, err := tt.parseFn(original.String())
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if parsed.String() != original.String() {
				t.Errorf("round-trip mismatch: %q != %q", parsed.String(), original.String())
			}
		})
	}
}

func TestCrossTypeRejection(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		parseFn func(string) (id.ID, error)
	}{
		{"ParseProcessID rejects agt_", id.NewAgentID().String(), id.ParseProcessID},
		{"ParseAgentID rejects item_", id.NewItemID().String(), id.ParseAgentID},
		{"ParseItemID rejects exec_", id.NewExecutionID().String(), id.ParseItemID},
		{"ParseExecutionID rejects sched_", id.NewScheduleID().String(), id.ParseExecutionID},
		{"ParseScheduleID rejects proc_", id.NewProcessID().String(), id.ParseScheduleID},
		{"ParseTenantID rejects ver_", id.NewVersionID().String(), id.ParseTenantID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.parseFn(tt.input)
			if err == nil {
				t.Errorf("expected error for cross-type parse of %q, got nil", tt.input)
			}
		})
	}
}

func TestParseWithPrefix(t *testing.T) {
	i := id.NewItemID()
	parsed, err := id.ParseWithPrefix(i.String(), id.PrefixItem)
	if err != nil {
		t.Fatalf("ParseWithPrefix failed: %v", err)
	}
	if parsed.String() != i.String() {
		t.Errorf("mismatch: %q != %q", parsed.String(), i.String())
	}

	_, err = id.ParseWithPrefix(i.String(), id.PrefixAgent)
	if err == nil {
		t.Error("expected error for wrong prefix")
	}
}

func TestParseEmpty(t *testing.T) {
	_, err := id.Parse("")
	if err == nil {
		t.Error("expected error for empty string")
	}
}

func TestNilID(t *testing.T) {
	var i id.ID
	if !i.IsNil() {
		t.Error("zero-value ID should be nil")
	}
	if i.String() != "" {
		t.Errorf("expected empty string, got %q", i.String())
	}
	if i.Prefix() != "" {
		t.Errorf("expected empty prefix, got %q", i.Prefix())
	}
}

func TestMarshalUnmarshalText(t *testing.T) {
	original := id.NewExecutionID()
	data, err := original.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText failed: %v", err)
	}

	var restored id.ID
	if unmarshalErr := restored.UnmarshalText(data); unmarshalErr != nil {
		t.Fatalf("UnmarshalText failed: %v", unmarshalErr)
	}
	if restored.String() != original.String() {
		t.Errorf("mismatch: %q != %q", restored.String(), original.String())
	}

	// Nil round-trip.
	var nilID id.ID
	data, err = nilID.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText(nil) failed: %v", err)
	}
	var restored2 id.ID
	if err := restored2.UnmarshalText(data); err != nil {
		t.Fatalf("UnmarshalText(nil) failed: %v", err)
	}
	if !restored2.IsNil() {
		t.Error("expected nil after round-trip of nil ID")
	}
}

func TestValueScan(t *testing.T) {
	original := id.NewAgentID()
	val, err := original.Value()
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}

	var scanned id.ID
	if scanErr := scanned.Scan(val); scanErr != nil {
		t.Fatalf("Scan failed: %v", scanErr)
	}
	if scanned.String() != original.String() {
		t.Errorf("mismatch: %q != %q", scanned.String(), original.String())
	}

	// Nil round-trip.
	var nilID id.ID
	val, err = nilID.Value()
	if err != nil {
		t.Fatalf("Value(nil) failed: %v", err)
	}
	if val != nil {
		t.Errorf("expected nil value for nil ID, got %v", val)
	}

	var scanned2 id.ID
	if err := scanned2.Scan(nil); err != nil {
		t.Fatalf("Scan(nil) failed: %v", err)
	}
	if !scanned2.IsNil() {
		t.Error("expected nil after scan of nil")
	}
}

func TestUniqueness(t *testing.T) {
	a := id.NewItemID()
	b := id.NewItemID()
	if a.String() == b.String() {
		t.Errorf("two consecutive NewItemID() calls returned the same ID: %q", a.String())
	}
}
