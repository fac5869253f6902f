package agent_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/xraph/conductor"
	"github.com/xraph/conductor/agent"
	"github.com/xraph/conductor/id"
	"github.com/xraph/conductor/store/memory"
)

func newService(window time.Duration) *agent.Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return agent.NewService(memory.New(), logger, window)
}

func TestRegister_DefaultsOffline(t *testing.T) {
	svc := newService(0)
	tenantID := id.NewTenantID()

	a, err := svc.Register(context.Background(), tenantID, agent.RegisterParams{
		Name:        "runner-01",
		MachineName: "vm-eu-3",
		Version:     "2.4.0",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if a.Status != agent.StatusOffline {
		t.Errorf("status = %q, want %q", a.Status, agent.StatusOffline)
	}
	if a.LastHeartbeat != nil {
		t.Error("LastHeartbeat set before any heartbeat")
	}
	if svc.IsOnline(a) {
		t.Error("agent online without a heartbeat")
	}
}

func TestRegister_NameTaken(t *testing.T) {
	svc := newService(0)
	tenantID := id.NewTenantID()

	if _, err := svc.Register(context.Background(), tenantID, agent.RegisterParams{Name: "runner-01"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	_, err := svc.Register(context.Background(), tenantID, agent.RegisterParams{Name: "runner-01"})
	if !errors.Is(err, conductor.ErrAgentNameTaken) {
		t.Errorf("err = %v, want ErrAgentNameTaken", err)
	}
}

func TestRegister_NameScopedToTenant(t *testing.T) {
	svc := newService(0)

	if _, err := svc.Register(context.Background(), id.NewTenantID(), agent.RegisterParams{Name: "runner-01"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := svc.Register(context.Background(), id.NewTenantID(), agent.RegisterParams{Name: "runner-01"}); err != nil {
		t.Errorf("same name in another tenant rejected: %v", err)
	}
}

func TestEnsureRegistered_Idempotent(t *testing.T) {
	svc := newService(0)
	tenantID := id.NewTenantID()

	first, err := svc.EnsureRegistered(context.Background(), tenantID, agent.RegisterParams{Name: "runner-01"})
	if err != nil {
		t.Fatalf("EnsureRegistered: %v", err)
	}
	second, err := svc.EnsureRegistered(context.Background(), tenantID, agent.RegisterParams{Name: "runner-01"})
	if err != nil {
		t.Fatalf("EnsureRegistered again: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("second registration created a new agent: %s vs %s", first.ID, second.ID)
	}
}

func TestHeartbeat_StampsAndMergesExtra(t *testing.T) {
	svc := newService(time.Minute)
	tenantID := id.NewTenantID()
	a, err := svc.Register(context.Background(), tenantID, agent.RegisterParams{
		Name:  "runner-01",
		Extra: map[string]any{"region": "eu-west"},
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	before := time.Now().UTC()
	got, err := svc.Heartbeat(context.Background(), tenantID, a.ID, agent.StatusBusy, map[string]any{"cpu": 0.8})
	if err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	if got.Status != agent.StatusBusy {
		t.Errorf("status = %q, want %q", got.Status, agent.StatusBusy)
	}
	if got.LastHeartbeat == nil || got.LastHeartbeat.Before(before) {
		t.Errorf("LastHeartbeat = %v, want stamped at or after %v", got.LastHeartbeat, before)
	}
	if got.Extra["region"] != "eu-west" || got.Extra["cpu"] != 0.8 {
		t.Errorf("Extra = %v, want merged region and cpu", got.Extra)
	}
	if !svc.IsOnline(got) {
		t.Error("agent offline right after a heartbeat")
	}
}

func TestHeartbeat_UnknownAgent(t *testing.T) {
	svc := newService(0)
	_, err := svc.Heartbeat(context.Background(), id.NewTenantID(), id.NewAgentID(), agent.StatusOnline, nil)
	if !errors.Is(err, conductor.ErrAgentNotFound) {
		t.Errorf("err = %v, want ErrAgentNotFound", err)
	}
}

func TestIsOnline_StaleHeartbeat(t *testing.T) {
	svc := newService(time.Minute)
	stale := time.Now().UTC().Add(-2 * time.Minute)
	a := &agent.Agent{Status: agent.StatusOnline, LastHeartbeat: &stale}
	if svc.IsOnline(a) {
		t.Error("agent online with a heartbeat older than the window")
	}
}

func TestIsOnline_MaintenanceNeverOnline(t *testing.T) {
	svc := newService(time.Minute)
	now := time.Now().UTC()
	a := &agent.Agent{Status: agent.StatusMaintenance, LastHeartbeat: &now}
	if svc.IsOnline(a) {
		t.Error("maintenance agent counted as online")
	}
}

func TestRename_Conflict(t *testing.T) {
	svc := newService(0)
	tenantID := id.NewTenantID()
	a, err := svc.Register(context.Background(), tenantID, agent.RegisterParams{Name: "runner-01"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := svc.Register(context.Background(), tenantID, agent.RegisterParams{Name: "runner-02"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, err := svc.Rename(context.Background(), tenantID, a.ID, "runner-02"); !errors.Is(err, conductor.ErrAgentNameTaken) {
		t.Errorf("err = %v, want ErrAgentNameTaken", err)
	}
	renamed, err := svc.Rename(context.Background(), tenantID, a.ID, "runner-03")
	if err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if renamed.Name != "runner-03" {
		t.Errorf("name = %q, want runner-03", renamed.Name)
	}
}

func TestDelete_FreesNameAndHidesAgent(t *testing.T) {
	svc := newService(0)
	tenantID := id.NewTenantID()
	a, err := svc.Register(context.Background(), tenantID, agent.RegisterParams{Name: "runner-01"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	if err := svc.Delete(context.Background(), tenantID, a.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := svc.Get(context.Background(), tenantID, a.ID); !errors.Is(err, conductor.ErrAgentNotFound) {
		t.Errorf("Get after delete = %v, want ErrAgentNotFound", err)
	}
	if _, err := svc.Register(context.Background(), tenantID, agent.RegisterParams{Name: "runner-01"}); err != nil {
		t.Errorf("name still taken after delete: %v", err)
	}
}
