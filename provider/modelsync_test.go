package provider

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type syncFakeProvider struct {
	name   string
	models []string
}

func (f *syncFakeProvider) Name() string { return f.name }
func (f *syncFakeProvider) Complete(context.Context, CompletionRequest) (*CompletionResult, error) {
	return nil, nil
}
func (f *syncFakeProvider) Stream(context.Context, CompletionRequest) (Stream, error) {
	return nil, nil
}
func (f *syncFakeProvider) Models() []string { return f.models }
func (f *syncFakeProvider) HealthCheck(context.Context) HealthStatus {
	return HealthStatus{Healthy: true}
}

func TestModelSyncerSyncAllPopulatesCatalog(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&syncFakeProvider{name: "openai", models: []string{"gpt-4o", "gpt-4o-mini"}}, nil)
	reg.Register(&syncFakeProvider{name: "anthropic", models: []string{"claude-3-5-sonnet-20241022"}}, nil)

	syncer := NewModelSyncer(reg, zerolog.Nop(), time.Hour)
	syncer.syncAll()

	all := syncer.GetAllModels()
	if len(all) != 3 {
		t.Fatalf("expected 3 models across providers, got %d", len(all))
	}

	catalog := syncer.GetCatalog()
	if len(catalog["openai"]) != 2 {
		t.Fatalf("expected 2 openai models, got %d", len(catalog["openai"]))
	}
	for _, m := range catalog["openai"] {
		if m.Provider != "openai" {
			t.Fatalf("expected provider tag openai, got %q", m.Provider)
		}
		if m.SyncedAt.IsZero() {
			t.Fatalf("expected SyncedAt to be stamped")
		}
	}
}

func TestModelSyncerGetCatalogReturnsIndependentCopy(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&syncFakeProvider{name: "openai", models: []string{"gpt-4o"}}, nil)

	syncer := NewModelSyncer(reg, zerolog.Nop(), time.Hour)
	syncer.syncAll()

	catalog := syncer.GetCatalog()
	catalog["openai"][0].ID = "mutated"

	fresh := syncer.GetCatalog()
	if fresh["openai"][0].ID != "gpt-4o" {
		t.Fatalf("expected internal catalog to be unaffected by caller mutation, got %q", fresh["openai"][0].ID)
	}
}

func TestModelSyncerStartStop(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&syncFakeProvider{name: "openai", models: []string{"gpt-4o"}}, nil)

	syncer := NewModelSyncer(reg, zerolog.Nop(), 10*time.Millisecond)
	syncer.Start()
	defer syncer.Stop()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(syncer.GetAllModels()) > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected background loop to populate the catalog within the deadline")
}
