package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/kursadbilgin/campaign-engine/internal/domain"
	"github.com/kursadbilgin/campaign-engine/internal/observability"
	"go.uber.org/zap"
)

func TestTriggerRunDue(t *testing.T) {
	t.Parallel()

	campaigns := newMemoryCampaignRepo()
	campaigns.due = []domain.Campaign{
		groupCampaign("c-ok", domain.CampaignStatusScheduled),
		groupCampaign("c-busy", domain.CampaignStatusScheduled),
		groupCampaign("c-failed", domain.CampaignStatusScheduled),
		groupCampaign("c-invalid", domain.CampaignStatusScheduled),
	}

	var (
		mu             sync.Mutex
		executed       []string
		correlationIDs = make(map[string]bool)
	)
	exec := &fakeCampaignExecutor{
		executeFn: func(ctx context.Context, ref domain.CampaignRef) (*domain.ExecutionResult, error) {
			id, _ := observability.CorrelationIDFromContext(ctx)
			mu.Lock()
			executed = append(executed, ref.ID)
			correlationIDs[id] = true
			mu.Unlock()

			switch ref.ID {
			case "c-busy":
				return nil, domain.ErrAlreadyProcessing
			case "c-failed":
				return &domain.ExecutionResult{Success: false, Message: "Error during execution: boom"}, nil
			case "c-invalid":
				return nil, domain.NewValidationError("Group ID is required")
			}
			return &domain.ExecutionResult{Success: true, Message: "Success"}, nil
		},
	}

	trigger, err := NewTrigger(campaigns, exec, 0, zap.NewNop())
	if err != nil {
		t.Fatalf("NewTrigger() error = %v", err)
	}

	got, err := trigger.RunDue(context.Background())
	if err != nil {
		t.Fatalf("RunDue() error = %v", err)
	}
	if got != 1 {
		t.Fatalf("RunDue() = %d, want 1", got)
	}
	if len(executed) != 4 {
		t.Fatalf("executed = %v, want all 4 due campaigns", executed)
	}
	if len(correlationIDs) != 4 || correlationIDs[""] {
		t.Fatalf("correlation ids = %v, want a distinct id per execution", correlationIDs)
	}
	if len(campaigns.rejected) != 1 || campaigns.rejected["c-invalid"] != "Group ID is required" {
		t.Fatalf("rejected = %v, want only c-invalid recorded", campaigns.rejected)
	}
}

func TestTriggerRunDue_RepositoryError(t *testing.T) {
	t.Parallel()

	campaigns := newMemoryCampaignRepo()
	campaigns.dueErr = errors.New("db unavailable")
	exec := &fakeCampaignExecutor{
		executeFn: func(context.Context, domain.CampaignRef) (*domain.ExecutionResult, error) {
			t.Fatal("Execute() must not be called")
			return nil, nil
		},
	}

	trigger, err := NewTrigger(campaigns, exec, 0, nil)
	if err != nil {
		t.Fatalf("NewTrigger() error = %v", err)
	}
	if _, err := trigger.RunDue(context.Background()); err == nil {
		t.Fatal("RunDue() error = nil, want error")
	}
}

func TestNewTriggerRequiresExecutor(t *testing.T) {
	t.Parallel()

	if _, err := NewTrigger(newMemoryCampaignRepo(), nil, 0, nil); err == nil {
		t.Fatal("NewTrigger() error = nil, want error")
	}
}
