package ports

import "testing"

func TestPlanStatusTransitions(t *testing.T) {
	allowed := map[PlanStatus][]PlanStatus{
		PlanDraft:           {PlanPendingApproval, PlanRejected, PlanCancelled},
		PlanPendingApproval: {PlanApproved, PlanRejected, PlanCancelled},
		PlanApproved:        {PlanExecuting, PlanCancelled},
		PlanExecuting:       {PlanCompleted},
		PlanCompleted:       nil,
		PlanRejected:        nil,
		PlanCancelled:       nil,
	}

	all := []PlanStatus{
		PlanDraft, PlanPendingApproval, PlanApproved, PlanExecuting,
		PlanCompleted, PlanRejected, PlanCancelled,
	}
	for from, targets := range allowed {
		ok := make(map[PlanStatus]bool, len(targets))
		for _, to := range targets {
			ok[to] = true
		}
		for _, to := range all {
			if got := from.CanTransition(to); got != ok[to] {
				t.Errorf("%s -> %s = %v, want %v", from, to, got, ok[to])
			}
		}
	}
}

func TestPlanStatusRejectionOnlyBeforeExecution(t *testing.T) {
	for _, from := range []PlanStatus{PlanExecuting, PlanCompleted} {
		if from.CanTransition(PlanRejected) {
			t.Errorf("%s must not be rejectable", from)
		}
		if from.CanTransition(PlanCancelled) {
			t.Errorf("%s must not be cancellable", from)
		}
	}
}

func TestAssessRiskAllSafeIsAutoApprovable(t *testing.T) {
	p := &Plan{Phases: []PlanPhase{
		{Name: PlanPhasePreparation, Steps: []PlanStep{
			{ID: "S1", Risk: RiskSafe},
		}},
		{Name: PlanPhaseImplementation, Steps: []PlanStep{
			{ID: "S2", Risk: RiskSafe},
			{ID: "S3", Risk: RiskSafe},
		}},
	}}
	p.AssessRisk()

	if p.Risk.Level != RiskSafe {
		t.Errorf("level = %s, want safe", p.Risk.Level)
	}
	if !p.Risk.AutoApprovable {
		t.Error("all-safe plan must be auto-approvable")
	}
	if p.Risk.SafeCount != 3 || p.Risk.ModerateCount != 0 || p.Risk.RiskyCount != 0 {
		t.Errorf("counts = %d/%d/%d, want 3/0/0",
			p.Risk.SafeCount, p.Risk.ModerateCount, p.Risk.RiskyCount)
	}
}

func TestAssessRiskHighestStepDominates(t *testing.T) {
	p := &Plan{Phases: []PlanPhase{
		{Name: PlanPhaseImplementation, Steps: []PlanStep{
			{ID: "S1", Risk: RiskSafe},
			{ID: "S2", Risk: RiskModerate},
			{ID: "S3", Risk: RiskRisky},
		}},
	}}
	p.AssessRisk()

	if p.Risk.Level != RiskRisky {
		t.Errorf("level = %s, want risky", p.Risk.Level)
	}
	if p.Risk.AutoApprovable {
		t.Error("risky plan must not be auto-approvable")
	}
	if p.Risk.SafeCount != 1 || p.Risk.ModerateCount != 1 || p.Risk.RiskyCount != 1 {
		t.Errorf("counts = %d/%d/%d, want 1/1/1",
			p.Risk.SafeCount, p.Risk.ModerateCount, p.Risk.RiskyCount)
	}
}

func TestStepsFlattenInPhaseOrder(t *testing.T) {
	p := &Plan{Phases: []PlanPhase{
		{Name: PlanPhaseExploration, Steps: []PlanStep{{ID: "S1"}}},
		{Name: PlanPhaseImplementation, Steps: []PlanStep{{ID: "S2"}, {ID: "S3"}}},
		{Name: PlanPhaseValidation, Steps: []PlanStep{{ID: "S4"}}},
	}}

	steps := p.Steps()
	want := []string{"S1", "S2", "S3", "S4"}
	if len(steps) != len(want) {
		t.Fatalf("got %d steps, want %d", len(steps), len(want))
	}
	for i, id := range want {
		if steps[i].ID != id {
			t.Errorf("steps[%d].ID = %s, want %s", i, steps[i].ID, id)
		}
	}
}
