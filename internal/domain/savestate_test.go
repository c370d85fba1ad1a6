package domain_test

import (
	"errors"
	"testing"

	"github.com/cloudrig/CloudRIG/internal/domain"
	"github.com/cloudrig/CloudRIG/internal/infrastructure/fakecloud"
)

func TestStateSave_StartsAutomation(t *testing.T) {
	c := newCloud(t)

	res, err := newStateSave(c).Run(newRunner(), domain.StateSaveInput{Instance: "i-123"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Outcome != domain.OutcomeCompleted {
		t.Errorf("Outcome = %q", res.Outcome)
	}
	runs := c.AutomationRuns()
	if len(runs) != 1 {
		t.Fatalf("automation runs = %d, want 1", len(runs))
	}
	if runs[0].Document != "cloudrig-save-state" {
		t.Errorf("Document = %q", runs[0].Document)
	}
	if got := runs[0].Params["InstanceId"]; !equalStrings(got, []string{"i-123"}) {
		t.Errorf("InstanceId = %v", got)
	}
	if res.Detail != "automation execution "+string(runs[0].ID) {
		t.Errorf("Detail = %q", res.Detail)
	}
}

func TestStateSave_NotAMember(t *testing.T) {
	c := newCloud(t)

	res, err := newStateSave(c).Run(newRunner(), domain.StateSaveInput{Instance: "i-other"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Outcome != domain.OutcomeNotAMember {
		t.Errorf("Outcome = %q, want %q", res.Outcome, domain.OutcomeNotAMember)
	}
	if m := c.Mutations(); len(m) != 0 {
		t.Errorf("mutations = %v", m)
	}
}

func TestStateSave_AutomationRejected(t *testing.T) {
	c := newCloud(t)
	c.FailOn(fakecloud.OpStartAutomation, errors.New("document not found"))

	res, err := newStateSave(c).Run(newRunner(), domain.StateSaveInput{Instance: "i-123"})
	if !errors.Is(err, domain.ErrProviderCall) {
		t.Fatalf("err = %v, want ErrProviderCall", err)
	}
	if res.Outcome != domain.OutcomeFailed {
		t.Errorf("Outcome = %q", res.Outcome)
	}
	if runs := c.AutomationRuns(); len(runs) != 0 {
		t.Errorf("automation runs = %v", runs)
	}
}
