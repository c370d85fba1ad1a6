package dbosworkflows_test

import (
	"context"
	"testing"
	"time"

	"github.com/dbos-inc/dbos-transact-golang/dbos"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/cloudrig/CloudRIG/internal/application"
	"github.com/cloudrig/CloudRIG/internal/domain"
	"github.com/cloudrig/CloudRIG/internal/infrastructure/dbosworkflows"
	"github.com/cloudrig/CloudRIG/internal/infrastructure/fakecloud"
	"github.com/cloudrig/CloudRIG/internal/infrastructure/sqlite"
)

func startPostgres(t *testing.T) string {
	t.Helper()

	// Ryuk (the reaper) requires a Docker bridge network that does not
	// exist on Podman. We handle cleanup via t.Cleanup instead.
	t.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	ctx := context.Background()

	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("cloudrig_test"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}

	connStr, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("get postgres connection string: %v", err)
	}
	return connStr
}

func TestLifecycle_DBOS(t *testing.T) {
	if testing.Short() {
		t.Skip("needs a container runtime")
	}
	connStr := startPostgres(t)
	ctx := context.Background()

	dbosCtx, err := dbos.NewDBOSContext(ctx, dbos.Config{
		AppName:     "cloudrig-dbos-test",
		DatabaseURL: connStr,
	})
	if err != nil {
		t.Fatalf("NewDBOSContext: %v", err)
	}

	cloud := fakecloud.New()
	cloud.AddPool("sfr-1", 2, "i-123", "i-456")
	cloud.AddDeployment("stack-1",
		domain.Parameter{Key: "InstanceType", Value: "g3s.xlarge"},
		domain.Parameter{Key: "InstanceAMIId", Value: "ami-prev"},
	)
	cloud.NewImageState = domain.ImageStateAvailable

	engine := &dbosworkflows.Engine{DBOSCtx: dbosCtx}
	svc, err := application.NewLifecycleService(engine, domain.LifecycleSettings{
		Deployment:         "stack-1",
		Pool:               "sfr-1",
		AutomationDocument: "cloudrig-save-state",
		SubscriptionName:   "cloudrig-save",
		ImageParameterKey:  "InstanceAMIId",
		ImageNamePrefix:    "cloudrig",
		CallTimeout:        5 * time.Second,
	}, application.Collaborators{
		Fleet:         cloud,
		Images:        cloud,
		Descriptors:   cloud,
		Subscriptions: cloud,
		Automation:    cloud,
	}, &sqlite.JournalRepo{DB: sqlite.OpenTestDB(t)}, nil)
	if err != nil {
		t.Fatalf("NewLifecycleService: %v", err)
	}

	if err := dbos.Launch(dbosCtx); err != nil {
		t.Fatalf("dbos.Launch: %v", err)
	}
	t.Cleanup(func() { dbos.Shutdown(dbosCtx, 5*time.Second) })

	res, err := svc.Interrupt(ctx, "i-123")
	if err != nil {
		t.Fatalf("Interrupt: %v", err)
	}
	if res.Outcome != domain.OutcomeCompleted {
		t.Fatalf("Interrupt Outcome = %q", res.Outcome)
	}
	captured := res.Image

	res, err = svc.CheckReadiness(ctx, "")
	if err != nil {
		t.Fatalf("CheckReadiness: %v", err)
	}
	if res.Outcome != domain.OutcomeCompleted || res.Image != captured {
		t.Errorf("CheckReadiness = %+v", res)
	}
	if cloud.RuleEnabled("cloudrig-save") {
		t.Error("subscription still enabled after promotion")
	}

	res, err = svc.SaveState(ctx, "i-456")
	if err != nil {
		t.Fatalf("SaveState: %v", err)
	}
	if res.Outcome != domain.OutcomeCompleted {
		t.Errorf("SaveState Outcome = %q", res.Outcome)
	}
}
