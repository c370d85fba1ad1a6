// Package wiring assembles a LifecycleService from configuration: the
// provider collaborators, the workflow engine and the journal.
package wiring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/cschleiden/go-workflows/backend"
	wfsqlite "github.com/cschleiden/go-workflows/backend/sqlite"
	"github.com/cschleiden/go-workflows/client"
	"github.com/cschleiden/go-workflows/worker"
	"github.com/dbos-inc/dbos-transact-golang/dbos"

	"github.com/cloudrig/CloudRIG/internal/application"
	"github.com/cloudrig/CloudRIG/internal/config"
	"github.com/cloudrig/CloudRIG/internal/domain"
	"github.com/cloudrig/CloudRIG/internal/infrastructure/awsprovider"
	"github.com/cloudrig/CloudRIG/internal/infrastructure/dbosworkflows"
	"github.com/cloudrig/CloudRIG/internal/infrastructure/fakecloud"
	"github.com/cloudrig/CloudRIG/internal/infrastructure/goworkflows"
	"github.com/cloudrig/CloudRIG/internal/infrastructure/sqlite"
	"github.com/cloudrig/CloudRIG/internal/infrastructure/syncworkflow"
)

// dbosShutdownTimeout bounds how long Close waits for DBOS to drain.
const dbosShutdownTimeout = 5 * time.Second

// Options adjusts how [Build] sources its collaborators.
type Options struct {
	// FixturePath, when set, replaces the AWS provider with an in-memory
	// cloud seeded from the YAML fixture at this path.
	FixturePath string
	Logger      *slog.Logger
}

// Runtime is an assembled service together with the resources it owns.
type Runtime struct {
	Service *application.LifecycleService

	// Cloud is the in-memory cloud in dry-run mode, nil otherwise.
	Cloud *fakecloud.Cloud

	closers []func() error
}

// Close releases the runtime's resources in reverse order of creation.
func (r *Runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i]())
	}
	r.closers = nil
	return errors.Join(errs...)
}

// Build assembles a Runtime for cfg. The caller must Close it.
func Build(ctx context.Context, cfg *config.Config, opts Options) (*Runtime, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rt := &Runtime{}

	collaborators, err := rt.collaborators(ctx, cfg, opts.FixturePath)
	if err != nil {
		return nil, err
	}

	journal, err := rt.journal(cfg.Journal.Path)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}

	engine, launch, err := rt.engine(ctx, cfg)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}

	svc, err := application.NewLifecycleService(engine, cfg.Settings(), collaborators, journal, logger)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	if launch != nil {
		if err := launch(); err != nil {
			_ = rt.Close()
			return nil, err
		}
	}
	rt.Service = svc

	logger.Debug("runtime assembled",
		"engine", cfg.Engine,
		"dry_run", rt.Cloud != nil,
		"journal", cfg.Journal.Path != "",
		"deployment_id", cfg.DeploymentID,
	)
	return rt, nil
}

func (r *Runtime) collaborators(ctx context.Context, cfg *config.Config, fixture string) (application.Collaborators, error) {
	if fixture != "" {
		f, err := os.Open(fixture)
		if err != nil {
			return application.Collaborators{}, fmt.Errorf("open fixture: %w", err)
		}
		defer f.Close()
		cloud, err := fakecloud.Load(f)
		if err != nil {
			return application.Collaborators{}, err
		}
		r.Cloud = cloud
		return application.Collaborators{
			Fleet:         cloud,
			Images:        cloud,
			Descriptors:   cloud,
			Subscriptions: cloud,
			Automation:    cloud,
		}, nil
	}

	p, err := awsprovider.New(ctx, awsprovider.Options{
		Region:        cfg.Region,
		CallTimeout:   cfg.CallTimeout,
		WaitForUpdate: cfg.Descriptor.WaitForUpdate,
		UpdateTimeout: cfg.Descriptor.UpdateTimeout,
		Capabilities:  cfg.Descriptor.Capabilities,
	})
	if err != nil {
		return application.Collaborators{}, err
	}
	return application.Collaborators{
		Fleet:         p.Fleet,
		Images:        p.Images,
		Descriptors:   p.Descriptors,
		Subscriptions: p.Subscriptions,
		Automation:    p.Automation,
	}, nil
}

func (r *Runtime) journal(path string) (domain.GenerationJournal, error) {
	if path == "" {
		return nil, nil
	}
	db, err := sqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	r.closers = append(r.closers, db.Close)
	return &sqlite.JournalRepo{DB: db}, nil
}

// engine returns the configured engine and, for engines that must be
// started after registration, the function that starts it.
func (r *Runtime) engine(ctx context.Context, cfg *config.Config) (domain.WorkflowEngine, func() error, error) {
	switch cfg.Engine {
	case config.EngineSync:
		return &syncworkflow.Engine{}, nil, nil

	case config.EngineGoWorkflows:
		var b backend.Backend
		if cfg.Workflows.SQLitePath == "" {
			b = wfsqlite.NewInMemoryBackend()
		} else {
			b = wfsqlite.NewSqliteBackend(cfg.Workflows.SQLitePath)
		}
		w := worker.New(b, nil)
		wctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		if err := w.Start(wctx); err != nil {
			cancel()
			return nil, nil, fmt.Errorf("start workflow worker: %w", err)
		}
		r.closers = append(r.closers, func() error {
			cancel()
			return w.WaitForCompletion()
		})
		return &goworkflows.Engine{
			Worker:  w,
			Client:  client.New(b),
			Timeout: cfg.Workflows.Timeout,
		}, nil, nil

	case config.EngineDBOS:
		dbosCtx, err := dbos.NewDBOSContext(ctx, dbos.Config{
			AppName:     "cloudrig",
			DatabaseURL: cfg.Workflows.DatabaseURL,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("create dbos context: %w", err)
		}
		launch := func() error {
			if err := dbos.Launch(dbosCtx); err != nil {
				return fmt.Errorf("launch dbos: %w", err)
			}
			r.closers = append(r.closers, func() error {
				dbos.Shutdown(dbosCtx, dbosShutdownTimeout)
				return nil
			})
			return nil
		}
		return &dbosworkflows.Engine{DBOSCtx: dbosCtx}, launch, nil

	default:
		return nil, nil, fmt.Errorf("%w: unknown engine %q", domain.ErrInvalidArgument, cfg.Engine)
	}
}
