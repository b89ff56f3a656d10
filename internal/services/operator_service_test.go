package services

import (
	"context"
	"errors"
	"testing"

	"github.com/Tsipchain/driver-platform/domain"
)

func TestOperatorServiceImpl_PendingDrivers(t *testing.T) {
	env := newTestEnv(t)
	svc := NewOperatorService(env.drivers, env.clock, env.audit, env.logger)
	env.createDriver(t, &domain.Driver{Phone: "+301000001", GroupTag: "athens-a"})
	env.createDriver(t, &domain.Driver{Phone: "+301000002", GroupTag: "athens-a"})
	env.createDriver(t, &domain.Driver{Phone: "+301000003", GroupTag: "patras-a"})

	tests := []struct {
		name          string
		scope         *domain.OperatorScope
		groupTag      string
		expectCount   int
		expectedError error
	}{
		{name: "global sees everyone", scope: &domain.OperatorScope{Global: true}, expectCount: 3},
		{name: "global narrows by tag", scope: &domain.OperatorScope{Global: true}, groupTag: "patras-a", expectCount: 1},
		{name: "scoped sees own tag", scope: &domain.OperatorScope{Role: "operator", GroupTag: "athens-a"}, expectCount: 2},
		{name: "scoped cannot widen", scope: &domain.OperatorScope{Role: "operator", GroupTag: "athens-a"}, groupTag: "patras-a", expectedError: domain.ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			drivers, err := svc.PendingDrivers(context.Background(), tt.scope, tt.groupTag, 0)
			if tt.expectedError != nil {
				if !errors.Is(err, tt.expectedError) {
					t.Fatalf("expected %v, got %v", tt.expectedError, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(drivers) != tt.expectCount {
				t.Errorf("expected %d drivers, got %d", tt.expectCount, len(drivers))
			}
		})
	}
}

func TestOperatorServiceImpl_ApproveDriver(t *testing.T) {
	env := newTestEnv(t)
	svc := NewOperatorService(env.drivers, env.clock, env.audit, env.logger)
	inScope := env.createDriver(t, &domain.Driver{Phone: "+301000001", GroupTag: "athens-a"})
	outOfScope := env.createDriver(t, &domain.Driver{Phone: "+301000002", GroupTag: "patras-a"})
	scope := &domain.OperatorScope{Role: "operator", GroupTag: "athens-a"}
	ctx := context.Background()

	approved, err := svc.ApproveDriver(ctx, scope, inScope.ID)
	if err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if !approved.Approved {
		t.Error("expected driver to be approved")
	}

	if _, err := svc.ApproveDriver(ctx, scope, outOfScope.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
	reloaded, _ := env.drivers.FindByID(ctx, outOfScope.ID)
	if reloaded.Approved {
		t.Error("out of scope driver must stay unapproved")
	}
	if len(env.audit.Events(domain.AccessDeniedEvent)) != 1 {
		t.Error("expected an access denied audit event")
	}

	if _, err := svc.ApproveDriver(ctx, scope, 999); !errors.Is(err, domain.ErrDriverNotFound) {
		t.Errorf("expected ErrDriverNotFound, got %v", err)
	}
}
