package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/Adrien490/synclune-sub011/internal/domain"
)

type stubHealthRepository struct {
	collectFn func(context.Context) (domain.SystemHealthReport, error)
}

func (s *stubHealthRepository) Collect(ctx context.Context) (domain.SystemHealthReport, error) {
	if s.collectFn != nil {
		return s.collectFn(ctx)
	}
	return domain.SystemHealthReport{}, errors.New("collect not stubbed")
}

func TestHealthReportMergesBuildMetadata(t *testing.T) {
	started := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)
	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	svc, err := NewSystemService(SystemServiceDeps{
		HealthRepository: &stubHealthRepository{collectFn: func(context.Context) (domain.SystemHealthReport, error) {
			return domain.SystemHealthReport{
				Checks: map[string]domain.SystemHealthCheck{
					"firestore": {Status: domain.HealthStatusOK},
				},
			}, nil
		}},
		Clock: fixedClock(now),
		Build: BuildInfo{Version: "1.4.0", CommitSHA: "abc123", Environment: "production", StartedAt: started},
	})
	if err != nil {
		t.Fatalf("new system service: %v", err)
	}

	report, err := svc.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("health report: %v", err)
	}
	if report.Version != "1.4.0" || report.CommitSHA != "abc123" || report.Environment != "production" {
		t.Fatalf("expected build metadata merged, got %+v", report)
	}
	if report.Status != domain.HealthStatusOK {
		t.Fatalf("expected ok status, got %s", report.Status)
	}
	if report.Uptime != now.Sub(started) {
		t.Fatalf("expected uptime %s, got %s", now.Sub(started), report.Uptime)
	}
	if report.GeneratedAt.IsZero() {
		t.Fatalf("expected generated timestamp")
	}
}

func TestHealthReportDerivesDegradedStatus(t *testing.T) {
	svc, err := NewSystemService(SystemServiceDeps{
		HealthRepository: &stubHealthRepository{collectFn: func(context.Context) (domain.SystemHealthReport, error) {
			return domain.SystemHealthReport{
				Checks: map[string]domain.SystemHealthCheck{
					"firestore": {Status: domain.HealthStatusOK},
					"pubsub":    {Status: domain.HealthStatusDegraded},
				},
			}, nil
		}},
	})
	if err != nil {
		t.Fatalf("new system service: %v", err)
	}

	report, err := svc.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("health report: %v", err)
	}
	if report.Status != domain.HealthStatusDegraded {
		t.Fatalf("expected degraded, got %s", report.Status)
	}
}

func TestHealthReportPropagatesCollectError(t *testing.T) {
	want := errors.New("firestore unavailable")
	svc, err := NewSystemService(SystemServiceDeps{
		HealthRepository: &stubHealthRepository{collectFn: func(context.Context) (domain.SystemHealthReport, error) {
			return domain.SystemHealthReport{}, want
		}},
	})
	if err != nil {
		t.Fatalf("new system service: %v", err)
	}

	if _, err := svc.HealthReport(context.Background()); !errors.Is(err, want) {
		t.Fatalf("expected collect error, got %v", err)
	}
}
