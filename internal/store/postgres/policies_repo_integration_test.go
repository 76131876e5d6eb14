package postgres

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"apptgate/backend/internal/domain"
	"apptgate/backend/internal/store"
)

// The integration test runs against a real postgres and needs a single
// connection so the session search_path sticks for the throwaway schema.
func TestPostgresIntegration_PolicyCRUDAndBooking(t *testing.T) {
	databaseURL := strings.TrimSpace(os.Getenv("APPTGATE_TEST_DATABASE_URL"))
	if databaseURL == "" {
		t.Skip("APPTGATE_TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	db, err := Open(ctx, databaseURL, PoolConfig{MaxOpenConns: 1, MaxIdleConns: 1})
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() {
		_ = Close(db)
	})

	schema := "apptgate_test_" + randomHex(t, 8)
	if _, err := db.NewRaw("CREATE SCHEMA " + schema).Exec(ctx); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	t.Cleanup(func() {
		cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cleanupCancel()
		_, _ = db.NewRaw("DROP SCHEMA IF EXISTS " + schema + " CASCADE").Exec(cleanupCtx)
	})

	if _, err := db.NewRaw("SET search_path TO " + schema).Exec(ctx); err != nil {
		t.Fatalf("set search_path: %v", err)
	}
	if err := applyMigrations(ctx, db); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	repo := NewPolicyRepo(db)
	appts := NewAppointmentRepo(db, time.UTC)

	capacity, err := repo.Create(ctx, domain.Policy{
		PractitionerID: "prac-1",
		Variant:        domain.VariantCapacity,
		Label:          "daily cap",
		Payload:        json.RawMessage(`{"maxAppointmentsPerDay":2}`),
		Active:         true,
		Priority:       5,
		CreatedBy:      "admin-1",
		LastModifiedBy: "admin-1",
	})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if capacity.ID == uuid.Nil {
		t.Fatal("id not assigned on insert")
	}
	if capacity.CreatedAt.IsZero() || capacity.UpdatedAt.IsZero() {
		t.Fatal("timestamps not assigned on insert")
	}

	block, err := repo.Create(ctx, domain.Policy{
		PractitionerID: "prac-1",
		Variant:        domain.VariantBlock,
		Label:          "lunch",
		Payload:        json.RawMessage(`{"recurrence":{"type":"daily"},"timeWindows":[{"start":"12:00","end":"13:00"}],"reason":"lunch"}`),
		Active:         true,
		Priority:       8,
	})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}

	override, err := repo.Create(ctx, domain.Policy{
		PractitionerID: "prac-1",
		Variant:        domain.VariantOverride,
		Label:          "conference day",
		Payload:        json.RawMessage(`{"date":"2026-01-06","action":"block"}`),
		Active:         true,
		Priority:       8,
	})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}

	inactive, err := repo.Create(ctx, domain.Policy{
		PractitionerID: "prac-1",
		Variant:        domain.VariantBookingWindow,
		Label:          "retired",
		Payload:        json.RawMessage(`{"minAdvanceHours":24}`),
		Active:         false,
		Priority:       10,
	})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}

	got, err := repo.Get(ctx, capacity.ID)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.Label != "daily cap" || got.Variant != domain.VariantCapacity {
		t.Fatalf("Get = %+v", got)
	}

	// Active ordering: priority desc with OVERRIDE winning the priority tie.
	// The inactive policy is excluded despite its top priority.
	active, err := repo.ListActive(ctx, "prac-1")
	if err != nil {
		t.Fatalf("ListActive error: %v", err)
	}
	if len(active) != 3 {
		t.Fatalf("len(active) = %d, want 3", len(active))
	}
	if active[0].ID != override.ID || active[1].ID != block.ID || active[2].ID != capacity.ID {
		ids := make([]string, 0, len(active))
		for _, p := range active {
			ids = append(ids, p.Label)
		}
		t.Fatalf("order = %v", ids)
	}

	rows, err := repo.List(ctx, store.PolicyFilter{PractitionerID: "prac-1", Variant: domain.VariantBookingWindow})
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != inactive.ID {
		t.Fatalf("List = %+v", rows)
	}

	label := "renamed cap"
	priority := 9
	updated, err := repo.Update(ctx, capacity.ID, store.PolicyUpdate{
		Label:          &label,
		Priority:       &priority,
		LastModifiedBy: "admin-2",
	})
	if err != nil {
		t.Fatalf("Update error: %v", err)
	}
	if updated.Label != label || updated.Priority != 9 || updated.LastModifiedBy != "admin-2" {
		t.Fatalf("Update = %+v", updated)
	}
	if !updated.UpdatedAt.After(capacity.UpdatedAt) {
		t.Fatalf("updated_at not advanced: %v -> %v", capacity.UpdatedAt, updated.UpdatedAt)
	}

	if _, err := repo.Update(ctx, uuid.New(), store.PolicyUpdate{Label: &label}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Update missing = %v, want ErrNotFound", err)
	}

	// Booking against the ceiling of 2.
	start := time.Date(2026, 1, 6, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		_, err := appts.Book(ctx, domain.Appointment{
			PractitionerID: "prac-1",
			PatientID:      "pat-1",
			StartTime:      start.Add(time.Duration(i) * time.Hour),
			EndTime:        start.Add(time.Duration(i)*time.Hour + 30*time.Minute),
			Status:         domain.AppointmentStatusScheduled,
		}, "2026-01-06", 2)
		if err != nil {
			t.Fatalf("Book %d error: %v", i, err)
		}
	}

	count, err := appts.CountScheduled(ctx, "prac-1", "2026-01-06")
	if err != nil {
		t.Fatalf("CountScheduled error: %v", err)
	}
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}

	_, err = appts.Book(ctx, domain.Appointment{
		PractitionerID: "prac-1",
		PatientID:      "pat-2",
		StartTime:      start.Add(3 * time.Hour),
		EndTime:        start.Add(3*time.Hour + 30*time.Minute),
		Status:         domain.AppointmentStatusScheduled,
	}, "2026-01-06", 2)
	if !errors.Is(err, store.ErrCapacity) {
		t.Fatalf("Book at ceiling = %v, want ErrCapacity", err)
	}

	// Other days and unlimited ceilings are unaffected.
	if _, err := appts.Book(ctx, domain.Appointment{
		PractitionerID: "prac-1",
		PatientID:      "pat-2",
		StartTime:      start.AddDate(0, 0, 1),
		EndTime:        start.AddDate(0, 0, 1).Add(30 * time.Minute),
		Status:         domain.AppointmentStatusScheduled,
	}, "2026-01-07", 2); err != nil {
		t.Fatalf("Book next day error: %v", err)
	}
	if _, err := appts.Book(ctx, domain.Appointment{
		PractitionerID: "prac-1",
		PatientID:      "pat-3",
		StartTime:      start.Add(4 * time.Hour),
		EndTime:        start.Add(4*time.Hour + 30*time.Minute),
		Status:         domain.AppointmentStatusScheduled,
	}, "2026-01-06", 0); err != nil {
		t.Fatalf("Book without ceiling error: %v", err)
	}

	if err := repo.Delete(ctx, capacity.ID); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if _, err := repo.Get(ctx, capacity.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Get deleted = %v, want ErrNotFound", err)
	}
	if err := repo.Delete(ctx, capacity.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Delete twice = %v, want ErrNotFound", err)
	}
}

func randomHex(t *testing.T, bytesLen int) string {
	t.Helper()
	b := make([]byte, bytesLen)
	if _, err := rand.Read(b); err != nil {
		t.Fatalf("rand.Read error: %v", err)
	}
	return hex.EncodeToString(b)
}

type rawExecutor interface {
	NewRaw(query string, args ...any) *bun.RawQuery
}

func applyMigrations(ctx context.Context, exec rawExecutor) error {
	dir, err := migrationsDir()
	if err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		upSQL, err := extractGooseUp(string(b))
		if err != nil {
			return err
		}
		for _, stmt := range splitSQLStatements(upSQL) {
			if _, err := exec.NewRaw(stmt).Exec(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

func migrationsDir() (string, error) {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return "", errors.New("runtime.Caller failed")
	}
	base := filepath.Dir(file)
	return filepath.Clean(filepath.Join(base, "..", "..", "..", "migrations")), nil
}

func extractGooseUp(sql string) (string, error) {
	upMarker := "-- +goose Up"
	downMarker := "-- +goose Down"

	upIdx := strings.Index(sql, upMarker)
	if upIdx < 0 {
		return "", errors.New("missing goose up marker")
	}
	afterUp := sql[upIdx+len(upMarker):]
	afterUp = strings.TrimLeft(afterUp, "\r\n")

	downIdx := strings.Index(afterUp, downMarker)
	if downIdx < 0 {
		return strings.TrimSpace(afterUp), nil
	}
	return strings.TrimSpace(afterUp[:downIdx]), nil
}

func splitSQLStatements(sql string) []string {
	parts := strings.Split(sql, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}
