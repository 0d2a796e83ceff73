package db

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/marcus/arcsync/internal/models"
)

func newTestDB(t *testing.T) (*DB, string) {
	t.Helper()
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, dir
}

func device(name string) models.DevicePayload {
	return models.DevicePayload{
		Name: name, Address: "192.168.1.20", HttpPort: 80, RtspPort: 554,
		UserName: "admin", Password: "secret", Type: "ipcam",
	}
}

func TestOpen_CreatesFileAndSchema(t *testing.T) {
	db, dir := newTestDB(t)

	if _, err := os.Stat(filepath.Join(dir, dbFile)); err != nil {
		t.Fatalf("database file not created: %v", err)
	}
	if v := db.SchemaVersion(); v != SchemaVersion {
		t.Errorf("schema version = %d, want %d", v, SchemaVersion)
	}

	n, err := db.RunMigrations()
	if err != nil {
		t.Fatalf("RunMigrations: %v", err)
	}
	if n != 0 {
		t.Errorf("second RunMigrations ran %d migrations, want 0", n)
	}
}

func TestAppendOperation_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	var ids []int64
	for _, name := range []string{"a", "b", "c"} {
		id, err := db.AppendOperation(ctx, models.KindDeviceAdd, device(name))
		if err != nil {
			t.Fatalf("AppendOperation(%s): %v", name, err)
		}
		ids = append(ids, id)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err = Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()

	ops, err := db.ListOperations(ctx)
	if err != nil {
		t.Fatalf("ListOperations: %v", err)
	}
	if len(ops) != 3 {
		t.Fatalf("got %d operations after reopen, want 3", len(ops))
	}
	for i, op := range ops {
		if op.ID != ids[i] {
			t.Errorf("ops[%d].ID = %d, want %d", i, op.ID, ids[i])
		}
		if op.Kind != models.KindDeviceAdd {
			t.Errorf("ops[%d].Kind = %q", i, op.Kind)
		}
		d, err := op.DecodeDevice()
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if want := []string{"a", "b", "c"}[i]; d.Name != want {
			t.Errorf("ops[%d] name = %q, want %q", i, d.Name, want)
		}
		if op.EnqueuedAt.IsZero() {
			t.Errorf("ops[%d] has zero timestamp", i)
		}
	}
}

func TestAppendOperation_IDsIncreaseAndAreNotReused(t *testing.T) {
	ctx := context.Background()
	db, _ := newTestDB(t)

	first, _ := db.AppendOperation(ctx, models.KindDeviceAdd, device("a"))
	second, _ := db.AppendOperation(ctx, models.KindDeviceAdd, device("b"))
	if second <= first {
		t.Fatalf("ids not increasing: %d then %d", first, second)
	}
	if err := db.RemoveOperation(ctx, second); err != nil {
		t.Fatalf("RemoveOperation: %v", err)
	}
	third, _ := db.AppendOperation(ctx, models.KindDeviceAdd, device("c"))
	if third <= second {
		t.Errorf("id %d reused or decreased after removing %d", third, second)
	}
}

func TestAppendOperation_ConcurrentProducers(t *testing.T) {
	ctx := context.Background()
	db, _ := newTestDB(t)

	const n = 50
	ids := make([]int64, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i], errs[i] = db.AppendOperation(ctx, models.KindDeviceAdd, device(fmt.Sprintf("cam-%d", i)))
		}(i)
	}
	wg.Wait()

	seen := make(map[int64]bool, n)
	for i, err := range errs {
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		if seen[ids[i]] {
			t.Fatalf("id %d assigned twice", ids[i])
		}
		seen[ids[i]] = true
	}

	ops, err := db.ListOperations(ctx)
	if err != nil {
		t.Fatalf("ListOperations: %v", err)
	}
	if len(ops) != n {
		t.Fatalf("listed %d operations, want %d", len(ops), n)
	}
	for i, op := range ops {
		if !seen[op.ID] {
			t.Errorf("listed unknown id %d", op.ID)
		}
		if i > 0 && op.ID <= ops[i-1].ID {
			t.Errorf("ids out of order at %d: %d after %d", i, op.ID, ops[i-1].ID)
		}
	}
}

func TestAppendOperation_RejectsInvalidPayload(t *testing.T) {
	ctx := context.Background()
	db, _ := newTestDB(t)

	bad := device("")
	if _, err := db.AppendOperation(ctx, models.KindDeviceAdd, bad); err == nil {
		t.Fatal("expected validation error for empty name")
	}
	if _, err := db.AppendOperation(ctx, "device.unknown", device("x")); err == nil {
		t.Fatal("expected error for unknown kind")
	}
	n, err := db.CountOperations(ctx)
	if err != nil {
		t.Fatalf("CountOperations: %v", err)
	}
	if n != 0 {
		t.Errorf("rejected payloads were stored: count = %d", n)
	}
}

func TestRemoveOperation(t *testing.T) {
	ctx := context.Background()
	db, _ := newTestDB(t)

	id, _ := db.AppendOperation(ctx, models.KindDeviceAdd, device("a"))
	keep, _ := db.AppendOperation(ctx, models.KindDeviceAdd, device("b"))

	if err := db.RemoveOperation(ctx, id); err != nil {
		t.Fatalf("RemoveOperation: %v", err)
	}
	err := db.RemoveOperation(ctx, id)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("second remove: got %v, want ErrNotFound", err)
	}

	ops, _ := db.ListOperations(ctx)
	if len(ops) != 1 || ops[0].ID != keep {
		t.Errorf("remaining = %+v, want only %d", ops, keep)
	}
}

func TestAppendOperation_AcceptsRawJSON(t *testing.T) {
	ctx := context.Background()
	db, _ := newTestDB(t)

	raw := []byte(`{"Name":"door","Address":"10.0.0.2","HttpPort":8080,"RtspPort":554,"Type":"nvr"}`)
	if _, err := db.AppendOperation(ctx, models.KindDeviceAdd, raw); err != nil {
		t.Fatalf("AppendOperation raw: %v", err)
	}
	ops, _ := db.ListOperations(ctx)
	if len(ops) != 1 || string(ops[0].Payload) != string(raw) {
		t.Errorf("payload not stored verbatim: %+v", ops)
	}
}

func TestEvents(t *testing.T) {
	ctx := context.Background()
	db, _ := newTestDB(t)

	last, err := db.LastEvent(ctx)
	if err != nil {
		t.Fatalf("LastEvent on empty log: %v", err)
	}
	if last != nil {
		t.Fatalf("LastEvent on empty log = %+v, want nil", last)
	}

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	step := 0
	db.now = func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Second)
	}

	kinds := []models.EventKind{models.EventStart, models.EventTick, models.EventRequest, models.EventTimeout}
	for _, k := range kinds {
		if err := db.AppendEvent(ctx, k, string(k)+" happened"); err != nil {
			t.Fatalf("AppendEvent: %v", err)
		}
	}

	all, err := db.ListEvents(ctx, 0)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(all) != len(kinds) {
		t.Fatalf("got %d events, want %d", len(all), len(kinds))
	}
	for i, e := range all {
		if e.Kind != kinds[i] {
			t.Errorf("all[%d].Kind = %s, want %s", i, e.Kind, kinds[i])
		}
	}

	tail, _ := db.ListEvents(ctx, 2)
	if len(tail) != 2 || tail[0].Kind != models.EventRequest || tail[1].Kind != models.EventTimeout {
		t.Errorf("tail = %+v", tail)
	}

	last, _ = db.LastEvent(ctx)
	if last == nil || last.Kind != models.EventTimeout {
		t.Fatalf("LastEvent = %+v", last)
	}
	if !last.Time.Equal(base.Add(4 * time.Second)) {
		t.Errorf("LastEvent time = %v", last.Time)
	}
}
