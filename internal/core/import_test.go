package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type inserterFunc func(ctx context.Context, categoryID string, r Record) (string, error)

func (f inserterFunc) Insert(ctx context.Context, categoryID string, r Record) (string, error) {
	return f(ctx, categoryID, r)
}

func loadedSession(t *testing.T, categoryID, csv string, opts ImportOptions) *ImportSession {
	t.Helper()
	if opts.RowDelay == 0 {
		opts.RowDelay = -1
	}
	s, err := NewImportSession(mustCategory(t, categoryID), opts)
	if err != nil {
		t.Fatalf("NewImportSession: %v", err)
	}
	if err := s.Load("fixture.csv", strings.NewReader(csv)); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return s
}

func TestImport_ThreeRowSwitchSheet(t *testing.T) {
	store := newFakeStore()
	audit := &memoryAudit{}
	s := loadedSession(t, "telecom", "TAG,IP\nSW-01,10.0.0.1\nSW-02,10.0.0.2\nSW-03,10.0.0.3\n", ImportOptions{Audit: audit})

	if s.State() != StateMapping {
		t.Fatalf("state after load = %s, want mapping", s.State())
	}
	if err := s.SetMapping("switchTag", "TAG"); err != nil {
		t.Fatalf("SetMapping: %v", err)
	}
	if err := s.SetMapping("ip", "IP"); err != nil {
		t.Fatalf("SetMapping: %v", err)
	}
	if !s.CanCommit() {
		t.Fatalf("CanCommit = false, missing %v", s.MissingRequired())
	}

	result, err := s.Commit(context.Background(), store)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if store.insertCount() != 3 {
		t.Errorf("inserts = %d, want 3", store.insertCount())
	}
	for _, r := range store.all("telecom") {
		if r.LocationName != DefaultLocationName {
			t.Errorf("LocationName = %q, want %q", r.LocationName, DefaultLocationName)
		}
		if r.Type != KindSwitch {
			t.Errorf("Type = %q, want switch", r.Type)
		}
	}
	if len(result.ErrorLog) != 0 {
		t.Errorf("ErrorLog = %v, want empty", result.ErrorLog)
	}
	if result.State != StateDone {
		t.Errorf("State = %s, want done", result.State)
	}
	if p := s.Progress(); p.Current != 3 || p.Total != 3 {
		t.Errorf("Progress = %+v, want 3/3", p)
	}
	if got := audit.actions(); len(got) != 1 || got[0] != ActionImportCommit {
		t.Errorf("audit actions = %v", got)
	}
}

func TestImport_OneFailingRowAmongFive(t *testing.T) {
	store := newFakeStore()
	store.failInsert[3] = ErrStoreUnavailable

	csv := "TAG do Switch,Endereço IP,Localização\n" +
		"SW-1,10.0.0.1,A\nSW-2,10.0.0.2,B\nSW-3,10.0.0.3,C\nSW-4,10.0.0.4,D\nSW-5,10.0.0.5,E\n"
	s := loadedSession(t, "telecom", csv, ImportOptions{})

	result, err := s.Commit(context.Background(), store)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if p := s.Progress(); p.Current != 5 {
		t.Errorf("Progress.Current = %d, want 5", p.Current)
	}
	if len(result.ErrorLog) != 1 {
		t.Fatalf("ErrorLog = %v, want one entry", result.ErrorLog)
	}
	// Third data row sits on spreadsheet line 4.
	if !strings.HasPrefix(result.ErrorLog[0], "row 4: ") {
		t.Errorf("ErrorLog[0] = %q, want row 4 prefix", result.ErrorLog[0])
	}
	if result.State != StatePartialFailure || s.State() != StatePartialFailure {
		t.Errorf("State = %s, want partial_failure", result.State)
	}
	if got := len(store.all("telecom")); got != 4 {
		t.Errorf("stored records = %d, want 4", got)
	}
	if result.Inserted != 4 || result.Failed != 1 {
		t.Errorf("Inserted/Failed = %d/%d, want 4/1", result.Inserted, result.Failed)
	}
}

func TestImport_EmbeddedAviActive(t *testing.T) {
	store := newFakeStore()
	s := loadedSession(t, "embarcados", "TAG,AVI ATIVO?\nEMB-1,Sim\nEMB-2,não\n", ImportOptions{})

	if _, err := s.Commit(context.Background(), store); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	got := map[string]bool{}
	for _, r := range store.all("embarcados") {
		d := r.Details.(EmbeddedDetails)
		got[d.EquipmentTag] = d.AviActive
		if r.LocationName != EmbeddedLocationName {
			t.Errorf("LocationName = %q, want N/A", r.LocationName)
		}
	}
	if !got["EMB-1"] {
		t.Error(`"Sim" should store aviActive = true`)
	}
	if got["EMB-2"] {
		t.Error(`"não" should store aviActive = false`)
	}
}

func TestImport_GateBlocksUnmappedRequired(t *testing.T) {
	store := newFakeStore()
	s := loadedSession(t, "cftv", "TAG da Câmera,Local\nCAM-1,Portaria\n", ImportOptions{})

	if s.CanCommit() {
		t.Fatal("CanCommit = true with ip unmapped")
	}
	missing := s.MissingRequired()
	if len(missing) != 1 || missing[0].Key != "ip" {
		t.Errorf("MissingRequired = %v, want [ip]", missing)
	}

	_, err := s.Commit(context.Background(), store)
	if !errors.Is(err, ErrMappingIncomplete) {
		t.Fatalf("Commit error = %v, want ErrMappingIncomplete", err)
	}
	if store.insertCount() != 0 {
		t.Errorf("inserts = %d, want 0", store.insertCount())
	}
	if s.State() != StateMapping {
		t.Errorf("state = %s, want mapping", s.State())
	}
}

func TestImport_SetMappingValidation(t *testing.T) {
	s := loadedSession(t, "telecom", "TAG,IP\nSW-1,10.0.0.1\n", ImportOptions{})

	if err := s.SetMapping("nope", "TAG"); !errors.Is(err, ErrUnknownField) {
		t.Errorf("unknown field error = %v", err)
	}
	if err := s.SetMapping("switchTag", "Missing"); !errors.Is(err, ErrUnknownHeader) {
		t.Errorf("unknown header error = %v", err)
	}
	if err := s.SetMapping("ip", ""); err != nil {
		t.Fatalf("clear mapping: %v", err)
	}
	if _, ok := s.Mapping()["ip"]; ok {
		t.Error("ip mapping not cleared")
	}
}

func TestImport_ResetDiscardsMapping(t *testing.T) {
	s := loadedSession(t, "telecom", "TAG,IP\nSW-1,10.0.0.1\n", ImportOptions{})
	if err := s.SetMapping("switchTag", "TAG"); err != nil {
		t.Fatal(err)
	}

	if err := s.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if s.State() != StateUpload {
		t.Errorf("state = %s, want upload", s.State())
	}
	if len(s.Mapping()) != 0 || len(s.Headers()) != 0 {
		t.Errorf("mapping %v / headers %v survived reset", s.Mapping(), s.Headers())
	}
	if err := s.SetMapping("switchTag", "TAG"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("SetMapping after reset = %v, want ErrInvalidState", err)
	}
}

func TestImport_LoadRejectsEmptyFile(t *testing.T) {
	s, err := NewImportSession(mustCategory(t, "telecom"), ImportOptions{})
	if err != nil {
		t.Fatal(err)
	}

	err = s.Load("empty.csv", strings.NewReader(""))
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("Load error = %v, want *ParseError", err)
	}
	if s.State() != StateUpload {
		t.Errorf("state = %s, want upload", s.State())
	}
}

func TestImport_CancelStopsAfterCurrentRow(t *testing.T) {
	s := loadedSession(t, "telecom", "TAG,IP\nA,1\nB,2\nC,3\nD,4\n", ImportOptions{})
	if err := s.SetMapping("switchTag", "TAG"); err != nil {
		t.Fatal(err)
	}

	entered := make(chan struct{})
	release := make(chan struct{})
	calls := 0
	ins := inserterFunc(func(ctx context.Context, categoryID string, r Record) (string, error) {
		calls++
		if calls == 1 {
			close(entered)
			<-release
		}
		return "id", nil
	})

	done := make(chan ImportResult)
	go func() {
		result, err := s.Commit(context.Background(), ins)
		if err != nil {
			t.Errorf("Commit: %v", err)
		}
		done <- result
	}()

	<-entered
	if err := s.Cancel(); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	close(release)

	result := <-done
	if result.State != StateCancelled {
		t.Errorf("State = %s, want cancelled", result.State)
	}
	if calls != 1 {
		t.Errorf("inserts = %d, want 1", calls)
	}
	if n := len(result.ErrorLog); n == 0 || !strings.Contains(result.ErrorLog[n-1], "cancelled") {
		t.Errorf("ErrorLog = %v, want cancellation entry", result.ErrorLog)
	}
}

func TestImport_CancelOutsideCommit(t *testing.T) {
	s := loadedSession(t, "telecom", "TAG,IP\nA,1\n", ImportOptions{})
	if err := s.Cancel(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Cancel in mapping = %v, want ErrInvalidState", err)
	}
}

func TestImport_ProgressListener(t *testing.T) {
	s := loadedSession(t, "telecom", "TAG,IP\nA,1\nB,2\n", ImportOptions{})
	if err := s.SetMapping("switchTag", "TAG"); err != nil {
		t.Fatal(err)
	}

	updates, stop := s.SubscribeProgress()
	defer stop()

	first := <-updates
	if first.State != StateMapping || first.Total != 2 {
		t.Errorf("first update = %+v", first)
	}

	if _, err := s.Commit(context.Background(), newFakeStore()); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	var last ImportProgress
	for p := range updates {
		last = p
	}
	if last.State != StateDone || last.Current != 2 {
		t.Errorf("last update = %+v, want done 2/2", last)
	}

	// A listener that arrives late gets the final state and a closed channel.
	late, _ := s.SubscribeProgress()
	p, ok := <-late
	if !ok || p.State != StateDone {
		t.Errorf("late listener got %+v (ok=%v)", p, ok)
	}
	if _, ok := <-late; ok {
		t.Error("late listener channel not closed")
	}
}

func TestImport_SubscribeRacingCommitEnd(t *testing.T) {
	store := newFakeStore()
	for trial := 0; trial < 200; trial++ {
		s := loadedSession(t, "telecom", "TAG,IP\nA,1\n", ImportOptions{})
		if err := s.SetMapping("switchTag", "TAG"); err != nil {
			t.Fatal(err)
		}

		done := make(chan struct{})
		go func() {
			defer close(done)
			if _, err := s.Commit(context.Background(), store); err != nil {
				t.Errorf("Commit: %v", err)
			}
		}()

		updates, stop := s.SubscribeProgress()
		timeout := time.After(2 * time.Second)
	drain:
		for {
			select {
			case _, ok := <-updates:
				if !ok {
					break drain
				}
			case <-timeout:
				t.Fatalf("trial %d: progress channel never closed", trial)
			}
		}
		stop()
		<-done
	}
}

func TestImport_ResetReopensProgress(t *testing.T) {
	s := loadedSession(t, "telecom", "TAG,IP\nA,1\n", ImportOptions{})
	if err := s.SetMapping("switchTag", "TAG"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Commit(context.Background(), newFakeStore()); err != nil {
		t.Fatal(err)
	}
	if err := s.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	updates, stop := s.SubscribeProgress()
	defer stop()
	if p := <-updates; p.State != StateUpload {
		t.Errorf("first update = %+v, want upload", p)
	}
	select {
	case _, ok := <-updates:
		if !ok {
			t.Error("listener after Reset was closed")
		}
	default:
	}
}

func TestImport_RowDelay(t *testing.T) {
	s := loadedSession(t, "telecom", "TAG,IP\nA,1\nB,2\nC,3\n", ImportOptions{RowDelay: 15 * time.Millisecond})
	if err := s.SetMapping("switchTag", "TAG"); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	if _, err := s.Commit(context.Background(), newFakeStore()); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	// Two pauses between three rows.
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("commit took %v, want at least 30ms", elapsed)
	}
}

func TestImport_CommitTwiceRefused(t *testing.T) {
	s := loadedSession(t, "telecom", "TAG,IP\nA,1\n", ImportOptions{})
	if err := s.SetMapping("switchTag", "TAG"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Commit(context.Background(), newFakeStore()); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Commit(context.Background(), newFakeStore()); !errors.Is(err, ErrInvalidState) {
		t.Errorf("second Commit = %v, want ErrInvalidState", err)
	}
}
