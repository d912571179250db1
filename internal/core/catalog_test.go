package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fixedLocator struct {
	pos   Coordinates
	err   error
	delay time.Duration
}

func (l fixedLocator) CurrentPosition(ctx context.Context) (Coordinates, error) {
	if l.delay > 0 {
		select {
		case <-time.After(l.delay):
		case <-ctx.Done():
			return Coordinates{}, ctx.Err()
		}
	}
	return l.pos, l.err
}

func openCatalog(t *testing.T, store Store, categoryID string, opts CatalogOptions) *Catalog {
	t.Helper()
	c, err := OpenCatalog(store, mustCategory(t, categoryID), opts)
	if err != nil {
		t.Fatalf("OpenCatalog: %v", err)
	}
	t.Cleanup(c.Close)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.WaitReady(ctx); err != nil {
		t.Fatalf("WaitReady: %v", err)
	}
	return c
}

func TestCatalog_CreateRoundTrip(t *testing.T) {
	store := newFakeStore()
	audit := &memoryAudit{}
	c := openCatalog(t, store, "cftv", CatalogOptions{Audit: audit})

	ctx := ContextWithOperator(context.Background(), Operator{ID: "u-1", Email: "op@example.com"})
	form := CreateForm{Values: FieldValues{
		"cameraTag":       "CAM-01",
		"ip":              "10.0.0.10",
		"status":          "Offline",
		"connectedSwitch": "SW-01",
		"panel":           "P1",
		FieldLocationName: "Portaria",
		FieldEquipment:    "Dome",
	}}

	created, err := c.Create(ctx, form)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, ok := c.Get(created.ID)
	if !ok {
		t.Fatal("created record not delivered to the catalog")
	}
	want := CftvDetails{CameraTag: "CAM-01", Status: StatusOffline, IP: "10.0.0.10", ConnectedSwitch: "SW-01", Panel: "P1"}
	if got.Details != want {
		t.Errorf("Details = %+v, want %+v", got.Details, want)
	}
	if got.LocationName != "Portaria" || got.Equipment != "Dome" {
		t.Errorf("common fields = %q / %q", got.LocationName, got.Equipment)
	}
	if got.CreatedBy != "u-1" || got.AuthorEmail != "op@example.com" {
		t.Errorf("operator = %q / %q", got.CreatedBy, got.AuthorEmail)
	}
	if got.Coordinates != nil {
		t.Errorf("Coordinates = %v, want nil", got.Coordinates)
	}
	if got := audit.actions(); len(got) != 1 || got[0] != ActionRecordCreate {
		t.Errorf("audit = %v", got)
	}
}

func TestCatalog_CreateValidation(t *testing.T) {
	store := newFakeStore()
	c := openCatalog(t, store, "telecom", CatalogOptions{})

	_, err := c.Create(context.Background(), CreateForm{Values: FieldValues{"switchTag": "SW-1"}})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Create error = %v, want *ValidationError", err)
	}
	if len(verr.Missing) != 2 {
		t.Errorf("Missing = %v, want ip and location", verr.Missing)
	}
	if store.insertCount() != 0 || c.Len() != 0 {
		t.Error("failed create changed the store")
	}
}

func TestCatalog_CreateStoreFailureLeavesStateUnchanged(t *testing.T) {
	store := newFakeStore()
	store.failInsert[1] = ErrStoreUnavailable
	c := openCatalog(t, store, "telecom", CatalogOptions{})

	form := CreateForm{Values: FieldValues{"switchTag": "SW-1", "ip": "10.0.0.1", FieldLocationName: "Rack"}}
	if _, err := c.Create(context.Background(), form); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("Create error = %v", err)
	}
	if c.Len() != 0 {
		t.Errorf("Len = %d after failed insert", c.Len())
	}

	// Resubmitting the same form works.
	if _, err := c.Create(context.Background(), form); err != nil {
		t.Fatalf("retry Create: %v", err)
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
}

func TestCatalog_CreateEmbeddedForcesLocation(t *testing.T) {
	store := newFakeStore()
	c := openCatalog(t, store, "embarcados", CatalogOptions{Locator: fixedLocator{pos: Coordinates{Lat: 1, Lng: 2}}})

	r, err := c.Create(context.Background(), CreateForm{
		Values:      FieldValues{"equipmentTag": "EMB-1", "aviActive": "Sim", FieldLocationName: "ignored"},
		UseLocation: true,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if r.LocationName != EmbeddedLocationName {
		t.Errorf("LocationName = %q", r.LocationName)
	}
	if r.Coordinates != nil {
		t.Error("embarcados records never capture a position")
	}
	if !r.Details.(EmbeddedDetails).AviActive {
		t.Error("aviActive should be true")
	}
}

func TestCatalog_CreateWithLocation(t *testing.T) {
	tests := []struct {
		name    string
		locator Locator
		timeout time.Duration
		want    *Coordinates
	}{
		{
			name:    "position captured",
			locator: fixedLocator{pos: Coordinates{Lat: -23.5, Lng: -46.6}},
			want:    &Coordinates{Lat: -23.5, Lng: -46.6},
		},
		{
			name:    "denied proceeds without position",
			locator: fixedLocator{err: errors.New("permission denied")},
		},
		{
			name:    "timeout proceeds without position",
			locator: fixedLocator{delay: time.Second},
			timeout: 20 * time.Millisecond,
		},
		{
			name: "no locator configured",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			c := openCatalog(t, store, "telecom", CatalogOptions{Locator: tt.locator, LocateTimeout: tt.timeout})

			start := time.Now()
			r, err := c.Create(context.Background(), CreateForm{
				Values:      FieldValues{"switchTag": "SW-1", "ip": "10.0.0.1", FieldLocationName: "Rack"},
				UseLocation: true,
			})
			if err != nil {
				t.Fatalf("Create: %v", err)
			}
			if time.Since(start) > 500*time.Millisecond {
				t.Errorf("Create blocked for %v", time.Since(start))
			}
			switch {
			case tt.want == nil && r.Coordinates != nil:
				t.Errorf("Coordinates = %v, want nil", r.Coordinates)
			case tt.want != nil && (r.Coordinates == nil || *r.Coordinates != *tt.want):
				t.Errorf("Coordinates = %v, want %v", r.Coordinates, tt.want)
			}
		})
	}
}

func seedSwitches(t *testing.T, c *Catalog) {
	t.Helper()
	for _, v := range []FieldValues{
		{"switchTag": "SW-01", "ip": "10.0.0.1", FieldLocationName: "Sala Servidores"},
		{"switchTag": "SW-02", "ip": "192.168.1.2", FieldLocationName: "Almoxarifado"},
		{"switchTag": "CORE", "ip": "10.0.0.254", FieldLocationName: "Datacenter"},
	} {
		if _, err := c.Create(context.Background(), CreateForm{Values: v}); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
}

func TestCatalog_Search(t *testing.T) {
	store := newFakeStore()
	c := openCatalog(t, store, "telecom", CatalogOptions{})
	seedSwitches(t, c)

	tests := []struct {
		term string
		want int
	}{
		{"", 3},
		{"sw-01", 1},
		{"SW-0", 2},
		{"sala", 1},
		{"10.0.0", 2},
		{"  DATACENTER ", 1},
		{"nothing", 0},
	}
	for _, tt := range tests {
		t.Run(tt.term, func(t *testing.T) {
			if got := len(c.Search(tt.term)); got != tt.want {
				t.Errorf("Search(%q) = %d records, want %d", tt.term, got, tt.want)
			}
		})
	}
}

func TestSearchRecords_EmbeddedIgnoresIP(t *testing.T) {
	records := []Record{
		{Type: KindEmbedded, LocationName: EmbeddedLocationName, Details: EmbeddedDetails{EquipmentTag: "EMB-7", IPAviLte: "10.7.7.7"}},
	}
	if got := SearchRecords(records, "emb-7"); len(got) != 1 {
		t.Errorf("tag search found %d", len(got))
	}
	if got := SearchRecords(records, "10.7"); len(got) != 0 {
		t.Errorf("ip search found %d, embarcados matches tag only", len(got))
	}
}

func TestCatalog_RemoveRequiresConfirmation(t *testing.T) {
	store := newFakeStore()
	audit := &memoryAudit{}
	c := openCatalog(t, store, "telecom", CatalogOptions{Audit: audit})
	seedSwitches(t, c)

	target := c.Records()[0]
	if err := c.Select(target.ID); err != nil {
		t.Fatalf("Select: %v", err)
	}

	removed, err := c.Remove(context.Background(), target, func(Record) bool { return false })
	if err != nil || removed {
		t.Fatalf("declined Remove = %v, %v", removed, err)
	}
	if c.Len() != 3 {
		t.Errorf("Len = %d after declined delete, want 3", c.Len())
	}
	if _, ok := c.Selected(); !ok {
		t.Error("declined delete closed the detail view")
	}

	removed, err = c.Remove(context.Background(), target, func(Record) bool { return true })
	if err != nil || !removed {
		t.Fatalf("confirmed Remove = %v, %v", removed, err)
	}
	if c.Len() != 2 {
		t.Errorf("Len = %d, want 2", c.Len())
	}
	if _, ok := c.Selected(); ok {
		t.Error("detail view still open after delete")
	}
	if _, ok := c.Get(target.ID); ok {
		t.Error("deleted record still present")
	}
}

func TestCatalog_RemoveAlreadyDeleted(t *testing.T) {
	store := newFakeStore()
	c := openCatalog(t, store, "telecom", CatalogOptions{})
	seedSwitches(t, c)

	target := c.Records()[0]
	if err := store.Delete(context.Background(), "telecom", target.ID); err != nil {
		t.Fatal(err)
	}

	removed, err := c.Remove(context.Background(), target, func(Record) bool { return true })
	if err != nil || !removed {
		t.Errorf("Remove of a gone record = %v, %v; want treated as done", removed, err)
	}
}

func TestCatalog_RemoveStoreFailure(t *testing.T) {
	store := newFakeStore()
	c := openCatalog(t, store, "telecom", CatalogOptions{})
	seedSwitches(t, c)
	store.deleteErr = &StoreError{Op: "delete", Category: "telecom", Err: ErrStoreUnavailable}

	target := c.Records()[0]
	_ = c.Select(target.ID)
	if _, err := c.Remove(context.Background(), target, func(Record) bool { return true }); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("Remove = %v", err)
	}
	if _, ok := c.Selected(); !ok {
		t.Error("failed delete closed the detail view")
	}
}

func TestCatalog_RemoveWrongKind(t *testing.T) {
	c := openCatalog(t, newFakeStore(), "telecom", CatalogOptions{})
	r := Record{ID: "x", Type: KindCftv, Details: CftvDetails{}}
	if _, err := c.Remove(context.Background(), r, func(Record) bool { return true }); !errors.Is(err, ErrKindMismatch) {
		t.Errorf("Remove = %v, want ErrKindMismatch", err)
	}
}

func TestCatalog_Watch(t *testing.T) {
	store := newFakeStore()
	c := openCatalog(t, store, "telecom", CatalogOptions{})

	updates, stop := c.Watch()
	defer stop()

	seedSwitches(t, c)

	select {
	case snap := <-updates:
		if len(snap) != 3 {
			t.Errorf("latest snapshot has %d records, want 3", len(snap))
		}
	case <-time.After(time.Second):
		t.Fatal("no snapshot delivered")
	}
}

func TestCatalog_RecordsOrderedByCreation(t *testing.T) {
	store := newFakeStore()
	now := time.UnixMilli(1_700_000_000_000)
	c := openCatalog(t, store, "telecom", CatalogOptions{Now: func() time.Time {
		now = now.Add(time.Second)
		return now
	}})
	seedSwitches(t, c)

	records := c.Records()
	for i := 1; i < len(records); i++ {
		if records[i-1].CreatedAt > records[i].CreatedAt {
			t.Errorf("records out of order at %d", i)
		}
	}
	if records[0].Tag() != "SW-01" {
		t.Errorf("first record = %q, want SW-01", records[0].Tag())
	}
}
