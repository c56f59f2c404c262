package device

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/quarterline/avops-core/internal/control"
	"github.com/quarterline/avops-core/internal/infrastructure/database"
)

func testRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{
		Path:        filepath.Join(t.TempDir(), "devices.db"),
		BusyTimeout: 1,
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	_, err = db.ExecContext(ctx, `CREATE TABLE devices (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		family TEXT NOT NULL,
		ip_address TEXT NOT NULL,
		tcp_port INTEGER NOT NULL DEFAULT 23,
		udp_port INTEGER NOT NULL DEFAULT 4000,
		protocol TEXT NOT NULL DEFAULT 'tcp',
		inputs TEXT,
		outputs TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`)
	if err != nil {
		t.Fatalf("create table: %v", err)
	}

	return NewSQLiteRepository(db.DB)
}

func matrixDevice() *Device {
	return &Device{
		ID:        "matrix-main",
		Name:      "Main Matrix",
		Family:    FamilyMatrix,
		IPAddress: "192.168.1.50",
		TCPPort:   23,
		UDPPort:   4000,
		Protocol:  control.TransportTCP,
		Inputs:    []int{1, 2, 3},
		Outputs:   []int{1, 2},
	}
}

func atlasDevice() *Device {
	return &Device{
		ID:        "atlas-azm8",
		Name:      "Zone Processor",
		Family:    FamilyAtlas,
		IPAddress: "192.168.1.60",
		TCPPort:   5321,
		Protocol:  control.TransportTCP,
	}
}

func TestUpsertAndGet(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	if err := repo.Upsert(ctx, matrixDevice()); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	got, err := repo.GetByID(ctx, "matrix-main")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Name != "Main Matrix" || got.Family != FamilyMatrix {
		t.Errorf("got %+v", got)
	}
	if len(got.Inputs) != 3 || got.Inputs[2] != 3 {
		t.Errorf("inputs = %v, want [1 2 3]", got.Inputs)
	}
	if len(got.Outputs) != 2 {
		t.Errorf("outputs = %v, want [1 2]", got.Outputs)
	}
}

func TestUpsert_ReplacesExisting(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	d := matrixDevice()
	if err := repo.Upsert(ctx, d); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	d.Name = "Rack Matrix"
	d.Inputs = []int{1, 2, 3, 4}
	if err := repo.Upsert(ctx, d); err != nil {
		t.Fatalf("Upsert() second error = %v", err)
	}

	got, err := repo.GetByID(ctx, d.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Name != "Rack Matrix" || len(got.Inputs) != 4 {
		t.Errorf("got %+v, want replaced record", got)
	}
}

func TestUpsert_RejectsInvalid(t *testing.T) {
	repo := testRepo(t)

	d := matrixDevice()
	d.IPAddress = ""
	if err := repo.Upsert(context.Background(), d); !errors.Is(err, ErrInvalidDevice) {
		t.Errorf("error = %v, want ErrInvalidDevice", err)
	}
}

func TestGetByID_NotFound(t *testing.T) {
	repo := testRepo(t)

	_, err := repo.GetByID(context.Background(), "ghost")
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("error = %v, want ErrDeviceNotFound", err)
	}
}

func TestListByFamily(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	for _, d := range []*Device{matrixDevice(), atlasDevice()} {
		if err := repo.Upsert(ctx, d); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
	}

	matrices, err := repo.ListByFamily(ctx, FamilyMatrix)
	if err != nil {
		t.Fatalf("ListByFamily() error = %v", err)
	}
	if len(matrices) != 1 || matrices[0].ID != "matrix-main" {
		t.Errorf("matrices = %+v", matrices)
	}

	all, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 2 {
		t.Errorf("List() = %d devices, want 2", len(all))
	}
}

func TestDelete(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	if err := repo.Upsert(ctx, atlasDevice()); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := repo.Delete(ctx, "atlas-azm8"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := repo.Delete(ctx, "atlas-azm8"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("second delete error = %v, want ErrDeviceNotFound", err)
	}
}

func TestDeviceValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Device)
		wantErr bool
	}{
		{name: "valid tcp", mutate: func(*Device) {}},
		{name: "valid udp", mutate: func(d *Device) { d.Protocol = control.TransportUDP }},
		{name: "missing id", mutate: func(d *Device) { d.ID = "" }, wantErr: true},
		{name: "bad family", mutate: func(d *Device) { d.Family = "toaster" }, wantErr: true},
		{name: "no address", mutate: func(d *Device) { d.IPAddress = "" }, wantErr: true},
		{name: "bad tcp port", mutate: func(d *Device) { d.TCPPort = 0 }, wantErr: true},
		{name: "bad udp port ignored on tcp", mutate: func(d *Device) { d.UDPPort = 0 }},
		{name: "bad protocol", mutate: func(d *Device) { d.Protocol = "serial" }, wantErr: true},
		{name: "bad input channel", mutate: func(d *Device) { d.Inputs = []int{0} }, wantErr: true},
		{name: "bad output channel", mutate: func(d *Device) { d.Outputs = []int{-1} }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := matrixDevice()
			tt.mutate(d)
			err := d.Validate()
			if tt.wantErr && !errors.Is(err, ErrInvalidDevice) {
				t.Errorf("Validate() = %v, want ErrInvalidDevice", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
		})
	}
}

func TestDeviceEndpoint(t *testing.T) {
	d := matrixDevice()
	ep := d.Endpoint()
	if ep.Port != 23 || ep.Transport != control.TransportTCP {
		t.Errorf("tcp endpoint = %+v", ep)
	}

	d.Protocol = control.TransportUDP
	ep = d.Endpoint()
	if ep.Port != 4000 || ep.Transport != control.TransportUDP {
		t.Errorf("udp endpoint = %+v", ep)
	}
}
