package tuning

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/O7410/Industria/internal/pipe"
)

func TestLoad_RepoConfigMatchesDefaults(t *testing.T) {
	got, err := Load(filepath.Join("..", "..", "..", "configs", "tuning.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Defaults()
	if got.TickRateHz != want.TickRateHz || got.SnapshotEveryTicks != want.SnapshotEveryTicks || got.SyncEveryTicks != want.SyncEveryTicks {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	if len(got.Kinds) != len(want.Kinds) {
		t.Fatalf("kinds=%d, want %d", len(got.Kinds), len(want.Kinds))
	}
	for name, k := range want.Kinds {
		if got.Kinds[name] != k {
			t.Fatalf("kind %s=%+v, want %+v", name, got.Kinds[name], k)
		}
	}
}

func TestLoad_PartialFileIsNormalized(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	body := "snapshot_every_ticks: 10\nkinds:\n  steam:\n    dissipation_rate: 0.05\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.TickRateHz != 20 || got.SnapshotEveryTicks != 10 {
		t.Fatalf("tick_rate_hz=%d snapshot_every_ticks=%d", got.TickRateHz, got.SnapshotEveryTicks)
	}
	if len(got.Kinds) != 1 {
		t.Fatalf("kinds=%v, want only steam", got.Kinds)
	}
	if got.Kinds["steam"].TransferRate != pipe.DefaultTransferRate {
		t.Fatalf("transfer_rate=%v, want default", got.Kinds["steam"].TransferRate)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); !os.IsNotExist(err) {
		t.Fatalf("missing file err=%v, want not-exist", err)
	}

	cases := map[string]string{
		"syntax":        "kinds: [",
		"rate":          "kinds:\n  heat:\n    transfer_rate: 0.9\n",
		"dissipation":   "kinds:\n  heat:\n    dissipation_rate: 1\n",
		"central dists": "kinds:\n  energy:\n    central_storage: true\n    track_distances: true\n",
		"tick rate":     "tick_rate_hz: 5000\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "tuning.yaml")
			if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
				t.Fatal(err)
			}
			_, err := Load(path)
			if err == nil || !strings.HasPrefix(err.Error(), "tuning.yaml:") {
				t.Fatalf("err=%v, want tuning.yaml error", err)
			}
		})
	}
}

func TestPipeKinds(t *testing.T) {
	kinds := Defaults().PipeKinds()
	names := make([]string, 0, len(kinds))
	byName := map[string]pipe.Kind{}
	for _, k := range kinds {
		names = append(names, k.Name)
		byName[k.Name] = k
	}
	if strings.Join(names, ",") != "energy,fluid,heat,item" {
		t.Fatalf("kind order=%v", names)
	}
	heat := byName[pipe.KindHeat]
	if heat.Loss == nil || !heat.TrackDistances || heat.Central {
		t.Fatalf("heat=%+v", heat)
	}
	if byName[pipe.KindFluid].Loss != nil || byName[pipe.KindFluid].Capacity != pipe.DefaultFluidCapacity {
		t.Fatalf("fluid=%+v", byName[pipe.KindFluid])
	}
	if !byName[pipe.KindEnergy].Central || !byName[pipe.KindItem].Central {
		t.Fatalf("energy/item should use a central storage")
	}
}
