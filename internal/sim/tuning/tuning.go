package tuning

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/O7410/Industria/internal/pipe"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz         int `yaml:"tick_rate_hz"`
	SnapshotEveryTicks int `yaml:"snapshot_every_ticks"`
	// SyncEveryTicks forces a full sync of every network at this cadence so
	// subscribers see amounts change. 0 sends structural changes only.
	SyncEveryTicks int `yaml:"sync_every_ticks"`

	Kinds map[string]KindTuning `yaml:"kinds"`
}

type KindTuning struct {
	TransferRate    float64 `yaml:"transfer_rate"`
	DissipationRate float64 `yaml:"dissipation_rate"`
	CentralStorage  bool    `yaml:"central_storage"`
	// Capacity of each pipe storage; 0 means unbounded.
	Capacity       float64 `yaml:"capacity"`
	TrackDistances bool    `yaml:"track_distances"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:    "1.0",
		TickRateHz:         20,
		SnapshotEveryTicks: 3000,
		SyncEveryTicks:     20,
		Kinds: map[string]KindTuning{
			pipe.KindHeat: {
				TransferRate:    pipe.DefaultTransferRate,
				DissipationRate: pipe.HeatDissipationRate,
				TrackDistances:  true,
			},
			pipe.KindFluid: {
				TransferRate: pipe.DefaultTransferRate,
				Capacity:     pipe.DefaultFluidCapacity,
			},
			pipe.KindEnergy: {
				TransferRate:   pipe.DefaultTransferRate,
				CentralStorage: true,
			},
			pipe.KindItem: {
				TransferRate:   pipe.DefaultTransferRate,
				CentralStorage: true,
			},
		},
	}
}

func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	// A kinds section in the file replaces the built-in set.
	t.Kinds = nil
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if len(t.Kinds) == 0 {
		t.Kinds = Defaults().Kinds
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

// Normalize fills zero values with defaults.
func (t *Tuning) Normalize() {
	d := Defaults()
	if t.ProtocolVersion == "" {
		t.ProtocolVersion = d.ProtocolVersion
	}
	if t.TickRateHz <= 0 {
		t.TickRateHz = d.TickRateHz
	}
	if t.SnapshotEveryTicks < 0 {
		t.SnapshotEveryTicks = 0
	}
	if t.SyncEveryTicks < 0 {
		t.SyncEveryTicks = 0
	}
	for name, k := range t.Kinds {
		if k.TransferRate == 0 {
			k.TransferRate = pipe.DefaultTransferRate
		}
		t.Kinds[name] = k
	}
}

func (t Tuning) Validate() error {
	var errs []error
	if t.TickRateHz > 1000 {
		errs = append(errs, fmt.Errorf("tick_rate_hz %d out of range (1..1000)", t.TickRateHz))
	}
	if len(t.Kinds) == 0 {
		errs = append(errs, errors.New("kinds: at least one kind required"))
	}
	for _, name := range t.kindNames() {
		k := t.Kinds[name]
		if name == "" {
			errs = append(errs, errors.New("kinds: empty kind name"))
		}
		// Rates above 0.5 overshoot the pair average and oscillate.
		if k.TransferRate < 0 || k.TransferRate > 0.5 {
			errs = append(errs, fmt.Errorf("kinds.%s.transfer_rate %v out of range (0..0.5]", name, k.TransferRate))
		}
		if k.DissipationRate < 0 || k.DissipationRate >= 1 {
			errs = append(errs, fmt.Errorf("kinds.%s.dissipation_rate %v out of range [0..1)", name, k.DissipationRate))
		}
		if k.Capacity < 0 {
			errs = append(errs, fmt.Errorf("kinds.%s.capacity %v is negative", name, k.Capacity))
		}
		if k.CentralStorage && k.TrackDistances {
			errs = append(errs, fmt.Errorf("kinds.%s: track_distances requires per-pipe storage", name))
		}
	}
	return errors.Join(errs...)
}

// PipeKinds builds the registry kinds, ordered by name.
func (t Tuning) PipeKinds() []pipe.Kind {
	out := make([]pipe.Kind, 0, len(t.Kinds))
	for _, name := range t.kindNames() {
		k := t.Kinds[name]
		pk := pipe.Kind{
			Name:           name,
			Law:            pipe.ProportionalLaw{Rate: k.TransferRate},
			Central:        k.CentralStorage,
			Capacity:       k.Capacity,
			TrackDistances: k.TrackDistances,
		}
		if k.DissipationRate > 0 {
			pk.Loss = pipe.PercentLoss{Rate: k.DissipationRate}
		}
		out = append(out, pk)
	}
	return out
}

func (t Tuning) kindNames() []string {
	names := make([]string, 0, len(t.Kinds))
	for name := range t.Kinds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
