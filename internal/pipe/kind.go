package pipe

// Resource kind names.
const (
	KindHeat   = "heat"
	KindFluid  = "fluid"
	KindEnergy = "energy"
	KindItem   = "item"
)

// TransferLaw computes the quantity moved from a to b in one exchange.
// A negative result moves resource from b to a.
type TransferLaw interface {
	Transfer(a, b float64) float64
}

// ProportionalLaw moves Rate times the difference, from the fuller side to the
// emptier one.
type ProportionalLaw struct {
	Rate float64
}

func (l ProportionalLaw) Transfer(a, b float64) float64 { return (a - b) * l.Rate }

// Dissipation models passive loss applied to pipe storages after a tick.
type Dissipation interface {
	Dissipate(s Storage)
}

// PercentLoss removes Rate of the current amount.
type PercentLoss struct {
	Rate float64
}

func (l PercentLoss) Dissipate(s Storage) {
	v := s.Amount()
	v -= v * l.Rate
	if v < 0 {
		v = 0
	}
	s.SetAmount(v)
}

// Kind describes one resource kind and the policies its networks follow.
type Kind struct {
	Name string
	Law  TransferLaw
	// Loss is nil for kinds without passive loss.
	Loss Dissipation
	// Central networks share one storage instead of keeping one per pipe.
	Central bool
	// Capacity of each created storage; <= 0 means unbounded.
	Capacity float64
	// TrackDistances enables source distance computation.
	TrackDistances bool
}

// NewStorage creates the storage a network of this kind uses for pipes.
func (k Kind) NewStorage() *BasicStorage {
	return NewStorage(k.Capacity, true, true)
}

func (k Kind) law() TransferLaw {
	if k.Law == nil {
		return ProportionalLaw{Rate: DefaultTransferRate}
	}
	return k.Law
}

const (
	DefaultTransferRate   = 0.1
	HeatDissipationRate   = 0.01
	DefaultFluidCapacity  = 1000
	DefaultEnergyCapacity = 0
)

func HeatKind() Kind {
	return Kind{
		Name:           KindHeat,
		Law:            ProportionalLaw{Rate: DefaultTransferRate},
		Loss:           PercentLoss{Rate: HeatDissipationRate},
		TrackDistances: true,
	}
}

func FluidKind() Kind {
	return Kind{
		Name:     KindFluid,
		Law:      ProportionalLaw{Rate: DefaultTransferRate},
		Capacity: DefaultFluidCapacity,
	}
}

func EnergyKind() Kind {
	return Kind{
		Name:     KindEnergy,
		Law:      ProportionalLaw{Rate: DefaultTransferRate},
		Central:  true,
		Capacity: DefaultEnergyCapacity,
	}
}

func ItemKind() Kind {
	return Kind{
		Name:    KindItem,
		Law:     ProportionalLaw{Rate: DefaultTransferRate},
		Central: true,
	}
}

// DefaultKinds returns the built-in kinds in registry order.
func DefaultKinds() []Kind {
	return []Kind{HeatKind(), FluidKind(), EnergyKind(), ItemKind()}
}
