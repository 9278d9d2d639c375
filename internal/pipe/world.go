package pipe

// World is the host grid as seen by the pipe core. Answers are treated as
// possibly stale: a missing storage simply skips the exchange that needed it.
type World interface {
	// IsPipe reports whether pos holds a pipe cell of the given kind.
	IsPipe(kind string, pos Pos) bool
	// LookupStorage returns the storage exposed by the block at pos on the
	// given side. side is the face of pos that is being accessed.
	LookupStorage(kind string, pos Pos, side Direction) (Storage, bool)
}

type emptyWorld struct{}

func (emptyWorld) IsPipe(string, Pos) bool                              { return false }
func (emptyWorld) LookupStorage(string, Pos, Direction) (Storage, bool) { return nil, false }
