package pipe

import "sort"

// Pos identifies a grid cell.
type Pos struct {
	X int
	Y int
	Z int
}

// ToArray is the wire form used by records and messages.
func (p Pos) ToArray() [3]int { return [3]int{p.X, p.Y, p.Z} }

// PosFromArray is the inverse of ToArray.
func PosFromArray(a [3]int) Pos { return Pos{X: a[0], Y: a[1], Z: a[2]} }

// Offset returns the neighbouring cell in direction d.
func (p Pos) Offset(d Direction) Pos {
	o := dirOffsets[d]
	return Pos{X: p.X + o.X, Y: p.Y + o.Y, Z: p.Z + o.Z}
}

// Neighbors returns the six axis neighbours in Directions order.
func (p Pos) Neighbors() [6]Pos {
	var out [6]Pos
	for i, d := range Directions {
		out[i] = p.Offset(d)
	}
	return out
}

// Less orders positions by X, then Y, then Z.
func Less(a, b Pos) bool {
	if a.X != b.X {
		return a.X < b.X
	}
	if a.Y != b.Y {
		return a.Y < b.Y
	}
	return a.Z < b.Z
}

// SortPositions sorts ps in place in canonical order.
func SortPositions(ps []Pos) {
	sort.Slice(ps, func(i, j int) bool { return Less(ps[i], ps[j]) })
}

// SortedPositions returns the keys of m in canonical order.
func SortedPositions[T any](m map[Pos]T) []Pos {
	if len(m) == 0 {
		return nil
	}
	out := make([]Pos, 0, len(m))
	for p := range m {
		out = append(out, p)
	}
	SortPositions(out)
	return out
}

// Direction is one of the six axis directions. Its value indexes per-face
// arrays.
type Direction uint8

const (
	Down Direction = iota
	Up
	North
	South
	West
	East
)

// Directions lists every direction in neighbour order.
var Directions = [6]Direction{Down, Up, North, South, West, East}

// forwardDirs visits each unordered neighbour pair exactly once when walked
// from every cell.
var forwardDirs = [3]Direction{Up, South, East}

var dirOffsets = [6]Pos{
	Down:  {X: 0, Y: -1, Z: 0},
	Up:    {X: 0, Y: 1, Z: 0},
	North: {X: 0, Y: 0, Z: -1},
	South: {X: 0, Y: 0, Z: 1},
	West:  {X: -1, Y: 0, Z: 0},
	East:  {X: 1, Y: 0, Z: 0},
}

// Opposite returns the direction pointing back.
func (d Direction) Opposite() Direction {
	switch d {
	case Down:
		return Up
	case Up:
		return Down
	case North:
		return South
	case South:
		return North
	case West:
		return East
	default:
		return West
	}
}

// String returns the lower-case name used on the wire.
func (d Direction) String() string {
	switch d {
	case Down:
		return "down"
	case Up:
		return "up"
	case North:
		return "north"
	case South:
		return "south"
	case West:
		return "west"
	case East:
		return "east"
	default:
		return "unknown"
	}
}

// ParseDirection is the inverse of Direction.String.
func ParseDirection(s string) (Direction, bool) {
	for _, d := range Directions {
		if d.String() == s {
			return d, true
		}
	}
	return 0, false
}
