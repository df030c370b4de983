package errors

import "nativert/pkg/source"

// Position is a location in script source. Line and Column are 1-based; a
// zero Line means the position is unknown.
type Position struct {
	Line   int
	Column int
	Source *source.SourceFile
}

func (p Position) IsValid() bool { return p.Line > 0 }

// Positioned is implemented by errors that can point into source.
type Positioned interface {
	Pos() Position
}
