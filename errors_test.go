package main

import (
	"testing"

	"github.com/nalgeon/be"
)

func TestLineIndex(t *testing.T) {
	source := "ab\nc\n\nd"
	li := newLineIndex(source)
	be.Equal(t, li.pos(0), Pos{Line: 1, Col: 1})
	be.Equal(t, li.pos(2), Pos{Line: 1, Col: 3})
	be.Equal(t, li.pos(3), Pos{Line: 2, Col: 1})
	be.Equal(t, li.pos(5), Pos{Line: 3, Col: 1})
	be.Equal(t, li.pos(6), Pos{Line: 4, Col: 1})
	be.Equal(t, li.pos(len(source)), Pos{Line: 4, Col: 2})
	be.Equal(t, newLineIndex("").pos(0), Pos{Line: 1, Col: 1})
}
