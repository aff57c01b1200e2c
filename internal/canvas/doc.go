// Package canvas is the in-memory authority for a shared drawing surface.
//
// History is the ordered list of operations that, replayed from an empty
// canvas, reproduces what every participant sees. Undo moves the tail of
// History onto a redo buffer and redo moves it back; appending a new
// operation discards the redo buffer. Undo and redo act on the one global
// history regardless of which participant authored the operation.
package canvas
