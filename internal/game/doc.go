// Package game implements the session and turn lifecycle: a Generator draws
// a color, technique and medium for each turn, and a Machine moves sessions
// from creation through turn completion to finalization, persisting each
// step through a SessionStore.
package game
