// Package pty manages a single pseudo-terminal: allocating the master/slave
// pair, blocking reads on the master that another goroutine can interrupt,
// window geometry, and signal delivery to the process attached to it.
//
// A Session is created by Open and must be released with Close. Close may
// be called from any goroutine, any number of times, and unblocks a reader
// parked in Read through a self-pipe.
package pty
