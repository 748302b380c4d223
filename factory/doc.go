// Package factory builds recorders, pools and event stores from
// environment-driven settings.
//
// The persistence module is selected with PERSISTENCE_MODULE (memory,
// postgres or sqlite); backend and pool tuning comes from the remaining
// variables, each with a sensible default. Misconfiguration surfaces as
// recorder.ErrProgramming.
package factory
