// Package service drives the managed game server through its process manager.
//
// # Overview
//
// The package exposes three black-box operations against systemd: start, stop,
// and an is-active liveness query. Each call shells out to systemctl with a
// bounded timeout and reports stdout, stderr, exit code, and duration so that
// callers can log exactly what happened.
//
// # Timeouts
//
// A command that exceeds its timeout is killed and reported as a failure with
// exit code -1 and stderr "command timed out". Callers treat it exactly like
// any other failed command.
//
// # Testing
//
// SystemdController runs commands through a CommandRunner. Tests substitute a
// fake runner; ExecRunner is the production implementation built on os/exec.
package service
