// Package lock implements the filesystem mutual-exclusion files that
// enforce "single writer per repo" and "single hub supervisor per hub
// root": a lock file holds the owner's PID and start time; staleness is
// decided by checking the OS process table rather than trusting the file
// alone, so a crashed owner never wedges the lock forever.
package lock
