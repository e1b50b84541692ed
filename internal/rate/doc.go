// Package rate bounds how many HTTP requests are outstanding at once and
// spaces requests to the same host.
//
// A Gate combines a weighted semaphore (the global in-flight limit) with one
// token-bucket limiter per host (burst 1, one token per delay). Callers
// acquire before every network attempt and release when the attempt ends:
//
//	if err := gate.Acquire(ctx, host); err != nil {
//	    return err // ctx cancelled, no slot held
//	}
//	defer gate.Release()
package rate
