// Package flock provides advisory file locking for stores that share a
// directory between concurrent forge processes.
//
// Usage:
//
//	lock, err := flock.Acquire(ctx, filepath.Join(dir, ".lock"))
//	if err != nil {
//	    return err
//	}
//	defer func() { _ = lock.Release() }()
package flock
