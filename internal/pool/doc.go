// Package pool memoizes one live connection per server name. The first
// caller for a given name pays the cost of connecting; concurrent callers
// for the same name block on that single attempt instead of racing to
// connect twice. A failed attempt is evicted immediately so the next call
// gets a fresh try rather than a cached error.
package pool
