// Package rate is the optional per-subject refresh throttle. Each subject gets
// a Redis counter under rl:refresh:<subject> that lives for one window; the
// increment and window start run in a single script.
package rate
