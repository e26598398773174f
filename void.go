package durable

// Void is used where a handler takes no meaningful input or produces no
// meaningful output but still needs a type for the generic Handler
// plumbing.
type Void struct{}
