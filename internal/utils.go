package internal

// VERSION follows semantic versioning.
const VERSION = "0.1.0"

type void struct{}
