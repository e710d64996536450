package config

// Version is the arena release tag reported by the health endpoint and
// the startup log. Distinct from the benchmark version, which selects
// the scoring weight vector.
const Version = "0.3.0"
