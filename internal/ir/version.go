package ir

// EngineVersion is recorded with every run in the run log.
const EngineVersion = "0.1.0"
