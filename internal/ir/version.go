package ir

// RuntimeVersion is the rio runtime version reported by the CLI.
const RuntimeVersion = "0.1.0"
