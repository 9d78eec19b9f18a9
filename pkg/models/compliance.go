package models

// ConstitutionalHash is the compliance tag attached verbatim to every
// result payload produced by the coordinator, the consensus engine, and
// the performance monitor. Fixed at build time.
const ConstitutionalHash = "cdd01ef066bc6cf2"
