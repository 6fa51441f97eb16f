// Package session holds the station's live work models: the inspection
// session for a master label, the remnant box being packed, and the defect
// box being merged. The types carry data and enforce their own ordering and
// uniqueness invariants; deciding which scans reach them is the engine's job.
package session
