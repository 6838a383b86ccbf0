package store

import "errors"

var (
	// ErrNoUsableFace means the capture failed a hard quality gate
	// (score exactly 0). Distinct from the detector-layer "no face
	// detected" condition, which never reaches the store.
	ErrNoUsableFace = errors.New("no usable face: quality gates failed")

	// ErrLowQuality means the face passed the gates but scored below the
	// configured enrollment minimum.
	ErrLowQuality = errors.New("face quality below enrollment minimum")

	// ErrPoolSaturated means the identity's pool is at capacity and every
	// stored entry outranks the candidate.
	ErrPoolSaturated = errors.New("pool saturated with higher-quality samples")

	// ErrIdentityNotFound means no identity with the given name is enrolled.
	ErrIdentityNotFound = errors.New("identity not found")
)
