// Package kms implements the DRM output pipeline: resource inventory,
// property bag, configuration solver, scanout buffer pool, present engine,
// lease broker, and device supervisor.
//
// Objects refer to
// each other by kernel object id (uint32, already globally unique per
// card) rather than by pointer-with-back-pointer: a Device owns slot
// tables (maps keyed by id) for its Connectors/Crtcs/Planes, and a
// Connector's "current CRTC" is an id looked up in its owning Device, not
// a pointer into the CRTC. Drop order is then trivial — nothing but the
// Device itself owns the tables — and there is no back-edge to clear on
// shutdown.
package kms
