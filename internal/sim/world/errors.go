package world

import "errors"

var (
	// ErrInvalidGeometry is returned when a road edit carries endpoints or
	// control points that do not describe a usable curve.
	ErrInvalidGeometry = errors.New("invalid segment geometry")

	// ErrNotFound is returned when an edit or query names a segment id
	// that is not present in the store.
	ErrNotFound = errors.New("segment not found")

	// ErrUnreachable is returned by the router when no path exists between
	// two resolvable endpoints.
	ErrUnreachable = errors.New("no path between endpoints")

	// ErrInvalidEndpoint is returned when a path query names a cell that is
	// off-grid or not part of the road network.
	ErrInvalidEndpoint = errors.New("endpoint is not on the road network")

	// ErrGraphBuild is returned when a rebuilt routing graph fails
	// validation and the previous graph is kept.
	ErrGraphBuild = errors.New("graph build failed validation")

	// ErrStaleState is returned when restored state no longer matches the
	// world it is being loaded into.
	ErrStaleState = errors.New("restored state is stale")
)
