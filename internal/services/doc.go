// Package services holds the error taxonomy shared by every pipeline
// component, context helpers for correlation fields, and the HTTP clients
// for the external collaborators (extractor, enricher, imagery, platform).
//
// The orchestrator never depends on a collaborator's internals; it sees
// only the narrow client contracts defined in the subpackages and the
// classified errors they return.
package services
