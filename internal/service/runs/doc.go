// Package runs keeps the history of pipeline runs.
//
// The service layer turns a pipeline result into a compact Summary and
// records it through the Repository interface defined here. Repository
// implementations live in repository/postgres/ and in this package
// (MemoryRepository) for single-instance deployments and tests.
package runs
