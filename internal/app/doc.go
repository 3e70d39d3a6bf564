// Package app assembles the marketplace protocol core: deterministic
// account addressing, listing custody, atomic settlement and the registry
// singleton, behind a single Application facade.
package app
