// Package engine contains the provisioning core: the step and dependency
// model, a deterministic topological sequencer, and the structured error
// taxonomy shared by every step implementation.
//
// Steps declare require and order edges; the sequencer executes them one at
// a time, consults each step's live check to skip work that is already done,
// and aborts the run on the first failure without rollback. Re-running after
// an abort resumes from the first unsatisfied step.
package engine
