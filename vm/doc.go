// Package vm implements the isola memory model.
//
// This package contains:
//   - Per-object headers with an atomic, one-way mutability flag
//   - Record, reference array and scalar array object kinds
//   - The freeze engine and the write barrier guarding every store
//   - Default-frozen text and boxed scalar values
//   - Workers, futures and the checked/unsafe transfer protocol
package vm
