// Package ir defines the compiled intermediate representation of a manifest.
//
// This package contains type definitions plus the canonical serialization
// and hashing primitives built on them. All other internal packages import
// ir; ir imports nothing internal. This keeps the IR the foundational layer
// with no circular dependencies.
//
// Key design constraints:
//   - The IR is a closed, self-consistent graph: every name reference inside
//     a compiled IR resolves to a declaration in the same IR.
//   - Serialization is deterministic: struct fields marshal in declaration
//     order, object values marshal with sorted keys, and the IR carries no
//     timestamps or other nondeterministic metadata. Compiling the same
//     source twice yields byte-identical output.
//   - Value is a sealed variant (null/string/number/bool/array/object);
//     consumers dispatch with exhaustive type switches.
package ir
