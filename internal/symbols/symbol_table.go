// symbols/symbol_table.go - Declaration store entry point
//
// The package is split into focused files:
// - symbol_table_core.go: Symbol, kinds, visibility, origins and signatures
// - symbol_table_operations.go: Table with declare, lookup and removal
// - symbol_table_index.go: the Index read view and Union over several tables
// - symbol_table_decl.go: one-line declaration headers used by builtins and libraries
// - symbol_table_init.go: the builtin declarations singleton

package symbols
