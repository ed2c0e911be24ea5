// Package store keeps named query expressions in a local SQLite database.
//
// A saved query records the grammar it was written in, the expression text
// and its compiled wire form. Expressions are compiled before they are
// written, so every stored row holds a query the compilers accept.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads while a save is in progress
//   - synchronous=NORMAL
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON
//
// Names are normalized to Unicode NFC before they are used as keys, so
// composed and decomposed spellings of the same name refer to one row.
package store
