// Package plugins manages the mod jars loaded by the game server.
//
// # Layout
//
// Enabled artifacts live in the mods directory; disabled artifacts live in a
// sibling "disabled" directory that the server does not scan:
//
//	<minecraft_dir>/mods/*.jar           # loaded at startup
//	<minecraft_dir>/mods/disabled/*.jar  # kept for the operator, not loaded
//
// Only regular files with a .jar suffix are artifacts. A missing directory is
// treated as empty.
//
// # Ordering
//
// Listings are sorted newest first by modification time, with the file name
// as a tiebreak so ordering is deterministic.
//
// # Moves
//
// Disable and Enable move a single artifact between the two directories.
// Moves never overwrite: a name already present at the destination fails with
// ErrAlreadyExists. After every successful move the file mode is normalized
// and, when an owner is configured, ownership is reset.
//
// # Selection
//
// Selector isolates the policy for choosing which artifact to disable when the
// server fails to start. NewestSelector picks the most recently modified jar.
package plugins
