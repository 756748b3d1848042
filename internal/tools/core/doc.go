// Package core provides the filesystem tools: listing, reading, writing,
// editing and searching files. All paths resolve inside the workspace root;
// attempts to escape it are rejected before any I/O happens.
package core
