// Package vfs is the only filesystem a guest can see: a fixed set of named,
// immutable blobs and a descriptor table over them.
//
// Names are rooted at "/". The root itself is a directory and every
// configured name is a regular file directly under it. Nothing can be
// created, written, renamed or removed.
package vfs
