package nfsadapter

import "syscall"

// Aliases kept local so billyfs.go reads as a translation table rather
// than a thicket of syscall.* references.
const (
	syscallENOTDIR   = syscall.ENOTDIR
	syscallENOTEMPTY = syscall.ENOTEMPTY
	syscallEROFS     = syscall.EROFS
)
