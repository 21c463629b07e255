// Command dittogrid serves and manipulates a chunked file grid.
//
// Usage:
//
//	dittogrid init                       write the default config
//	dittogrid serve                      run the HTTP gateway, collector and metrics
//	dittogrid put <file> [name]          upload a local file (- for stdin)
//	dittogrid get <name> [out]           download a file (stdout by default)
//	dittogrid cat <name> --encoding=...  print a file, optionally text-decoded
//	dittogrid rm <name>                  delete a file
//	dittogrid ls                         list files of a root collection
//	dittogrid gc                         sweep orphaned chunks once
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
