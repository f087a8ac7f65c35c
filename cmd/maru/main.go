// cmd/maru/main.go
package main

import (
	"fmt"
	"os"

	"maru/internal/host"
	"maru/internal/stdlib"
)

// main is the thin host CLI: read one file, compile it as the sole
// module, run it. No flag library, no subcommands — maru only ever
// needs the one.
func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: maru <script.maru>")
		os.Exit(1)
	}
	filename := os.Args[1]

	source, err := os.ReadFile(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "maru: could not read %s: %v\n", filename, err)
		os.Exit(1)
	}

	vm, err := host.New([]host.Module{{Name: filename, Source: string(source)}}, nil, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "maru: %v\n", err)
		os.Exit(1)
	}
	stdlib.RegisterMath(vm.Machine())
	stdlib.RegisterSQL(vm.Machine())

	if err := vm.Run(0); err != nil {
		fmt.Fprintf(os.Stderr, "maru: %v\n", err)
		os.Exit(1)
	}
}
