package main

import (
	"fmt"
	"os"

	"github.com/zeu5/taxi-rl/benchmarks"
)

// main entry point to all the experiments and the gym server
func main() {
	// rootCommand defines a command line argument parser (some arguments and a subcommand to run)
	rootCommand := benchmarks.GetRootCommand()
	if err := rootCommand.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
