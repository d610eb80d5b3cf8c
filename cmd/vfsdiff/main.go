// Command vfsdiff compares two file hierarchies — directories or
// archive files, local or remote — and reports what differs.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var log = logrus.StandardLogger()

var rootCommand = &cobra.Command{
	Use:   "vfsdiff",
	Short: "Compare file hierarchies across local, archive, and remote backends",
}

func init() {
	log.SetOutput(os.Stderr)
	cobra.EnableCommandSorting = false
	rootCommand.AddCommand(scanCommand)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(1)
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		fatal(err)
	}
}
