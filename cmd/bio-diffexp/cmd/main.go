package cmd

import (
	"log"

	"v.io/x/lib/cmdline"
)

// Run parses and executes a bio-diffexp command line.
func Run() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile)
	cmdline.HideGlobalFlagsExcept()
	cmdline.Main(
		&cmdline.Command{
			Name:     "bio-diffexp",
			Short:    "Differential expression analysis of RNA-seq count matrices",
			LookPath: false,
			Children: []*cmdline.Command{
				newCmdRun(),
				newCmdRank(),
				newCmdSplitIDs(),
			},
		})
}
