// bio-diffexp calls differentially expressed genes from an RNA-seq count
// matrix and a sample class table, and exports GSEA-ready ranked lists.
package main

import (
	"github.com/grailbio/base/grail"
	"github.com/grailbio/rnaseq/cmd/bio-diffexp/cmd"
)

func main() {
	shutdown := grail.Init()
	defer shutdown()
	cmd.Run()
}
