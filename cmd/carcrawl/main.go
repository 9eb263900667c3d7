package main

import (
	"os"

	"github.com/JakeFAU/carcatalog-crawler/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
