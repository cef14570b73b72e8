package main

import (
	"github.com/Manu343726/nativedbg/cmd"
)

func main() {
	cmd.Execute()
}
