package main

import (
	"github.com/memprobe/memprobe/cmd/memprobe/cmds"
)

func main() {
	cmds.New().Execute()
}
