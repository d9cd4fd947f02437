package main

import (
	cmd "github.com/cozy-creator/sticker-server/cmd/sticker"
)

func main() {
	cmd.Execute()
}
