package main

import (
	"fmt"
	"os"

	"github.com/ZentaChain/zentalk-messenger/cmd/zentalk-messenger/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}
