package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/fx"

	"github.com/sancheet230/get-chat/internal/daemon"
	"github.com/sancheet230/get-chat/internal/session"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	flag.Parse()

	profile := session.Resolve(*profileFlag)
	if err := session.ValidateName(profile); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{Profile: profile}),
	)

	app.Run()
}
