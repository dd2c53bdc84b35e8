package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	cli "github.com/urfave/cli/v2"

	"github.com/serenita-org/vero/cmd"
	"github.com/serenita-org/vero/pkg/utils"
)

var (
	log = logrus.WithField(
		"cli", utils.CliName,
	)
)

func main() {
	fmt.Println(utils.CliName, utils.Version)

	// Set the general log configurations for the entire tool
	logrus.SetFormatter(utils.ParseLogFormatter("text"))
	logrus.SetOutput(utils.ParseLogOutput("terminal"))
	logrus.SetLevel(utils.ParseLogLevel("info"))

	app := &cli.App{
		Name:                 utils.CliName,
		Usage:                "multi-node validator client: cross-checks every beacon node before signing through a remote signer.",
		UsageText:            "vero [commands] [arguments...]",
		EnableBashCompletion: true,
		Commands: []*cli.Command{
			cmd.ValidatorCommand,
		},
	}

	if err := app.RunContext(context.Background(), os.Args); err != nil {
		log.Errorf("error: %v\n", err)
		if exitErr, ok := err.(cli.ExitCoder); ok {
			os.Exit(exitErr.ExitCode())
		}
		os.Exit(1)
	}
}
