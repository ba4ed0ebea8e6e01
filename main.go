package main

import (
	"os"

	"github.com/bryan-buckman/readless/internal/cli"
	"github.com/sirupsen/logrus"
)

func main() {
	if err := cli.App(os.Stdout).Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}
