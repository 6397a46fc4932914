package main

import (
	"github.com/alecthomas/kong"
	"github.com/arnavsurve/agentblocks/cmd/cli"
)

var CLI struct {
	Run  cli.RunCmd  `cmd:"" help:"Run a workflow."`
	Lint cli.LintCmd `cmd:"" help:"Validate a workflow and its varfile without running it."`
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("agentblocks"),
		kong.Description("Run compiled agent-builder workflows against an email and AI provider."),
		kong.UsageOnError(),
	)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
