package main

import (
	"context"
	"fmt"
	"os"

	"github.com/neox5/querygauge/internal/manifest"
	"github.com/neox5/querygauge/internal/version"
	"github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:    "querygauge",
		Usage:   "Evaluate manifest-declared table queries and publish them as metrics",
		Version: version.String(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to configuration file (defaults to log export only)",
				Sources: cli.EnvVars("QUERYGAUGE_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "manifest",
				Aliases: []string{"m"},
				Usage:   "path to manifest file",
				Sources: cli.EnvVars("QUERYGAUGE_MANIFEST"),
			},
			&cli.StringFlag{
				Name:    "manifest-env",
				Value:   manifest.DefaultEnvVar,
				Usage:   "environment variable holding the base64 manifest, used when --manifest is not set",
				Sources: cli.EnvVars("QUERYGAUGE_MANIFEST_ENV"),
			},
			&cli.StringSliceFlag{
				Name:    "group",
				Aliases: []string{"g"},
				Usage:   "only evaluate the named manifest groups",
				Sources: cli.EnvVars("QUERYGAUGE_GROUPS"),
			},
			&cli.BoolFlag{
				Name:    "debug",
				Usage:   "enable debug logging",
				Sources: cli.EnvVars("QUERYGAUGE_DEBUG"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Value:   logFormatText,
				Usage:   "log output format (text or json)",
				Sources: cli.EnvVars("QUERYGAUGE_LOG_FORMAT"),
			},
		},
		Commands: []*cli.Command{
			runCommand(),
			checkCommand(),
			scheduleCommand(),
			lambdaCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
