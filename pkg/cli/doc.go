/*
Package cli holds the helpers shared by the meridian commands: output
formatters, exit codes, progress reporting and signal handling.

Output Formatting:

Commands accept --format auto|text|json|csv. Auto resolves to text when the
output is a terminal and to JSON when it is piped:

	format := cli.ResolveFormat(cli.FormatAuto, cmd.OutOrStdout())
	if err := cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), result); err != nil {
		return err
	}

Exit Codes:

A command that ran to completion but found failed attributes or tests returns
cli.Failed(err) or an *ExitError; configuration and input problems surface as
*ConfigError or *CommandError. ExitCode maps any of them to the process status.

Signal Handling:

	ctx, stop := cli.SetupSignalHandler(context.Background())
	defer stop()
*/
package cli
