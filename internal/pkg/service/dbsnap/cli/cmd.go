// Package cli contains the "dbsnap" command line interface.
//
// Global flags are generated from the config.Config structure,
// values are bound from flags, ENVs (including ".env" files) and config files.
package cli

import (
	"context"
	"io"

	"github.com/davecgh/go-spew/spew"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/keboola/dbsnap/internal/pkg/env"
	"github.com/keboola/dbsnap/internal/pkg/log"
	"github.com/keboola/dbsnap/internal/pkg/service/common/configmap"
	svcerrors "github.com/keboola/dbsnap/internal/pkg/service/common/errors"
	"github.com/keboola/dbsnap/internal/pkg/service/common/servicectx"
	"github.com/keboola/dbsnap/internal/pkg/service/dbsnap/config"
	"github.com/keboola/dbsnap/internal/pkg/service/dbsnap/dependencies"
	"github.com/keboola/dbsnap/internal/pkg/telemetry"
	"github.com/keboola/dbsnap/internal/pkg/utils/errors"
	"github.com/keboola/dbsnap/internal/pkg/version"
)

var errCommandFinished = errors.New("command finished")

type Cmd = cobra.Command

type RootCommand struct {
	*Cmd
	osEnvs  *env.Map
	fs      afero.Fs
	config  config.Config
	logger  log.Logger
	logFile *log.File
	proc    *servicectx.Process
	deps    dependencies.ServiceScope
}

// NewRootCommand creates parent of all sub-commands.
func NewRootCommand(stdout io.Writer, stderr io.Writer, osEnvs *env.Map, fs afero.Fs) *RootCommand {
	root := &RootCommand{
		osEnvs: osEnvs,
		fs:     fs,
		config: config.New(),
		// temporary logger, the log file and format are not known yet
		logger: log.NewCliLogger(stdout, stderr, nil, log.LogFormatConsole, false),
	}
	root.Cmd = &Cmd{
		Use:               "dbsnap",
		Version:           version.Version(),
		Short:             "Export and import databases of a keyed object store.",
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
		SilenceUsage:      true,
		SilenceErrors:     true, // custom error handling, see printError
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.Help()
		},
	}

	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetVersionTemplate("{{.Version}}\n")

	// Persistent flags for all sub-commands
	configmap.MustGenerateFlags(root.PersistentFlags(), config.New())
	root.PersistentFlags().StringSlice(configmap.ConfigFileFlag, nil, "path to a JSON/YAML configuration file, can be used multiple times")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return root.setup(cmd)
	}

	root.AddCommand(
		ExportCommand(root),
		ImportCommand(root),
		InspectCommand(root),
		ListCommand(root),
	)

	return root
}

// Execute command or sub-command, the exit code is returned.
func (root *RootCommand) Execute(ctx context.Context, args []string) (exitCode int) {
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)

	if root.proc != nil {
		root.proc.Shutdown(context.WithoutCancel(ctx), errCommandFinished)
	}

	if err != nil {
		root.printError(ctx, err)
		exitCode = 1
	}

	// Keep the log file on error
	root.logFile.TearDown(exitCode != 0)
	return exitCode
}

// Dependencies are available after the flags are parsed.
func (root *RootCommand) Dependencies() dependencies.ServiceScope {
	return root.deps
}

func (root *RootCommand) setup(cmd *cobra.Command) (err error) {
	// The root command only prints help
	if !cmd.HasParent() {
		return nil
	}

	ctx := cmd.Context()

	// Bind flags, ENVs and config files
	envs := env.LoadDotEnv(ctx, root.logger, root.osEnvs, root.fs, []string{"."})
	root.config = config.New()
	err = configmap.Bind(configmap.BindSpec{
		Flags:                  cmd.Flags(),
		EnvNaming:              env.NewNamingConvention(config.EnvPrefix),
		Envs:                   envs,
		GenerateConfigFileFlag: true,
	}, &root.config)
	if err != nil {
		return err
	}

	if err := root.setupLogger(ctx, cmd); err != nil {
		return err
	}

	root.proc, err = servicectx.New(ctx, root.logger)
	if err != nil {
		return err
	}

	root.deps, err = dependencies.NewServiceScope(root.proc.Ctx(), root.config, root.proc, root.logger, telemetry.NewNop(), root.fs, clockwork.NewRealClock())
	if err != nil {
		return err
	}

	// Sub-commands run with the process context, so SIGINT aborts the running operation
	cmd.SetContext(root.proc.Ctx())
	return nil
}

func (root *RootCommand) setupLogger(ctx context.Context, cmd *cobra.Command) error {
	if root.config.LogFile != "" {
		logFile, err := log.NewLogFile(root.config.LogFile)
		if err != nil {
			return errors.PrefixErrorf(err, `cannot open log file "%s"`, root.config.LogFile)
		}
		root.logFile = logFile
	}

	format, err := log.NewLogFormat(root.config.LogFormat)
	if err != nil {
		return err
	}

	root.logger = log.NewCliLogger(cmd.OutOrStdout(), cmd.ErrOrStderr(), root.logFile, format, root.config.DebugLog)
	root.logger.Debug(ctx, root.Version)
	if root.logFile != nil {
		root.logger.Debug(ctx, `Log file: `+root.logFile.Path())
	}
	if root.config.DebugLog {
		dump, err := dumpConfig(root.config)
		if err != nil {
			return err
		}
		root.logger.Debug(ctx, "Effective configuration:\n"+dump)
	}
	root.logger.Debugf(ctx, `Object store backend: %s`, root.config.Backend)
	return nil
}

// dumpConfig formats the configuration for the debug log, sensitive values are masked.
func dumpConfig(cfg config.Config) (string, error) {
	values, err := configmap.Dump(&cfg)
	if err != nil {
		return "", err
	}
	s := spew.ConfigState{Indent: "  ", DisablePointerAddresses: true, DisableCapacities: true, SortKeys: true}
	return s.Sdump(values), nil
}

func (root *RootCommand) printError(ctx context.Context, err error) {
	root.logger.Debugf(ctx, "Error debug log:\n%s", errors.Format(err, errors.FormatWithStack(), errors.FormatWithUnwrap()))

	// Errors from the closed taxonomy, and some others, have a prepared user message
	var withMessage svcerrors.WithUserMessage
	if svcerrors.IsExpected(err) || errors.As(err, &withMessage) {
		root.PrintErrln("Error: " + svcerrors.UserMessage(err))
		return
	}

	root.PrintErrln(errors.Format(errors.PrefixError(err, "Error"), errors.FormatAsSentences()))
}
