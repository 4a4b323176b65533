package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	lambdasvc "github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/your-org/handler-harness/internal/envfile"
	"github.com/your-org/handler-harness/internal/fixture"
	"github.com/your-org/handler-harness/internal/harness"
	"github.com/your-org/handler-harness/internal/manifest"
	"github.com/your-org/handler-harness/internal/profile"
	"github.com/your-org/handler-harness/internal/remote"
)

//go:embed testEvent.json
var defaultEvent []byte

var (
	loadConfig = config.LoadDefaultConfig
	exit       = os.Exit
)

type options struct {
	eventPath  string
	fixtureDir string
	envFile    string
	schemaPath string
	function   string
	qualifier  string
	tail       bool
	timeout    time.Duration
	logLevel   string
	exitZero   bool
}

type handlerFactory func(ctx context.Context, o options, env envfile.Env, log *zap.SugaredLogger) (lambda.Handler, error)

type app struct {
	stdout     io.Writer
	stderr     io.Writer
	newHandler handlerFactory
}

func newRootCmd(a *app) *cobra.Command {
	var o options
	cmd := &cobra.Command{
		Use:           "invoke",
		Short:         "Invoke a handler once with a JSON fixture event and print the outcome.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		Example: `invoke
invoke --event events/put.json --env-file .env.local
invoke --function my-function --qualifier live --tail`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context(), o)
		},
	}
	cmd.SetOut(a.stdout)
	cmd.SetErr(a.stderr)

	f := cmd.Flags()
	f.StringVar(&o.eventPath, "event", "", "Fixture file to send instead of the built-in test event.")
	f.StringVar(&o.fixtureDir, "fixture-dir", ".", "Directory relative --event paths are resolved against.")
	f.StringVar(&o.envFile, "env-file", envfile.DefaultPath, "Dotenv file loaded before invocation. Missing files are ignored.")
	f.StringVar(&o.schemaPath, "schema", "", "JSON schema the fixture must satisfy.")
	f.StringVar(&o.function, "function", "", "Invoke this deployed function through the Lambda service instead of the local handler.")
	f.StringVar(&o.qualifier, "qualifier", "", "Version or alias used with --function.")
	f.BoolVar(&o.tail, "tail", false, "Log the tail of the remote function log (needs --log-level debug).")
	f.DurationVar(&o.timeout, "timeout", 0, "Abort the invocation after this long. Zero waits forever.")
	f.StringVar(&o.logLevel, "log-level", "error", "Diagnostic log level written to stderr.")
	f.BoolVar(&o.exitZero, "exit-zero", false, "Exit 0 even when the handler returns an error.")
	return cmd
}

func (a *app) run(ctx context.Context, o options) error {
	log, err := newLogger(o.logLevel, a.stderr)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	env, err := envfile.Load(o.envFile)
	if err != nil {
		return err
	}
	set, err := envfile.Apply(env)
	if err != nil {
		return err
	}
	log.Debugw("environment loaded", "file", o.envFile, "set", set)

	ev, err := loadEvent(o)
	if err != nil {
		return err
	}

	h, err := a.newHandler(ctx, o, env, log)
	if err != nil {
		return fmt.Errorf("build handler: %w", err)
	}
	r := &harness.Runner{
		Handler:      h,
		Stdout:       a.stdout,
		Stderr:       a.stderr,
		Log:          log,
		Timeout:      o.timeout,
		FunctionName: o.function,
	}
	err = r.Run(ctx, ev)
	var ie *harness.InvocationError
	if o.exitZero && errors.As(err, &ie) {
		return nil
	}
	return err
}

func loadEvent(o options) (fixture.Event, error) {
	var (
		ev  fixture.Event
		err error
	)
	if o.eventPath == "" {
		ev, err = fixture.Parse(defaultEvent)
	} else {
		ev, err = fixture.Load(fixture.Resolve(o.fixtureDir, o.eventPath))
	}
	if err != nil {
		return nil, err
	}
	if o.schemaPath == "" {
		return ev, nil
	}
	v, err := fixture.LoadSchema(o.schemaPath)
	if err != nil {
		return nil, err
	}
	if errs := v.Validate(ev); len(errs) > 0 {
		return nil, fmt.Errorf("fixture does not match schema: %w", errors.Join(errs...))
	}
	return ev, nil
}

func buildHandler(ctx context.Context, o options, env envfile.Env, log *zap.SugaredLogger) (lambda.Handler, error) {
	awsCfg, err := loadConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	if o.function != "" {
		inv := remote.New(lambdasvc.NewFromConfig(awsCfg), o.function, log)
		inv.Qualifier = o.qualifier
		inv.Tail = o.tail
		return inv, nil
	}

	cfg, err := manifest.ConfigFrom(env)
	if err != nil {
		return nil, err
	}
	var profiles manifest.ProfileSource
	if cfg.ProfileParam != "" {
		profiles = profile.New(ssm.NewFromConfig(awsCfg), log)
	}
	h := manifest.New(cfg,
		s3.NewFromConfig(awsCfg),
		dynamodb.NewFromConfig(awsCfg),
		cloudwatch.NewFromConfig(awsCfg),
		profiles,
		log,
	)
	return lambda.NewHandler(h.Handle), nil
}

func newLogger(level string, w io.Writer) (*zap.SugaredLogger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		zapcore.AddSync(w),
		lvl,
	)
	return zap.New(core).Sugar(), nil
}

// exitCode maps a run error to the process status. Handler failures have
// already been reported by the runner; everything else is printed here.
func exitCode(err error, stderr io.Writer) int {
	if err == nil {
		return 0
	}
	var ie *harness.InvocationError
	if !errors.As(err, &ie) {
		fmt.Fprintln(stderr, "invoke:", err)
	}
	return 1
}

func realMain(args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr, newHandler: buildHandler}
	cmd := newRootCmd(a)
	cmd.SetArgs(args)
	return exitCode(cmd.ExecuteContext(context.Background()), stderr)
}

func main() {
	exit(realMain(os.Args[1:], os.Stdout, os.Stderr))
}
