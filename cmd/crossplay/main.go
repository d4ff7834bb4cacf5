// Command crossplay drives a shared-directory channel from the command line:
// issue one call, run a stub engine, decode an artifact, or reset the channel.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"crossplay/client"
	"crossplay/config"
	"crossplay/logging"
	"crossplay/message"
	"crossplay/middleware"

	"github.com/rs/zerolog/log"
)

const usage = `usage: crossplay <command> [flags]

commands:
  call     -method NAME [-param TYPE:VALUE ...]   issue one call and print the result
  serve    [-round n -width w -height h]           answer calls from fixed stub values
  inspect  FILE                                    decode a channel artifact and print it as YAML
  reset                                            recreate an idle channel
`

var errUsage = errors.New("invalid usage")

func main() {
	logging.ConfigureRuntime()
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "crossplay: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	switch args[0] {
	case "call":
		return runCall(args[1:], stdout)
	case "serve":
		return runServe(args[1:], stdout)
	case "inspect":
		return runInspect(args[1:], stdout)
	case "reset":
		return runReset(args[1:])
	case "-h", "-help", "--help", "help":
		fmt.Fprint(stdout, usage)
		return nil
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}
}

// loadConfig reads -config and applies the configured log level.
func loadConfig(path string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	logging.SetLevel(cfg.LogLevel)
	return cfg, nil
}

func runCall(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("call", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	cfgPath := fs.String("config", "", "TOML config file")
	methodName := fs.String("method", "", "method name or number, e.g. RC_GET_ROUND_NUM")
	timeout := fs.Duration("timeout", 0, "per-wait timeout (defaults to the configured timeout)")
	var params paramList
	fs.Var(&params, "param", "TYPE:VALUE parameter, repeatable (e.g. ROBOT_CONTROLLER:0, STRING:hi, NULL)")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if *methodName == "" {
		return fmt.Errorf("%w: call needs -method", errUsage)
	}
	method, err := message.ParseMethod(*methodName)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	ch, err := cfg.Channel()
	if err != nil {
		return err
	}

	opts := []client.Option{
		client.WithTimeout(cfg.Timeout),
		client.WithPollInterval(cfg.PollInterval),
		client.WithLogger(logging.Component("crossplay.client")),
		client.Use(middleware.LoggingMiddleware(logging.Component("crossplay.call"))),
	}
	if cfg.RateLimit > 0 {
		opts = append(opts, client.Use(middleware.RateLimitMiddleware(cfg.RateLimit, cfg.RateBurst)))
	}
	c := client.NewClient(ch, opts...)

	start := time.Now()
	result, err := c.Call(message.NewCall(method, params...), *timeout)
	if err != nil {
		return err
	}
	log.Debug().Dur("elapsed", time.Since(start)).Msg("call done")

	if result == nil {
		fmt.Fprintln(stdout, "null")
		return nil
	}
	fmt.Fprintln(stdout, result)
	return nil
}

func runReset(args []string) error {
	fs := flag.NewFlagSet("reset", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	cfgPath := fs.String("config", "", "TOML config file")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	ch, err := cfg.Channel()
	if err != nil {
		return err
	}
	if err := ch.Reset(); err != nil {
		return err
	}
	log.Info().Str("dir", cfg.Layout.Dir).Msg("channel reset")
	return nil
}
