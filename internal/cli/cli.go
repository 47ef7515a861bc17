package cli

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/vk/chartgridgo/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Invocation is the parsed outcome of a CLI invocation.
type Invocation struct {
	Config *app.Config
	Once   bool
}

// Parse processes command-line arguments. It returns the invocation, a
// boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*Invocation, bool, error) {
	flagSet := flag.NewFlagSet("chartgridgo", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
ChartGridGo - a declarative panel resolver daemon.

Usage:
  chartgridgo [options] [PANELS_PATH]

Arguments:
  PANELS_PATH
    Path to a panel file or a directory containing panel files
    (.yaml, .yml, .json, .hcl).

Options:
`)
		flagSet.PrintDefaults()
	}

	panelsFlag := flagSet.String("panels", "", "Path to the panel file or directory.")
	pFlag := flagSet.String("p", "", "Path to the panel file or directory (shorthand).")
	hubURLFlag := flagSet.String("hub-url", "", "Hub socket.io endpoint for the live entity feed. Empty disables it.")
	hubNamespaceFlag := flagSet.String("hub-namespace", "/", "Hub socket.io namespace.")
	apiURLFlag := flagSet.String("api-url", "", "Hub REST base URL for history queries. Empty disables time series.")
	apiTokenFlag := flagSet.String("api-token", os.Getenv("CHARTGRID_API_TOKEN"), "Bearer token for hub requests. Defaults to $CHARTGRID_API_TOKEN.")
	addrFlag := flagSet.String("addr", ":8090", "HTTP listen address.")
	serverTokenFlag := flagSet.String("server-token", os.Getenv("CHARTGRID_SERVER_TOKEN"), "Bearer token required on the served API. Defaults to $CHARTGRID_SERVER_TOKEN; empty disables the guard.")
	logFormatFlag := flagSet.String("log-format", "json", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	cacheSecondsFlag := flagSet.Int("cache-seconds", 0, "Fallback refresh throttle for time-series panels without their own cache window. 0 uses the built-in default.")
	onceFlag := flagSet.Bool("once", false, "Resolve every panel a single time, print the results as JSON, and exit.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	path := ""
	if *panelsFlag != "" {
		path = *panelsFlag
	} else if *pFlag != "" {
		path = *pFlag
	} else if flagSet.NArg() > 0 {
		path = flagSet.Arg(0)
	}

	if path == "" {
		flagSet.Usage()
		return nil, true, nil
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	config, err := app.NewConfig(app.Config{
		PanelsPath:           path,
		HubURL:               *hubURLFlag,
		HubNamespace:         *hubNamespaceFlag,
		APIBaseURL:           *apiURLFlag,
		APIToken:             *apiTokenFlag,
		ServerAddr:           *addrFlag,
		ServerToken:          *serverTokenFlag,
		LogFormat:            logFormat,
		LogLevel:             logLevel,
		CacheFallbackSeconds: *cacheSecondsFlag,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	return &Invocation{Config: config, Once: *onceFlag}, false, nil
}
