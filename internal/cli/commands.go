package cli

import (
	stderrors "errors"
	"fmt"
	"os"
	"sync"

	"github.com/pulseboard/pulseboard/internal/errors"
)

// Process exit codes. Scripts can tell a broken setup from a failed poll.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitConfig  = 2
	ExitStorage = 3
	ExitServer  = 4
	ExitAuth    = 5
)

var (
	cliInitialized bool
	cliInitMutex   sync.Mutex
)

// Execute runs the root command with the given arguments
func Execute(args []string) error {
	RootCmd.SetArgs(args)

	if err := RootCmd.Execute(); err != nil {
		return fmt.Errorf("command execution failed: %w", err)
	}

	return nil
}

// ExecuteWithErrorCode runs the root command and maps its error to an exit code
func ExecuteWithErrorCode(args []string) int {
	err := Execute(args)
	code := ExitCode(err)
	if err != nil && globalFlags.Verbose {
		fmt.Fprintf(os.Stderr, "exit %d: %v\n", code, err)
	}
	return code
}

// ExitCode classifies err by the typed errors it wraps.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	var (
		parseErr      *errors.ErrConfigParse
		validationErr *errors.ErrConfigValidation
		readErr       *errors.ErrFileRead
		openErr       *errors.ErrDatabaseOpen
		migrationErr  *errors.ErrDatabaseMigration
		queryErr      *errors.ErrDatabaseQuery
		dirErr        *errors.ErrDirectoryCreate
		startErr      *errors.ErrServerStart
	)
	switch {
	case stderrors.As(err, &parseErr), stderrors.As(err, &validationErr),
		stderrors.As(err, &readErr), errors.IsMissingConfig(err):
		return ExitConfig
	case stderrors.As(err, &openErr), stderrors.As(err, &migrationErr),
		stderrors.As(err, &queryErr), stderrors.As(err, &dirErr):
		return ExitStorage
	case stderrors.As(err, &startErr):
		return ExitServer
	case errors.IsAuth(err), errors.IsBackend(err):
		return ExitAuth
	default:
		return ExitFailure
	}
}

// InitCLI registers the global flags once. Subcommands add themselves in init.
func InitCLI() {
	cliInitMutex.Lock()
	defer cliInitMutex.Unlock()

	if cliInitialized {
		return
	}
	InitRoot()
	cliInitialized = true
}
