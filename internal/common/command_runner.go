package common

import (
	"context"

	"resumecrew/internal/errors"
)

// OperationFunc runs a command against its validated input paths.
type OperationFunc[Output any] func(ctx context.Context, paths []string) (Output, error)

// RunFileCommand validates the input files, runs op and writes its report in
// the configured format.
func RunFileCommand[Output any](
	ctx context.Context,
	logger *errors.Logger,
	cmdConfig CommandConfig,
	paths []string,
	op OperationFunc[Output],
) error {
	fileProcessor := NewFileProcessor(logger)
	outputHandler := NewOutputHandler(logger)

	if err := fileProcessor.ValidateInputFiles(paths...); err != nil {
		return err
	}

	result, err := op(ctx, paths)
	if err != nil {
		return err
	}

	return outputHandler.HandleOutput(result, cmdConfig)
}
