// Command attempts reads the retry attempt log written by the harness and
// reports retry statistics.
//
//	attempts summary                       # text summary of target/retry-attempts.jsonl
//	attempts summary --json                # the same as JSON
//	attempts list --log other.jsonl --failed
package main

import (
	"context"
	"os"

	"github.com/amp-labs/e2e-harness/logger"
	"github.com/amp-labs/e2e-harness/shutdown"
)

func main() {
	logger.ConfigureLogging("attempts", logger.WithOutput(os.Stderr))

	handler, ctx := shutdown.Listen(context.Background())

	err := newRootCmd(os.Stdout).ExecuteContext(ctx)

	handler.Stop()

	if err != nil {
		logger.Get(ctx).Error("attempts failed", "error", err)
		os.Exit(1)
	}
}
