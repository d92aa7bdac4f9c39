// Package processor holds the production implementation of the scheduler's
// Processor: an HTTP trigger for the external generation worker. The worker
// claims its own job through the API, so the invocation carries no body.
package processor

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/you/courseq/internal/scheduler"
)

const maxDetailBytes = 2048

type Invoker struct {
	url    string
	client *http.Client
	log    *zap.SugaredLogger
}

func NewInvoker(url string, client *http.Client, log *zap.SugaredLogger) *Invoker {
	if client == nil {
		client = http.DefaultClient
	}
	return &Invoker{url: url, client: client, log: log}
}

// Process triggers one worker run. The scheduler's context carries the
// invocation timeout; hitting it surfaces here as a transport error.
func (i *Invoker) Process(ctx context.Context) (scheduler.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.url, nil)
	if err != nil {
		return scheduler.Result{}, errors.Wrap(err, "build processor request")
	}

	resp, err := i.client.Do(req)
	if err != nil {
		return scheduler.Result{}, errors.Wrap(err, "invoke processor")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDetailBytes))
	if err != nil {
		return scheduler.Result{}, errors.Wrap(err, "read processor response")
	}
	detail := strings.TrimSpace(string(body))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		i.log.Warnw("processor returned non-success",
			"status", resp.StatusCode, "body", detail)
		return scheduler.Result{}, errors.Errorf("processor returned %d: %s", resp.StatusCode, detail)
	}
	return scheduler.Result{Detail: detail}, nil
}
