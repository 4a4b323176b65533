// Package harness invokes a single Lambda-style handler with a fixture
// event and reports the outcome on the standard streams.
package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-lambda-go/lambda/messages"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/your-org/handler-harness/internal/fixture"
)

// Labels that prefix the single line written for each outcome.
const (
	ResultLabel = "Handler result:"
	ErrorLabel  = "Error executing handler:"
)

// HandlerFunc adapts a plain function to lambda.Handler.
type HandlerFunc func(ctx context.Context, payload []byte) ([]byte, error)

// Invoke calls f.
func (f HandlerFunc) Invoke(ctx context.Context, payload []byte) ([]byte, error) {
	return f(ctx, payload)
}

// InvocationError is returned by Run when the handler failed.
type InvocationError struct {
	RequestID string
	Err       error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("invoke handler (request %s): %v", e.RequestID, e.Err)
}

func (e *InvocationError) Unwrap() error { return e.Err }

// PanicError carries a value recovered from a panicking handler.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("handler panic: %v", e.Value) }

// Runner performs one invocation of Handler.
type Runner struct {
	Handler lambda.Handler
	Stdout  io.Writer
	Stderr  io.Writer
	Log     *zap.SugaredLogger
	// Timeout bounds the invocation when positive. Zero waits forever.
	Timeout      time.Duration
	FunctionName string

	newRequestID func() string
}

// Run invokes the handler once with ev. Exactly one line is written: the
// result to Stdout, or the error to Stderr. The handler's failure is
// returned as an *InvocationError after it has been reported.
func (r *Runner) Run(ctx context.Context, ev fixture.Event) error {
	log := r.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	reqID := r.requestID()
	lc := &lambdacontext.LambdaContext{AwsRequestID: reqID}
	if r.FunctionName != "" {
		lc.InvokedFunctionArn = r.FunctionName
	}
	ctx = lambdacontext.NewContext(ctx, lc)
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	log.Debugw("invoking handler", "requestId", reqID, "bytes", len(ev))
	start := time.Now()
	out, err := r.invoke(ctx, ev.Bytes())
	log.Debugw("handler settled", "requestId", reqID, "elapsed", time.Since(start), "failed", err != nil)
	if err != nil {
		fmt.Fprintln(writer(r.Stderr, os.Stderr), ErrorLabel, Describe(err))
		return &InvocationError{RequestID: reqID, Err: err}
	}
	fmt.Fprintln(writer(r.Stdout, os.Stdout), ResultLabel, Format(out))
	return nil
}

func writer(w, fallback io.Writer) io.Writer {
	if w == nil {
		return fallback
	}
	return w
}

type result struct {
	out []byte
	err error
}

func (r *Runner) invoke(ctx context.Context, payload []byte) ([]byte, error) {
	if r.Handler == nil {
		return nil, errors.New("no handler configured")
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- result{err: &PanicError{Value: p, Stack: debug.Stack()}}
			}
		}()
		out, err := r.Handler.Invoke(ctx, payload)
		done <- result{out: out, err: err}
	}()
	select {
	case res := <-done:
		return res.out, res.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("handler timed out after %s: %w", r.Timeout, ctx.Err())
		}
		return nil, ctx.Err()
	}
}

func (r *Runner) requestID() string {
	if r.newRequestID != nil {
		return r.newRequestID()
	}
	return uuid.NewString()
}

// Format renders a handler response for the result line. JSON payloads are
// compacted; anything else is printed verbatim.
func Format(out []byte) string {
	if len(out) == 0 {
		return "null"
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, out); err != nil {
		return string(out)
	}
	return buf.String()
}

// Describe renders a handler error for the error line.
func Describe(err error) string {
	var fnErr *messages.InvokeResponse_Error
	if errors.As(err, &fnErr) {
		if fnErr.Type == "" {
			return fnErr.Message
		}
		return fnErr.Type + ": " + fnErr.Message
	}
	return err.Error()
}
