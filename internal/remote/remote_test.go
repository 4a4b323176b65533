package remote

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/aws/aws-lambda-go/lambda/messages"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/dnaeon/go-vcr/recorder"
	"go.uber.org/zap"
)

type fakeLambda struct {
	out   *lambda.InvokeOutput
	err   error
	input *lambda.InvokeInput
}

func (f *fakeLambda) Invoke(ctx context.Context, in *lambda.InvokeInput, _ ...func(*lambda.Options)) (*lambda.InvokeOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return f.out, nil
}

func TestInvokeSuccess(t *testing.T) {
	f := &fakeLambda{out: &lambda.InvokeOutput{
		StatusCode: 200,
		Payload:    []byte(`{"statusCode":200}`),
		LogResult:  aws.String(base64.StdEncoding.EncodeToString([]byte("START RequestId: x"))),
	}}
	inv := New(f, "fn", zap.NewNop().Sugar())
	inv.Qualifier = "live"
	inv.Tail = true

	out, err := inv.Invoke(context.Background(), []byte(`{"Records":[]}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != `{"statusCode":200}` {
		t.Errorf("unexpected payload: %s", out)
	}
	if aws.ToString(f.input.FunctionName) != "fn" || aws.ToString(f.input.Qualifier) != "live" {
		t.Errorf("unexpected input: %+v", f.input)
	}
	if f.input.InvocationType != types.InvocationTypeRequestResponse || f.input.LogType != types.LogTypeTail {
		t.Errorf("unexpected invocation options: %+v", f.input)
	}
	if string(f.input.Payload) != `{"Records":[]}` {
		t.Errorf("payload not forwarded: %s", f.input.Payload)
	}
}

func TestInvokeFunctionError(t *testing.T) {
	f := &fakeLambda{out: &lambda.InvokeOutput{
		StatusCode:    200,
		FunctionError: aws.String("Unhandled"),
		Payload:       []byte(`{"errorMessage":"boom","errorType":"errorString"}`),
	}}
	_, err := New(f, "fn", zap.NewNop().Sugar()).Invoke(context.Background(), []byte(`{}`))
	var fnErr *messages.InvokeResponse_Error
	if !errors.As(err, &fnErr) {
		t.Fatalf("expected function error, got %v", err)
	}
	if fnErr.Message != "boom" || fnErr.Type != "errorString" {
		t.Errorf("unexpected function error: %+v", fnErr)
	}
}

func TestInvokeFunctionErrorOpaquePayload(t *testing.T) {
	f := &fakeLambda{out: &lambda.InvokeOutput{
		StatusCode:    200,
		FunctionError: aws.String("Unhandled"),
		Payload:       []byte(`Runtime exited`),
	}}
	_, err := New(f, "fn", nil).Invoke(context.Background(), []byte(`{}`))
	var fnErr *messages.InvokeResponse_Error
	if !errors.As(err, &fnErr) {
		t.Fatalf("expected function error, got %v", err)
	}
	if fnErr.Type != "Unhandled" || fnErr.Message != "Runtime exited" {
		t.Errorf("unexpected function error: %+v", fnErr)
	}
}

func TestInvokeServiceError(t *testing.T) {
	f := &fakeLambda{err: &types.ResourceNotFoundException{Message: aws.String("no such function")}}
	_, err := New(f, "missing", nil).Invoke(context.Background(), []byte(`{}`))
	var rnf *types.ResourceNotFoundException
	if !errors.As(err, &rnf) {
		t.Fatalf("expected ResourceNotFoundException, got %v", err)
	}
}

func TestInvokeBadStatus(t *testing.T) {
	f := &fakeLambda{out: &lambda.InvokeOutput{StatusCode: 502}}
	if _, err := New(f, "fn", nil).Invoke(context.Background(), []byte(`{}`)); err == nil {
		t.Fatal("expected error")
	}
}

func newRecordedClient(t *testing.T) *lambda.Client {
	t.Helper()
	rec, err := recorder.NewAsMode(filepath.Join("testdata", "invoke"), recorder.ModeReplaying, nil)
	if err != nil {
		t.Fatalf("load cassette: %v", err)
	}
	t.Cleanup(func() { _ = rec.Stop() })
	cfg := aws.Config{
		Region:      "us-east-1",
		Credentials: aws.AnonymousCredentials{},
		HTTPClient:  &http.Client{Transport: rec},
	}
	return lambda.NewFromConfig(cfg, func(o *lambda.Options) {
		o.RetryMaxAttempts = 1
	})
}

func TestInvokeRecorded(t *testing.T) {
	client := newRecordedClient(t)
	payload := []byte(`{"Records":[{"id":1}]}`)

	out, err := New(client, "fixture-ok", zap.NewNop().Sugar()).Invoke(context.Background(), payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != `{"statusCode":200}` {
		t.Errorf("unexpected payload: %s", out)
	}

	_, err = New(client, "fixture-boom", zap.NewNop().Sugar()).Invoke(context.Background(), payload)
	var fnErr *messages.InvokeResponse_Error
	if !errors.As(err, &fnErr) || fnErr.Message != "boom" {
		t.Fatalf("expected recorded function error, got %v", err)
	}
}
