package remote

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-lambda-go/lambda/messages"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"go.uber.org/zap"
)

// LambdaAPI abstracts the Lambda Invoke operation for testability.
type LambdaAPI interface {
	Invoke(ctx context.Context, params *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error)
}

// Invoker runs a deployed function through the Lambda service. It
// satisfies the same handler contract as an in-process function.
type Invoker struct {
	Client       LambdaAPI
	FunctionName string
	Qualifier    string
	// Tail requests the last 4 KB of the function log, logged at debug.
	Tail bool
	Log  *zap.SugaredLogger
}

// New creates an Invoker for the named function.
func New(client LambdaAPI, name string, log *zap.SugaredLogger) *Invoker {
	return &Invoker{Client: client, FunctionName: name, Log: log}
}

// Invoke sends payload as a synchronous invocation. A function error is
// returned as *messages.InvokeResponse_Error.
func (i *Invoker) Invoke(ctx context.Context, payload []byte) ([]byte, error) {
	in := &lambda.InvokeInput{
		FunctionName:   aws.String(i.FunctionName),
		InvocationType: types.InvocationTypeRequestResponse,
		Payload:        payload,
	}
	if i.Qualifier != "" {
		in.Qualifier = aws.String(i.Qualifier)
	}
	if i.Tail {
		in.LogType = types.LogTypeTail
	}
	out, err := i.Client.Invoke(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("invoke %s: %w", i.FunctionName, err)
	}
	i.logTail(out)
	if out.FunctionError != nil {
		return nil, functionError(aws.ToString(out.FunctionError), out.Payload)
	}
	if out.StatusCode >= 300 {
		return nil, fmt.Errorf("invoke %s: status %d", i.FunctionName, out.StatusCode)
	}
	return out.Payload, nil
}

func (i *Invoker) logTail(out *lambda.InvokeOutput) {
	if i.Log == nil || out.LogResult == nil {
		return
	}
	tail, err := base64.StdEncoding.DecodeString(*out.LogResult)
	if err != nil {
		i.Log.Warnw("decode log tail", "error", err)
		return
	}
	i.Log.Debugw("function log", "function", i.FunctionName, "version", aws.ToString(out.ExecutedVersion), "tail", string(tail))
}

func functionError(kind string, payload []byte) error {
	var fnErr messages.InvokeResponse_Error
	if err := json.Unmarshal(payload, &fnErr); err != nil || fnErr.Message == "" {
		return &messages.InvokeResponse_Error{Type: kind, Message: string(payload)}
	}
	return &fnErr
}
