package coffea

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"runtime/debug"
	"sync"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	awslambda "github.com/aws/aws-sdk-go/service/lambda"
	log "github.com/sirupsen/logrus"
)

// lambdaTask is the wire format for one invocation. Kind selects between a
// single unit of work and a fan-in reduction of earlier payloads.
type lambdaTask struct {
	FunctionID  string          `json:"function_id"`
	Kind        string          `json:"kind"`
	Item        json.RawMessage `json:"item,omitempty"`
	Payloads    [][]byte        `json:"payloads,omitempty"`
	Compression *int            `json:"compression,omitempty"`
}

// lambdaResult is the wire format of a finished invocation.
type lambdaResult struct {
	Payload []byte `json:"payload"`
}

const (
	lambdaKindUnit   = "unit"
	lambdaKindReduce = "reduce"
)

// lambdaEntry holds the worker-side behavior registered for a function id.
type lambdaEntry struct {
	unit   func(ctx context.Context, item json.RawMessage, clevel *int) ([]byte, error)
	reduce func(payloads [][]byte, clevel *int) ([]byte, error)
}

var (
	lambdaRegistryMu sync.RWMutex
	lambdaRegistry   = map[string]lambdaEntry{}
)

// RegisterLambdaFunction registers a unit function under an id so that worker
// invocations can route tasks to it. The same binary runs on the driver and
// in the function, so registration must happen in both before Execute or
// StartLambdaWorker is called.
func RegisterLambdaFunction[T any, A Accumulatable[A]](id string, fn UnitFunc[T, A], codec Codec[Result[A]]) {
	if codec == nil {
		codec = GobCodec[Result[A]]{}
	}
	entry := lambdaEntry{
		unit: func(ctx context.Context, raw json.RawMessage, clevel *int) ([]byte, error) {
			var item T
			if err := json.Unmarshal(raw, &item); err != nil {
				return nil, fmt.Errorf("decoding work item: %w", err)
			}
			res, err := fn(ctx, item)
			if err != nil {
				return nil, err
			}
			return encodeOutcome(codec, clevel, res)
		},
		reduce: func(payloads [][]byte, clevel *int) ([]byte, error) {
			return reduceOutcomes(codec, clevel, payloads)
		},
	}
	lambdaRegistryMu.Lock()
	lambdaRegistry[id] = entry
	lambdaRegistryMu.Unlock()
}

// RunningInLambda infers from the environment whether this process is an AWS
// Lambda worker rather than the driver.
func RunningInLambda() bool {
	for _, envVar := range []string{"LAMBDA_TASK_ROOT", "AWS_EXECUTION_ENV", "LAMBDA_RUNTIME_DIR"} {
		if os.Getenv(envVar) == "" {
			return false
		}
	}
	return true
}

// StartLambdaWorker hands control to the Lambda runtime and serves tasks
// until the container is reclaimed. It does not return.
func StartLambdaWorker() {
	lambda.Start(handleLambdaTask)
}

func handleLambdaTask(ctx context.Context, task lambdaTask) (lambdaResult, error) {
	// Containers are reused across invocations; return memory between tasks.
	defer debug.FreeOSMemory()

	lambdaRegistryMu.RLock()
	entry, ok := lambdaRegistry[task.FunctionID]
	lambdaRegistryMu.RUnlock()
	if !ok {
		return lambdaResult{}, fmt.Errorf("unknown function id %q", task.FunctionID)
	}

	switch task.Kind {
	case lambdaKindUnit:
		payload, err := entry.unit(ctx, task.Item, task.Compression)
		if err != nil {
			return lambdaResult{}, err
		}
		return lambdaResult{Payload: payload}, nil
	case lambdaKindReduce:
		payload, err := entry.reduce(task.Payloads, task.Compression)
		if err != nil {
			return lambdaResult{}, err
		}
		return lambdaResult{Payload: payload}, nil
	default:
		return lambdaResult{}, fmt.Errorf("unknown task kind %q", task.Kind)
	}
}

// lambdaInvoker is the client-side surface needed to call a deployed
// function.
type lambdaInvoker interface {
	InvokeWithContext(ctx aws.Context, input *awslambda.InvokeInput, opts ...request.Option) (*awslambda.InvokeOutput, error)
}

// LambdaExecutor dispatches units as AWS Lambda invocations and reduces
// their serialized outcomes remotely in a tree before the final merge on the
// driver. Work items cross the wire as JSON, outcomes as codec-encoded
// payloads.
type LambdaExecutor[T any, A Accumulatable[A]] struct {
	client lambdaInvoker

	// FunctionName is the deployed Lambda function to invoke.
	FunctionName string
	// FunctionID routes the task to a registered unit function in the
	// worker binary.
	FunctionID string
	// Workers bounds concurrent invocations; zero means NumCPU.
	Workers int
}

// NewLambdaExecutor builds an executor that invokes the named deployed
// function, routing tasks to the unit function registered under functionID.
func NewLambdaExecutor[T any, A Accumulatable[A]](functionName, functionID string) *LambdaExecutor[T, A] {
	sess := session.Must(session.NewSessionWithOptions(session.Options{
		SharedConfigState: session.SharedConfigEnable,
	}))
	return &LambdaExecutor[T, A]{
		client:       awslambda.New(sess),
		FunctionName: functionName,
		FunctionID:   functionID,
	}
}

func (e *LambdaExecutor[T, A]) invoke(ctx context.Context, task lambdaTask) ([]byte, error) {
	body, err := json.Marshal(task)
	if err != nil {
		return nil, err
	}
	out, err := e.client.InvokeWithContext(ctx, &awslambda.InvokeInput{
		FunctionName: aws.String(e.FunctionName),
		Payload:      body,
	})
	if err != nil {
		return nil, err
	}
	if out.FunctionError != nil {
		return nil, fmt.Errorf("function error from %s: %s: %s", e.FunctionName, aws.StringValue(out.FunctionError), string(out.Payload))
	}
	var res lambdaResult
	if err := json.Unmarshal(out.Payload, &res); err != nil {
		return nil, fmt.Errorf("decoding invocation result: %w", err)
	}
	return res.Payload, nil
}

func (e *LambdaExecutor[T, A]) Execute(ctx context.Context, items Sequence[T], fn UnitFunc[T, A], acc A, opts Options[A]) (A, error) {
	_ = fn // units run remotely via the registered function id
	codec := opts.codec()
	workers := e.Workers
	if workers < 1 {
		workers = opts.workers()
	}
	branch := opts.TreeReduction
	if branch < 2 {
		branch = DefaultTreeReduction
	}
	bar := opts.bar()
	defer func() {
		if bar != nil {
			bar.Finish()
		}
	}()

	runUnit := func(ctx context.Context, item T) ([]byte, error) {
		raw, err := json.Marshal(item)
		if err != nil {
			return nil, err
		}
		return e.invoke(ctx, lambdaTask{
			FunctionID:  e.FunctionID,
			Kind:        lambdaKindUnit,
			Item:        raw,
			Compression: opts.Compression,
		})
	}

	var payloads [][]byte
	err := runFutures(ctx, items, runUnit, workers, opts.TailTimeout, func(payload []byte) error {
		payloads = append(payloads, payload)
		if bar != nil {
			bar.Increment()
		}
		return nil
	})
	if err != nil {
		return acc, err
	}
	if len(payloads) == 0 {
		return acc, nil
	}

	// Reduce remotely in rounds until one payload remains. Each round groups
	// the surviving payloads into batches of at most branch and dispatches
	// one reduce task per batch.
	for len(payloads) > 1 {
		batches := splitBatches(payloads, branch)
		log.Debugf("Reducing %d payloads in %d batches", len(payloads), len(batches))

		type group struct {
			idx   int
			batch [][]byte
		}
		groups := make([]group, len(batches))
		for i, b := range batches {
			groups[i] = group{idx: i, batch: b}
		}
		next := make([][]byte, len(batches))
		runReduce := func(ctx context.Context, g group) (group, error) {
			payload, err := e.invoke(ctx, lambdaTask{
				FunctionID:  e.FunctionID,
				Kind:        lambdaKindReduce,
				Payloads:    g.batch,
				Compression: opts.Compression,
			})
			return group{idx: g.idx, batch: [][]byte{payload}}, err
		}
		err := runFutures(ctx, SequenceOf(groups...), runReduce, workers, opts.TailTimeout, func(g group) error {
			next[g.idx] = g.batch[0]
			return nil
		})
		if err != nil {
			return acc, err
		}

		// A tail timeout may leave holes; carry on with what finished.
		payloads = payloads[:0]
		for _, p := range next {
			if p != nil {
				payloads = append(payloads, p)
			}
		}
		if len(payloads) == 0 {
			return acc, nil
		}
	}

	res, err := decodeOutcome(codec, opts.Compression, payloads[0])
	if err != nil {
		return acc, err
	}
	if !res.Skipped {
		acc = acc.Merge(res.Value)
	}
	return acc, nil
}
