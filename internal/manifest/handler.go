package manifest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/your-org/handler-harness/internal/guard"
	"github.com/your-org/handler-harness/internal/profile"
)

// S3API abstracts the S3 GetObject operation.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// MetricsAPI abstracts the CloudWatch PutMetricData operation.
type MetricsAPI interface {
	PutMetricData(ctx context.Context, in *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// ProfileSource resolves optional settings overrides.
type ProfileSource interface {
	Load(ctx context.Context, name string) (profile.Profile, error)
}

// File describes one object recorded by the handler.
type File struct {
	Bucket    string `json:"bucket"`
	Key       string `json:"key"`
	Size      int64  `json:"size"`
	SHA256    string `json:"sha256"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

// Response is the handler's result payload.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Processed  int    `json:"processed"`
	Duplicates int    `json:"duplicates,omitempty"`
	Files      []File `json:"files,omitempty"`
}

// Handler records every object in an S3 event batch in the manifest table.
type Handler struct {
	cfg      Config
	s3       S3API
	db       guard.PutItemAPI
	cw       MetricsAPI
	profiles ProfileSource
	log      *zap.SugaredLogger
	now      func() time.Time
	sleep    func(time.Duration)
}

// New creates a Handler. profiles may be nil when cfg.ProfileParam is empty.
func New(cfg Config, s3c S3API, db guard.PutItemAPI, cw MetricsAPI, profiles ProfileSource, log *zap.SugaredLogger) *Handler {
	return &Handler{
		cfg:      cfg,
		s3:       s3c,
		db:       db,
		cw:       cw,
		profiles: profiles,
		log:      log,
		now:      time.Now,
		sleep:    time.Sleep,
	}
}

// Handle processes evt. It stops at the first record that fails.
func (h *Handler) Handle(ctx context.Context, evt events.S3Event) (Response, error) {
	if len(evt.Records) == 0 {
		return Response{}, errors.New("event has no records")
	}
	cfg, err := h.settings(ctx)
	if err != nil {
		return Response{}, err
	}
	var reqID string
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		reqID = lc.AwsRequestID
	}

	resp := Response{StatusCode: 200}
	for _, rec := range evt.Records {
		f, err := h.record(ctx, cfg, reqID, rec)
		if err != nil {
			return Response{}, err
		}
		if f.Duplicate {
			resp.Duplicates++
		} else {
			resp.Processed++
		}
		resp.Files = append(resp.Files, f)
	}

	if err := h.putMetrics(ctx, cfg.Namespace, resp); err != nil {
		return Response{}, fmt.Errorf("metrics: %w", err)
	}
	h.log.Infow("manifest updated", "processed", resp.Processed, "duplicates", resp.Duplicates, "requestId", reqID)
	return resp, nil
}

func (h *Handler) settings(ctx context.Context) (Config, error) {
	cfg := h.cfg
	if cfg.ProfileParam == "" || h.profiles == nil {
		return cfg, nil
	}
	p, err := h.profiles.Load(ctx, cfg.ProfileParam)
	if err != nil {
		return Config{}, fmt.Errorf("load profile: %w", err)
	}
	if p.MaxSize > 0 {
		cfg.MaxSize = p.MaxSize
	}
	if p.Namespace != "" {
		cfg.Namespace = p.Namespace
	}
	return cfg, nil
}

func (h *Handler) record(ctx context.Context, cfg Config, reqID string, rec events.S3EventRecord) (File, error) {
	bucket := rec.S3.Bucket.Name
	key := rec.S3.Object.URLDecodedKey
	if key == "" {
		key = rec.S3.Object.Key
	}
	if err := guard.ValidateSize(key, rec.S3.Object.Size, cfg.MaxSize); err != nil {
		return File{}, err
	}

	obj, err := h.getObject(ctx, bucket, key)
	if err != nil {
		return File{}, fmt.Errorf("get object %s/%s: %w", bucket, key, err)
	}
	defer guard.Close(obj.Body, h.log)

	sum, n, err := guard.ComputeSHA256(obj.Body)
	if err != nil {
		return File{}, fmt.Errorf("read object %s/%s: %w", bucket, key, err)
	}
	f := File{Bucket: bucket, Key: key, Size: n, SHA256: sum}

	entry := guard.Entry{Bucket: bucket, Key: key, SHA256: sum, Size: n, RequestID: reqID, SeenAt: h.now()}
	if err := guard.PutManifest(ctx, h.db, cfg.Table, entry); err != nil {
		if errors.Is(err, guard.ErrDuplicate) {
			h.log.Infow("duplicate object", "bucket", bucket, "key", key, "sha", sum)
			f.Duplicate = true
			return f, nil
		}
		return File{}, fmt.Errorf("write manifest: %w", err)
	}
	return f, nil
}

// getObject retries once when S3 asks the caller to slow down.
func (h *Handler) getObject(ctx context.Context, bucket, key string) (*s3.GetObjectOutput, error) {
	in := &s3.GetObjectInput{Bucket: &bucket, Key: &key}
	obj, err := h.s3.GetObject(ctx, in)
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "SlowDown" {
		h.log.Warnw("s3 throttled", "bucket", bucket, "key", key)
		h.sleep(200 * time.Millisecond)
		obj, err = h.s3.GetObject(ctx, in)
	}
	return obj, err
}

func (h *Handler) putMetrics(ctx context.Context, namespace string, resp Response) error {
	data := []cwtypes.MetricDatum{
		{MetricName: aws.String("Processed"), Value: aws.Float64(float64(resp.Processed)), Unit: cwtypes.StandardUnitCount},
	}
	if resp.Duplicates > 0 {
		data = append(data, cwtypes.MetricDatum{MetricName: aws.String("Duplicates"), Value: aws.Float64(float64(resp.Duplicates)), Unit: cwtypes.StandardUnitCount})
	}
	_, err := h.cw.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(namespace),
		MetricData: data,
	})
	return err
}
