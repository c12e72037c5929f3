package source

import (
	"context"
	"log"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"

	"github.com/dylanpieper/batchGPT/pkg/dataset"
)

// S3SourceAdapter reads a dataset object from an S3 bucket using the
// default AWS credential chain.
type S3SourceAdapter struct {
	config S3SourceConfig
}

type S3SourceConfig struct {
	BucketName string
	Key        string
	Region     string
	Endpoint   string
}

func NewS3SourceAdapter(config map[string]interface{}) (DatasetSource, error) {
	var s3Config S3SourceConfig

	bucketName, ok := config["bucket_name"].(string)
	if !ok {
		return nil, errors.New("bucket_name is missing")
	}
	s3Config.BucketName = bucketName

	key, ok := config["key"].(string)
	if !ok {
		return nil, errors.New("key must be specified")
	}
	s3Config.Key = key

	if region, ok := config["region"].(string); ok {
		s3Config.Region = region
	} else {
		s3Config.Region = "us-east-1"
	}

	// Optional custom endpoint for S3-compatible stores
	s3Config.Endpoint, _ = config["endpoint"].(string)

	return &S3SourceAdapter{config: s3Config}, nil
}

func (a *S3SourceAdapter) Load(ctx context.Context) (*dataset.Table, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(a.config.Region),
		awsconfig.WithRetryMode(aws.RetryModeStandard),
	)
	if err != nil {
		return nil, errors.Wrap(err, "error loading AWS config")
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if a.config.Endpoint != "" {
			o.BaseEndpoint = aws.String(a.config.Endpoint)
			o.UsePathStyle = true
		}
	})

	log.Printf("Loading dataset from s3://%s/%s", a.config.BucketName, a.config.Key)

	result, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.config.BucketName),
		Key:    aws.String(a.config.Key),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "error fetching s3://%s/%s",
			a.config.BucketName, a.config.Key)
	}
	defer result.Body.Close()

	table, err := dataset.Read(result.Body, filepath.Ext(a.config.Key))
	if err != nil {
		return nil, errors.Wrapf(err, "error parsing s3://%s/%s",
			a.config.BucketName, a.config.Key)
	}

	log.Printf("Loaded %d rows, %d columns from s3://%s/%s",
		table.NumRows(), table.NumColumns(), a.config.BucketName, a.config.Key)
	return table, nil
}
