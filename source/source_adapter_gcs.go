package source

import (
	"context"
	"log"
	"path/filepath"

	"cloud.google.com/go/storage"
	"github.com/pkg/errors"
	"google.golang.org/api/option"

	"github.com/dylanpieper/batchGPT/pkg/dataset"
)

// GCSSourceAdapter reads a dataset object from a Google Cloud Storage
// bucket. Credentials come from the environment unless a service account
// file or JSON blob is configured.
type GCSSourceAdapter struct {
	config GCSSourceConfig
}

type GCSSourceConfig struct {
	BucketName      string
	ObjectName      string
	CredentialsFile string
	CredentialsJSON string
}

func NewGCSSourceAdapter(config map[string]interface{}) (DatasetSource, error) {
	var gcsConfig GCSSourceConfig

	bucketName, ok := config["bucket_name"].(string)
	if !ok {
		return nil, errors.New("bucket_name is missing")
	}
	gcsConfig.BucketName = bucketName

	objectName, ok := config["object"].(string)
	if !ok {
		return nil, errors.New("object must be specified")
	}
	gcsConfig.ObjectName = objectName

	gcsConfig.CredentialsFile, _ = config["credentials_file"].(string)
	gcsConfig.CredentialsJSON, _ = config["credentials_json"].(string)

	return &GCSSourceAdapter{config: gcsConfig}, nil
}

func (a *GCSSourceAdapter) Load(ctx context.Context) (*dataset.Table, error) {
	var clientOptions []option.ClientOption
	if a.config.CredentialsJSON != "" {
		clientOptions = append(clientOptions, option.WithCredentialsJSON([]byte(a.config.CredentialsJSON)))
	} else if a.config.CredentialsFile != "" {
		clientOptions = append(clientOptions, option.WithCredentialsFile(a.config.CredentialsFile))
	}

	client, err := storage.NewClient(ctx, clientOptions...)
	if err != nil {
		return nil, errors.Wrap(err, "error creating GCS client")
	}
	defer client.Close()

	log.Printf("Loading dataset from gs://%s/%s", a.config.BucketName, a.config.ObjectName)

	reader, err := client.Bucket(a.config.BucketName).Object(a.config.ObjectName).NewReader(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "error opening gs://%s/%s",
			a.config.BucketName, a.config.ObjectName)
	}
	defer reader.Close()

	table, err := dataset.Read(reader, filepath.Ext(a.config.ObjectName))
	if err != nil {
		return nil, errors.Wrapf(err, "error parsing gs://%s/%s",
			a.config.BucketName, a.config.ObjectName)
	}

	log.Printf("Loaded %d rows, %d columns from gs://%s/%s",
		table.NumRows(), table.NumColumns(), a.config.BucketName, a.config.ObjectName)
	return table, nil
}
