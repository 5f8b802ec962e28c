package infrastructure

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"rivwidthcloud/internal/domain"
)

// GCSExportLister lists objects written by exports to Cloud Storage.
type GCSExportLister struct {
	logger *zap.Logger
	client *storage.Client
}

func NewGCSExportLister(ctx context.Context, logger *zap.Logger, opts ...option.ClientOption) (*GCSExportLister, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage.newclient: %w", err)
	}
	return &GCSExportLister{logger: logger, client: client}, nil
}

func (l *GCSExportLister) List(ctx context.Context, bucket, prefix string) ([]domain.ExportObject, error) {
	it := l.client.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: prefix})

	var objects []domain.ExportObject
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list gs://%s/%s: %w", bucket, prefix, err)
		}
		objects = append(objects, domain.ExportObject{
			Name:    attrs.Name,
			Size:    attrs.Size,
			Updated: attrs.Updated,
		})
	}

	l.logger.Debug("Listed export objects",
		zap.String("bucket", bucket),
		zap.String("prefix", prefix),
		zap.Int("count", len(objects)))
	return objects, nil
}

func (l *GCSExportLister) Close() error {
	return l.client.Close()
}
