package bomimport

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/storage"

	"github.com/AnimaI/SMD-Manager/utils"
)

// Archiver keeps a copy of every uploaded BOM file.
type Archiver interface {
	Archive(ctx context.Context, objectName, contentType string, data []byte) error
}

type GCSArchiver struct {
	client *storage.Client
	bucket string
}

func NewGCSArchiver(client *storage.Client, bucket string) *GCSArchiver {
	return &GCSArchiver{client: client, bucket: bucket}
}

func (a *GCSArchiver) Archive(ctx context.Context, objectName, contentType string, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()
	return utils.UploadBytesToGCS(ctx, a.client, a.bucket, objectName, contentType, data)
}

// archiveObjectName lays uploads out as boms/<device>/<tracking id>-<file>.
func archiveObjectName(device, trackingID, filename string) string {
	return fmt.Sprintf("boms/%s/%s-%s", utils.SafeObjectName(device), trackingID, utils.SafeObjectName(filename))
}

func contentTypeFor(filename string) string {
	if utils.FileExtension(filename) == "xlsx" {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv"
}
