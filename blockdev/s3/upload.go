package s3

import (
	"context"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// uploadPartSize is larger than the SDK default of 5MB for better
// throughput on image-sized streams.
const uploadPartSize = 8 * 1024 * 1024

// UploadImage streams a device image (see blockdev.ExportImage) to a single
// S3 object using multipart upload. Useful for archiving a snapshot next to
// the device's block objects.
func UploadImage(ctx context.Context, client manager.UploadAPIClient, bucket, key string, r io.Reader) error {
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = uploadPartSize
	})

	_, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   r,
	})
	return err
}
