package s3

import (
	"bytes"
	"context"
	"fmt"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Uploader 負責把檔案上傳到 S3 並組出對外的公開連結
type Uploader struct {
	Client *s3.Client
	Bucket string
	// PublicEndpoint 是存儲桶的公開 Endpoint，回傳的連結以此為基底
	PublicEndpoint *url.URL
}

func NewUploader(client *s3.Client, bucket, publicBaseURL string) (*Uploader, error) {
	const op = "NewUploader"
	publicEndpoint, err := url.Parse(publicBaseURL)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to parse public base URL, err=%w", op, err)
	}
	return &Uploader{Client: client, Bucket: bucket, PublicEndpoint: publicEndpoint}, nil
}

// Upload 上傳檔案內容到指定路徑，返回公開存取連結
func (u *Uploader) Upload(ctx context.Context, path, contentType string, content []byte) (string, error) {
	const op = "Uploader.Upload"
	_, err := u.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.Bucket),
		Key:         aws.String(path),
		Body:        bytes.NewReader(content),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("[%s] Fail to upload file to S3, err=%w", op, err)
	}
	uri := *u.PublicEndpoint
	uri.Path = path
	return uri.String(), nil
}
