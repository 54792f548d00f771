package utils

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/disintegration/imaging"
	"google.golang.org/api/option"
)

var (
	ErrBlobNotFound        = errors.New("file not found")
	ErrUnsupportedFileType = errors.New("unsupported file type")
)

// BlobStorage stores PDFs and photos by convention-based path.
type BlobStorage interface {
	Upload(ctx context.Context, objectPath string, contentType string, data []byte) error
	Download(ctx context.Context, objectPath string) ([]byte, error)
	Delete(ctx context.Context, objectPath string) error
}

func RapportPath(clientId string, numero string) string {
	return path.Join("rapports", clientId, numero+".pdf")
}

func SupplierInvoicePath(numero string) string {
	return path.Join("factures-fournisseurs", numero+".pdf")
}

func InterventionPhotoPath(equipmentId int, interventionId int, filename string) string {
	return path.Join("interventions", fmt.Sprint(equipmentId), fmt.Sprint(interventionId), path.Base(filename))
}

// ThumbnailPath puts the thumbnail next to the original under a thumb_ prefix.
func ThumbnailPath(objectPath string) string {
	dir, file := path.Split(objectPath)
	return dir + "thumb_" + strings.TrimSuffix(file, path.Ext(file)) + ".jpg"
}

// GCSStorage is the Cloud Storage implementation of BlobStorage.
type GCSStorage struct {
	Bucket string
}

func NewGCSStorage() (*GCSStorage, error) {
	bucket := os.Getenv("GCS_BUCKET")
	if bucket == "" {
		return nil, errors.New("GCS_BUCKET is required")
	}
	return &GCSStorage{Bucket: bucket}, nil
}

// getGoogleClient prefers ADC; GCS_CREDENTIALS_JSON overrides it (local runs).
func getGoogleClient(ctx context.Context) (*storage.Client, error) {
	if credJSON := os.Getenv("GCS_CREDENTIALS_JSON"); strings.TrimSpace(credJSON) != "" {
		return storage.NewClient(ctx, option.WithCredentialsJSON([]byte(credJSON)))
	}
	return storage.NewClient(ctx)
}

func (s *GCSStorage) Upload(ctx context.Context, objectPath string, contentType string, data []byte) error {
	client, err := getGoogleClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	wc := client.Bucket(s.Bucket).Object(objectPath).NewWriter(ctx)
	wc.ContentType = contentType
	if _, err := wc.Write(data); err != nil {
		_ = wc.Close()
		return err
	}
	return wc.Close()
}

func (s *GCSStorage) Download(ctx context.Context, objectPath string) ([]byte, error) {
	client, err := getGoogleClient(ctx)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	rc, err := client.Bucket(s.Bucket).Object(objectPath).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, ErrBlobNotFound
		}
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (s *GCSStorage) Delete(ctx context.Context, objectPath string) error {
	client, err := getGoogleClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	err = client.Bucket(s.Bucket).Object(objectPath).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return ErrBlobNotFound
	}
	return err
}

var allowedUploadTypes = map[string]bool{
	"application/pdf": true,
	"image/jpeg":      true,
	"image/png":       true,
}

// CheckUploadType sniffs data and rejects anything but PDF, JPEG and PNG.
func CheckUploadType(data []byte) (string, error) {
	mimeType := http.DetectContentType(data)
	if !allowedUploadTypes[mimeType] {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFileType, mimeType)
	}
	return mimeType, nil
}

// MakeThumbnail resizes an image to width pixels, keeping the aspect ratio, as JPEG.
func MakeThumbnail(data []byte, width int) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, err
	}
	thumb := imaging.Resize(img, width, 0, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(80)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
