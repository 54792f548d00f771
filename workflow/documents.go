package workflow

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/solarclean/backoffice/config"
	"github.com/solarclean/backoffice/models"
	"github.com/solarclean/backoffice/utils"
)

const (
	maxUploadSizeBytes = 10 << 20
	thumbnailWidth     = 320
)

var ErrUploadTooLarge = fmt.Errorf("file exceeds %d MB", maxUploadSizeBytes>>20)

func requirePdf(data []byte) error {
	if len(data) > maxUploadSizeBytes {
		return ErrUploadTooLarge
	}
	contentType, err := utils.CheckUploadType(data)
	if err != nil {
		return err
	}
	if contentType != "application/pdf" {
		return fmt.Errorf("%w: %s", utils.ErrUnsupportedFileType, contentType)
	}
	return nil
}

// UploadInvoiceReport stores the intervention report attached to an invoice.
func UploadInvoiceReport(ctx context.Context, store utils.BlobStorage, invoiceId int, data []byte) (string, error) {
	if err := requirePdf(data); err != nil {
		return "", err
	}
	invoice, err := models.GetInvoice(ctx, invoiceId)
	if err != nil {
		return "", err
	}
	objectPath := utils.RapportPath(invoice.ClientId, invoice.Numero)
	if err := store.Upload(ctx, objectPath, "application/pdf", data); err != nil {
		config.LogError(config.GetLogger(), "documents.go", "UploadInvoiceReport", "upload", objectPath, err)
		return "", err
	}
	if err := models.SetInvoiceReportPath(ctx, invoiceId, objectPath); err != nil {
		return "", err
	}
	return objectPath, nil
}

func DownloadInvoiceReport(ctx context.Context, store utils.BlobStorage, invoiceId int) ([]byte, error) {
	invoice, err := models.GetInvoice(ctx, invoiceId)
	if err != nil {
		return nil, err
	}
	if invoice.ReportPath == "" {
		return nil, utils.ErrBlobNotFound
	}
	return store.Download(ctx, invoice.ReportPath)
}

func DownloadSupplierInvoicePdf(ctx context.Context, store utils.BlobStorage, id int) ([]byte, error) {
	invoice, err := models.GetSupplierInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	if invoice.PdfPath == "" {
		return nil, utils.ErrBlobNotFound
	}
	return store.Download(ctx, invoice.PdfPath)
}

// UploadInterventionPhoto stores the photo and a JPEG thumbnail next to it.
// The thumbnail is written first so a stored photo always has one.
func UploadInterventionPhoto(ctx context.Context, store utils.BlobStorage, interventionId int, filename string, data []byte) (*models.InterventionPhoto, error) {
	if len(data) > maxUploadSizeBytes {
		return nil, ErrUploadTooLarge
	}
	contentType, err := utils.CheckUploadType(data)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("%w: %s", utils.ErrUnsupportedFileType, contentType)
	}
	intervention, err := models.GetIntervention(ctx, interventionId)
	if err != nil {
		return nil, err
	}

	ext := strings.ToLower(path.Ext(filename))
	if ext == "" {
		ext = ".jpg"
	}
	objectPath := utils.InterventionPhotoPath(intervention.EquipmentId, intervention.ID, uuid.NewString()+ext)
	thumbPath := utils.ThumbnailPath(objectPath)

	thumb, err := utils.MakeThumbnail(data, thumbnailWidth)
	if err != nil {
		return nil, fmt.Errorf("thumbnail: %w", err)
	}
	logger := config.GetLogger()
	if err := store.Upload(ctx, thumbPath, "image/jpeg", thumb); err != nil {
		config.LogError(logger, "documents.go", "UploadInterventionPhoto", "upload thumbnail", thumbPath, err)
		return nil, err
	}
	if err := store.Upload(ctx, objectPath, contentType, data); err != nil {
		config.LogError(logger, "documents.go", "UploadInterventionPhoto", "upload photo", objectPath, err)
		return nil, err
	}
	photo, err := models.AddInterventionPhoto(ctx, interventionId, objectPath, thumbPath, contentType)
	if err != nil {
		config.LogError(logger, "documents.go", "UploadInterventionPhoto", "AddInterventionPhoto", objectPath, err)
		return nil, err
	}
	return photo, nil
}
