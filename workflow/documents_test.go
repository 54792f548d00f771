package workflow_test

import (
	"bytes"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"strings"
	"testing"

	"github.com/solarclean/backoffice/models"
	"github.com/solarclean/backoffice/utils"
	"github.com/solarclean/backoffice/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var samplePdf = []byte("%PDF-1.4\n1 0 obj << /Type /Catalog >> endobj\ntrailer << /Root 1 0 R >>\n%%EOF\n")

func samplePng(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestUploadInvoiceReport(t *testing.T) {
	ctx := setupTestDB(t)
	store := newMemoryStorage()
	client := newClient(t, ctx, "rapport@pv.fr")
	invoice, err := models.CreateInvoice(ctx, &models.NewInvoice{
		ClientId:  client.ID,
		IssueDate: day(2025, 3, 1),
		Lines:     []models.NewDocumentLine{{Designation: "Nettoyage", Quantity: dec("1"), UnitPrice: decPtr("100"), VatRate: decPtr("20")}},
	})
	require.NoError(t, err)

	_, err = workflow.DownloadInvoiceReport(ctx, store, invoice.ID)
	require.ErrorIs(t, err, utils.ErrBlobNotFound)

	_, err = workflow.UploadInvoiceReport(ctx, store, invoice.ID, []byte("rapport en texte"))
	require.ErrorIs(t, err, utils.ErrUnsupportedFileType)
	_, err = workflow.UploadInvoiceReport(ctx, store, invoice.ID, samplePng(t, 4, 4))
	require.ErrorIs(t, err, utils.ErrUnsupportedFileType)
	_, err = workflow.UploadInvoiceReport(ctx, store, invoice.ID, make([]byte, 10<<20+1))
	require.ErrorIs(t, err, workflow.ErrUploadTooLarge)

	objectPath, err := workflow.UploadInvoiceReport(ctx, store, invoice.ID, samplePdf)
	require.NoError(t, err)
	assert.Equal(t, "rapports/"+client.ID+"/"+invoice.Numero+".pdf", objectPath)
	assert.Equal(t, "application/pdf", store.types[objectPath])

	stored, err := models.GetInvoice(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, objectPath, stored.ReportPath)

	data, err := workflow.DownloadInvoiceReport(ctx, store, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, samplePdf, data)
}

func TestUploadSupplierInvoicePdf(t *testing.T) {
	ctx := setupTestDB(t)
	store := newMemoryStorage()
	invoice, err := models.CreateSupplierInvoice(ctx, &models.NewSupplierInvoice{
		Numero:   "F-77",
		Supplier: "Solaire Distribution",
		Date:     day(2025, 5, 10),
		Lines:    []models.NewSupplierInvoiceLine{{Designation: "Gants", Quantity: dec("2"), UnitPrice: dec("9"), VatRate: dec("20")}},
	})
	require.NoError(t, err)

	objectPath, err := workflow.UploadSupplierInvoicePdf(ctx, store, invoice.ID, samplePdf)
	require.NoError(t, err)
	assert.Equal(t, "factures-fournisseurs/F-77.pdf", objectPath)

	data, err := workflow.DownloadSupplierInvoicePdf(ctx, store, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, samplePdf, data)

	_, err = workflow.UploadSupplierInvoicePdf(ctx, store, 9999, samplePdf)
	assert.ErrorIs(t, err, utils.ErrorRecordNotFound)
}

func TestUploadInterventionPhoto(t *testing.T) {
	ctx := setupTestDB(t)
	store := newMemoryStorage()
	equipment, err := models.CreateEquipment(ctx, &models.NewEquipment{Code: "NAC-01", Type: models.EquipmentTypeLift, Label: "Nacelle 12 m"})
	require.NoError(t, err)
	intervention, err := models.CreateIntervention(ctx, equipment.ID, &models.NewIntervention{
		Type: models.InterventionTypeCheck,
		Date: day(2025, 6, 2),
	})
	require.NoError(t, err)

	_, err = workflow.UploadInterventionPhoto(ctx, store, intervention.ID, "rapport.pdf", samplePdf)
	require.ErrorIs(t, err, utils.ErrUnsupportedFileType)

	photo, err := workflow.UploadInterventionPhoto(ctx, store, intervention.ID, "Vue Toiture.PNG", samplePng(t, 640, 480))
	require.NoError(t, err)
	assert.Equal(t, intervention.ID, photo.InterventionId)
	assert.Equal(t, "image/png", photo.ContentType)
	assert.True(t, strings.HasPrefix(photo.Path, "interventions/"), photo.Path)
	assert.True(t, strings.HasSuffix(photo.Path, ".png"), photo.Path)
	assert.Equal(t, utils.ThumbnailPath(photo.Path), photo.ThumbnailPath)
	require.Len(t, store.objects, 2)

	thumb, err := store.Download(ctx, photo.ThumbnailPath)
	require.NoError(t, err)
	cfg, format, err := image.DecodeConfig(bytes.NewReader(thumb))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 320, cfg.Width)
	assert.Equal(t, 240, cfg.Height)

	withPhotos, err := models.GetIntervention(ctx, intervention.ID)
	require.NoError(t, err)
	require.Len(t, withPhotos.Photos, 1)
	assert.Equal(t, photo.Path, withPhotos.Photos[0].Path)

	_, err = workflow.UploadInterventionPhoto(ctx, store, 9999, "photo.png", samplePng(t, 8, 8))
	assert.ErrorIs(t, err, utils.ErrorRecordNotFound)
}
