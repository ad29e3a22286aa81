package api

import (
	"mime/multipart"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"quickedit/internal/apperr"
	"quickedit/internal/keyset"
	"quickedit/internal/models"
)

// maxUploadSize bounds uploaded key-set files.
const maxUploadSize = 20 << 20

// KeySetSync tags products matching an uploaded workbook column.
// POST /api/sync/keyset
func (h *SyncHandler) KeySetSync(c echo.Context) error {
	c.Set("api_actions", "keyset")

	table, err := h.readTable(c)
	if err != nil {
		return failure(c, err)
	}
	keys, err := table.Keys(c.FormValue("excelColumn"))
	if err != nil {
		return failure(c, err)
	}

	job := models.KeySetJob("excel_sync", keys, h.vendorKey,
		c.FormValue("fornitoreValue"), c.FormValue("tag"), c.FormValue("status"))
	h.logger.Info("Key-set sync requested",
		zap.Int("keys", len(keys)),
		zap.String("vendor", job.Criterion.VendorValue))

	summary, err := h.scheduler.RunNow(runContext(c), job)
	return h.runResponse(c, summary, err)
}

// EANSync tags products whose barcode is listed in an uploaded text file.
// POST /api/sync/ean
func (h *SyncHandler) EANSync(c echo.Context) error {
	c.Set("api_actions", "ean")

	fh, err := c.FormFile("file")
	if err != nil {
		return failure(c, apperr.Validation("file is required"))
	}
	f, err := openUpload(fh)
	if err != nil {
		return failure(c, err)
	}
	defer f.Close()

	keys, err := keyset.FromText(f)
	if err != nil {
		return failure(c, err)
	}
	if len(keys) == 0 {
		return failure(c, apperr.Validation("no EAN codes found in file"))
	}

	job := models.KeySetJob("ean_sync", keys, "", "", c.FormValue("tag"), c.FormValue("status"))
	summary, err := h.scheduler.RunNow(runContext(c), job)
	return h.runResponse(c, summary, err)
}

// Columns returns the header row of an uploaded workbook.
// POST /api/sync/columns
func (h *SyncHandler) Columns(c echo.Context) error {
	c.Set("api_actions", "columns")

	table, err := h.readTable(c)
	if err != nil {
		return failure(c, err)
	}
	return successResponse(c, models.SyncResponse{Columns: table.Columns})
}

func (h *SyncHandler) readTable(c echo.Context) (*keyset.Table, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		return nil, apperr.Validation("file is required")
	}
	f, err := openUpload(fh)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return keyset.Read(fh.Filename, f)
}

func openUpload(fh *multipart.FileHeader) (multipart.File, error) {
	if fh.Size > maxUploadSize {
		return nil, apperr.Validation("file %q is too large", fh.Filename)
	}
	if strings.TrimSpace(fh.Filename) == "" {
		return nil, apperr.Validation("file name is required")
	}
	f, err := fh.Open()
	if err != nil {
		return nil, apperr.Validation("open upload: %v", err)
	}
	return f, nil
}
