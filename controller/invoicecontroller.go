package controller

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/billingcat/smartbill/model"
	"github.com/billingcat/smartbill/ocr"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func (ctrl *controller) invoiceInit(e *echo.Echo) {
	e.POST("/extract", ctrl.extractInvoice)
	e.POST("/save", ctrl.saveInvoice)
	e.GET("/get_saved", ctrl.getSavedInvoices)
	e.POST("/delete", ctrl.deleteInvoice)
	e.GET("/download", ctrl.downloadExcel)
}

// safeJoin makes sure that name stays inside base (no path traversal).
func safeJoin(base, name string) (string, error) {
	clean := filepath.Clean("/" + name)
	rel := strings.TrimPrefix(clean, "/")
	full := filepath.Join(base, rel)
	baseAbs, _ := filepath.Abs(base)
	fullAbs, _ := filepath.Abs(full)
	if !strings.HasPrefix(fullAbs, baseAbs+string(os.PathSeparator)) {
		return "", echo.NewHTTPError(http.StatusBadRequest, "invalid file name")
	}
	return full, nil
}

// storeUpload copies the uploaded file into the upload directory under a
// unique name and returns its path.
func (ctrl *controller) storeUpload(fh *multipart.FileHeader) (string, error) {
	dir := ctrl.model.Config.UploadPath()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", ErrInternal(err)
	}
	name := uuid.NewString() + "-" + filepath.Base(fh.Filename)
	dstPath, err := safeJoin(dir, name)
	if err != nil {
		return "", err
	}

	src, err := fh.Open()
	if err != nil {
		return "", ErrInternal(err)
	}
	defer src.Close()

	dst, err := os.OpenFile(dstPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return "", ErrInternal(err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return "", ErrInternal(err)
	}
	if err := dst.Close(); err != nil {
		return "", ErrInternal(err)
	}
	return dstPath, nil
}

func (ctrl *controller) extractInvoice(c echo.Context) error {
	l := ctrl.requestLogger(c)
	fh, err := c.FormFile("file")
	if err != nil || fh.Filename == "" {
		return ErrInvalid(fmt.Errorf("form file: %v", err), "No file uploaded")
	}

	path, err := ctrl.storeUpload(fh)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	text, err := ctrl.extractor.ExtractFile(ctx, path)
	if err != nil {
		if errors.Is(err, ocr.ErrNotConfigured) {
			return &appError{Code: "OCR_UNAVAILABLE", Status: http.StatusServiceUnavailable, Err: err,
				Public: "Text recognition is not configured."}
		}
		return &appError{Code: "EXTRACTION_FAILED", Status: http.StatusUnprocessableEntity, Err: err,
			Public: "Could not read text from the uploaded file."}
	}
	l.Debug("ocr text extracted", "file", fh.Filename, "chars", len(text))

	fields := model.ParseInvoiceDetails(text)
	if ctrl.tagger != nil {
		tokens, labels, err := ctrl.tagger.Tag(ctx, text)
		if err != nil {
			l.Warn("entity tagging failed", "error", err)
		} else {
			fields.ApplyEntities(model.MergeEntities(tokens, labels))
		}
	}
	fields.Text = text
	return c.JSON(http.StatusOK, fields)
}

func (ctrl *controller) saveInvoice(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return ErrInvalid(err, "Cannot read request body")
	}

	var invs []model.SavedInvoice
	err = ctrl.model.Transaction(func(tx *model.Store) error {
		if _, err := tx.SaveInvoice(body); err != nil {
			return err
		}
		invs, err = tx.ListSavedInvoices()
		return err
	})
	if errors.Is(err, model.ErrNotAnObject) {
		return ErrInvalid(err, "Invoice must be a JSON object")
	}
	if err != nil {
		return ErrInternal(fmt.Errorf("save invoice: %w", err))
	}
	return c.JSON(http.StatusOK, savedResponse{Message: "Invoice saved!", Data: rawInvoices(invs)})
}

func (ctrl *controller) getSavedInvoices(c echo.Context) error {
	invs, err := ctrl.model.ListSavedInvoices()
	if err != nil {
		return ErrInternal(fmt.Errorf("list invoices: %w", err))
	}
	return c.JSON(http.StatusOK, rawInvoices(invs))
}

func (ctrl *controller) deleteInvoice(c echo.Context) error {
	var req deleteRequest
	if err := c.Bind(&req); err != nil {
		return ErrInvalid(err, "Invalid request body")
	}
	if req.InvoiceNumber == nil {
		return ErrInvalid(errors.New("missing invoice_number"), "invoice_number is required")
	}

	n, err := ctrl.model.DeleteInvoicesByNumber(*req.InvoiceNumber)
	if err != nil {
		return ErrInternal(fmt.Errorf("delete invoice: %w", err))
	}
	ctrl.requestLogger(c).Info("invoices deleted", "invoice_number", *req.InvoiceNumber, "count", n)

	invs, err := ctrl.model.ListSavedInvoices()
	if err != nil {
		return ErrInternal(fmt.Errorf("list invoices: %w", err))
	}
	return c.JSON(http.StatusOK, savedResponse{Message: "Invoice deleted!", Data: rawInvoices(invs)})
}
