// controllers/invoice.go
package controllers

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"desupply-backend/models"
	"desupply-backend/services"
	"desupply-backend/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const maxUploadBytes = 10 * 1024 * 1024 // 10MB limit

type InvoiceController struct {
	Gate     *services.VerificationGate
	Registry *services.RegistryService
	Engine   *services.FundingEngine
	Events   *services.EventService
}

// VerifyAndMint runs the full admission path: validate the submission, pass
// it through the three-source verification gate, mint the invoice and
// register it for funding. An attached document (pdf/jpg/png) is stored and
// its metadata kept on the invoice record.
func (ic *InvoiceController) VerifyAndMint(c *gin.Context) {
	caller, ok := utils.CallerAddress(c)
	if !ok {
		utils.RespondWithError(c, http.StatusUnauthorized, "Address not found in context")
		return
	}

	supplier := strings.TrimSpace(c.PostForm("supplier"))
	buyer := strings.TrimSpace(c.PostForm("buyer"))
	invoiceNumber := strings.TrimSpace(c.PostForm("invoiceNumber"))
	rawAmount := c.PostForm("amount")
	rawDueDate := c.PostForm("dueDate")

	// Validate input before any oracle is consulted
	if supplier == "" || buyer == "" || invoiceNumber == "" || rawAmount == "" || rawDueDate == "" {
		utils.RespondWithError(c, http.StatusBadRequest, "Missing required fields")
		return
	}
	if supplier != caller {
		utils.RespondWithError(c, http.StatusForbidden, "Only the supplier may submit its own invoice")
		return
	}

	amount, err := strconv.ParseInt(rawAmount, 10, 64)
	if err != nil || amount <= 0 {
		utils.RespondWithError(c, http.StatusBadRequest, "Invalid amount")
		return
	}
	dueDate, err := parseDate(rawDueDate)
	if err != nil {
		utils.RespondWithError(c, http.StatusBadRequest, "Invalid due date")
		return
	}

	issueDate := time.Now().UTC()
	if raw := c.PostForm("issueDate"); raw != "" {
		issueDate, err = parseDate(raw)
		if err != nil {
			utils.RespondWithError(c, http.StatusBadRequest, "Invalid issue date")
			return
		}
	}

	draft := models.InvoiceDraft{
		Supplier:      supplier,
		Buyer:         buyer,
		InvoiceNumber: invoiceNumber,
		Amount:        amount,
		Currency:      c.PostForm("currency"),
		GSTIN:         c.PostForm("gstin"),
		IssueDate:     issueDate,
		DueDate:       dueDate,
		MetadataURI:   c.PostForm("metadataIPFS"),
	}

	log.Printf("Starting verification for invoice: %s", invoiceNumber)

	result := ic.Gate.Verify(c.Request.Context(), draft)
	if !result.Passed {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Verification failed",
			"details": gin.H{
				"gst":       result.GST,
				"erp":       result.ERP,
				"logistics": result.Logistics,
			},
		})
		return
	}

	// Store the attached document only for submissions that passed the gate,
	// so a rejected submission leaves nothing on disk.
	fileMetadata := ""
	if file, err := c.FormFile("invoiceFile"); err == nil {
		meta, err := ic.storeUpload(c, file.Filename, file.Size)
		if err != nil {
			utils.RespondWithError(c, http.StatusBadRequest, err.Error())
			return
		}
		fileMetadata = meta
	}

	invoice, err := ic.Registry.Mint(c.Request.Context(), draft, fileMetadata)
	if err != nil {
		respondLedgerError(c, err)
		return
	}
	log.Printf("Invoice minted with tokenId: %d", invoice.TokenID)

	if _, err := ic.Registry.RegisterForFunding(c.Request.Context(), invoice.TokenID, invoice.FaceValue, invoice.Buyer, invoice.DueDate); err != nil {
		respondLedgerError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"tokenId":     invoice.TokenID,
		"invoiceHash": invoice.InvoiceHash,
		"message":     "Invoice verified, minted, and registered successfully",
	})
}

// storeUpload saves the attached document under the uploads directory and
// returns its metadata as JSON.
func (ic *InvoiceController) storeUpload(c *gin.Context, originalName string, size int64) (string, error) {
	if size > maxUploadBytes {
		return "", models.ErrValidation
	}

	ext := strings.ToLower(filepath.Ext(originalName))
	switch ext {
	case ".pdf", ".jpg", ".jpeg", ".png":
	default:
		return "", models.ErrValidation
	}

	uploadDir := os.Getenv("UPLOAD_DIR")
	if uploadDir == "" {
		uploadDir = "uploads"
	}
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return "", err
	}

	file, err := c.FormFile("invoiceFile")
	if err != nil {
		return "", err
	}

	stored := "invoice-" + uuid.NewString() + ext
	path := filepath.Join(uploadDir, stored)
	if err := c.SaveUploadedFile(file, path); err != nil {
		return "", err
	}
	log.Printf("File uploaded: %s", path)

	meta, err := json.Marshal(gin.H{
		"filename":     stored,
		"originalName": originalName,
		"path":         path,
		"size":         size,
	})
	if err != nil {
		return "", err
	}
	return string(meta), nil
}

// GetVerifiedInvoices returns the lender marketplace: every fully verified
// invoice enriched with its lifecycle status flags.
func (ic *InvoiceController) GetVerifiedInvoices(c *gin.Context) {
	invoices, err := ic.Registry.ListVerified(c.Request.Context())
	if err != nil {
		utils.RespondWithError(c, http.StatusInternalServerError, "Failed to retrieve invoices")
		return
	}

	enriched := make([]gin.H, 0, len(invoices))
	for _, invoice := range invoices {
		enriched = append(enriched, gin.H{
			"invoice":         invoice,
			"lifecycleStatus": statusVector(invoice.Status),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"invoices": enriched,
	})
}

// GetInvoice returns a single invoice with its funding position, if any.
func (ic *InvoiceController) GetInvoice(c *gin.Context) {
	tokenID, ok := parseTokenID(c)
	if !ok {
		return
	}

	invoice, err := ic.Registry.Get(c.Request.Context(), tokenID)
	if err != nil {
		respondLedgerError(c, err)
		return
	}

	response := gin.H{
		"invoice":         invoice,
		"lifecycleStatus": statusVector(invoice.Status),
	}
	if position, err := ic.Engine.Position(c.Request.Context(), tokenID); err == nil {
		response["position"] = position
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "invoice": response})
}

// GetEvents returns the invoice's audit trail, newest first.
func (ic *InvoiceController) GetEvents(c *gin.Context) {
	tokenID, ok := parseTokenID(c)
	if !ok {
		return
	}

	events, err := ic.Events.ByToken(c.Request.Context(), tokenID)
	if err != nil {
		utils.RespondWithError(c, http.StatusInternalServerError, "Failed to retrieve events")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "events": events})
}
