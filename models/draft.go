package models

import "time"

// InvoiceDraft is an inbound submission before verification and minting.
// No identity is assigned until the draft passes the verification gate.
type InvoiceDraft struct {
	Supplier      string    `json:"supplier"`
	Buyer         string    `json:"buyer"`
	InvoiceNumber string    `json:"invoiceNumber"`
	Amount        int64     `json:"amount"` // smallest currency unit
	Currency      string    `json:"currency"`
	GSTIN         string    `json:"gstin"`
	IssueDate     time.Time `json:"issueDate"`
	DueDate       time.Time `json:"dueDate"`
	MetadataURI   string    `json:"metadataUri"`
}

// Validate checks the required submission fields. IssueDate defaults to now
// when unset; that is applied here so the hash input is always complete.
func (d *InvoiceDraft) Validate() error {
	if d.Supplier == "" || d.Buyer == "" || d.InvoiceNumber == "" {
		return ErrValidation
	}
	if d.Amount <= 0 {
		return ErrValidation
	}
	if d.DueDate.IsZero() {
		return ErrValidation
	}
	if d.IssueDate.IsZero() {
		d.IssueDate = time.Now().UTC()
	}
	return nil
}
