package models

import "time"

type BankTransferStatus string

const (
	BankTransferPending   BankTransferStatus = "pending"
	BankTransferConfirmed BankTransferStatus = "confirmed"
	BankTransferRejected  BankTransferStatus = "rejected"
)

// WireInstructions tell the buyer where to send funds and which reference
// to quote so the transfer can be matched.
type WireInstructions struct {
	BankName      string `bson:"bank_name" json:"bank_name"`
	AccountName   string `bson:"account_name" json:"account_name"`
	RoutingNumber string `bson:"routing_number" json:"routing_number"`
	AccountNumber string `bson:"account_number" json:"account_number"`
	Reference     string `bson:"reference" json:"reference"`
}

// BankTransferIntent is a pending wire payment for one order milestone.
type BankTransferIntent struct {
	ID             string             `bson:"_id" json:"id"`
	OrderID        string             `bson:"order_id" json:"order_id"`
	OrderNumber    string             `bson:"order_number" json:"order_number"`
	UserID         string             `bson:"user_id" json:"user_id"`
	Milestone      MilestoneName      `bson:"milestone" json:"milestone"`
	Amount         int64              `bson:"amount" json:"amount"`
	Currency       string             `bson:"currency" json:"currency"`
	ReferenceCode  string             `bson:"reference_code" json:"reference_code"`
	Status         BankTransferStatus `bson:"status" json:"status"`
	Instructions   WireInstructions   `bson:"instructions" json:"instructions"`
	ConfirmedBy    string             `bson:"confirmed_by,omitempty" json:"confirmed_by,omitempty"`
	ConfirmedAt    *time.Time         `bson:"confirmed_at,omitempty" json:"confirmed_at,omitempty"`
	RejectedReason string             `bson:"rejected_reason,omitempty" json:"rejected_reason,omitempty"`
	CreatedAt      time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time          `bson:"updated_at" json:"updated_at"`
}

type RejectBankTransferRequest struct {
	Reason string `json:"reason" binding:"required,max=500"`
}
