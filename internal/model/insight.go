package model

import "time"

// DefaultCategory is used when the model answer carries no usable category.
const DefaultCategory = "unassigned"

// InsightRequest asks for a summary and category of one stored file.
type InsightRequest struct {
	RootHash string `json:"rootHash"`
	FileName string `json:"fileName"`
	Content  string `json:"content"`
}

// InsightResult is the outcome of a successful pipeline run.
type InsightResult struct {
	RunID       string   `json:"runId,omitempty"`
	RootHash    string   `json:"rootHash"`
	Category    string   `json:"category"`
	Summary     string   `json:"summary"`
	CategoryCID string   `json:"categoryCID"`
	InsightsCID string   `json:"insightsCID"`
	AIRaw       string   `json:"aiRaw"`
	Provider    string   `json:"provider,omitempty"`
	Model       string   `json:"model,omitempty"`
	TxHash      string   `json:"txHash,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`
}

// VaultFile is one on-chain vault record.
type VaultFile struct {
	RootHash    string    `json:"rootHash"`
	Category    string    `json:"category"`
	InsightsCID string    `json:"insightsCID"`
	Timestamp   time.Time `json:"timestamp"`
}

// UploadedFile reports the root hash of one uploaded file.
type UploadedFile struct {
	FileName      string `json:"fileName"`
	RootHash      string `json:"rootHash"`
	AlreadyExists bool   `json:"alreadyExists"`
	VaultTx       string `json:"vaultTx,omitempty"`
}
