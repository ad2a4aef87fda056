// Package persist stores computed insights on the storage network and
// records them on the vault.
package persist

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/concierge-labs/concierge/pkg/storage"
)

var (
	// ErrStorageUpload means the insights were computed but not stored.
	ErrStorageUpload = eris.New("persist: storage upload failed")
	// ErrVaultWrite means the insights were stored but not recorded on chain.
	ErrVaultWrite = eris.New("persist: vault write failed")
)

// Uploader stores one named object.
type Uploader interface {
	Upload(ctx context.Context, name string, data []byte) (*storage.UploadResult, error)
}

// Vault records insights for a file.
type Vault interface {
	UpdateInsights(ctx context.Context, rootHash, category, insightsCID string) (txHash string, err error)
}

// CIDs are the content identifiers of the persisted insights.
type CIDs struct {
	CategoryCID string
	InsightsCID string
	TxHash      string
}

// Persister uploads insights and writes them to the vault.
type Persister struct {
	uploader Uploader
	vault    Vault
}

// New creates a Persister.
func New(u Uploader, v Vault) *Persister {
	return &Persister{uploader: u, vault: v}
}

// Persist uploads the category and summary as <fileName>-category.txt and
// <fileName>-summary.txt, then records (rootHash, category, insightsCID) on
// the vault in a single transaction. The vault is not touched unless both
// uploads succeed.
func (p *Persister) Persist(ctx context.Context, rootHash, fileName, category, summary string) (CIDs, error) {
	log := zap.L().With(zap.String("component", "persist"), zap.String("root_hash", rootHash))

	cat, err := p.uploader.Upload(ctx, fileName+"-category.txt", []byte(category))
	if err != nil {
		return CIDs{}, eris.Wrapf(ErrStorageUpload, "category: %s", err.Error())
	}
	sum, err := p.uploader.Upload(ctx, fileName+"-summary.txt", []byte(summary))
	if err != nil {
		return CIDs{}, eris.Wrapf(ErrStorageUpload, "summary: %s", err.Error())
	}
	log.Info("persist: insights uploaded",
		zap.String("category_cid", cat.RootHash),
		zap.String("insights_cid", sum.RootHash),
	)

	txHash, err := p.vault.UpdateInsights(ctx, rootHash, category, sum.RootHash)
	if err != nil {
		return CIDs{CategoryCID: cat.RootHash, InsightsCID: sum.RootHash}, eris.Wrapf(ErrVaultWrite, "%s", err.Error())
	}

	return CIDs{CategoryCID: cat.RootHash, InsightsCID: sum.RootHash, TxHash: txHash}, nil
}
