package api

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/concierge-labs/concierge/internal/model"
	"github.com/concierge-labs/concierge/pkg/storage"
)

// FileRegistrar records an uploaded file on the vault.
type FileRegistrar interface {
	AddFile(ctx context.Context, rootHash, category, encryptedKey, insightsCID string) (string, error)
}

// UploadItem is one named file. Read is called inside the worker so large
// files are not all held in memory at once.
type UploadItem struct {
	Name string
	Read func() ([]byte, error)
}

// Uploader stores files on the storage network with bounded concurrency and
// optionally registers the new ones on the vault. Both /uploadFile and the
// upload command go through it.
type Uploader struct {
	Storage     storage.Client
	Vault       FileRegistrar
	Concurrency int
}

// Upload stores every item and returns the results in input order. With
// addToVault set, only files the storage network did not already hold are
// registered, so repeating an upload never adds a second vault record.
func (u *Uploader) Upload(ctx context.Context, items []UploadItem, addToVault bool) ([]model.UploadedFile, error) {
	if addToVault && u.Vault == nil {
		return nil, eris.New("api: add to vault requested without a vault")
	}

	uploaded := make([]model.UploadedFile, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(u.Concurrency, 1))
	for i, item := range items {
		g.Go(func() error {
			data, err := item.Read()
			if err != nil {
				return err
			}
			res, err := u.Storage.Upload(gctx, item.Name, data)
			if err != nil {
				return eris.Wrapf(err, "upload %s", item.Name)
			}
			out := model.UploadedFile{
				FileName:      item.Name,
				RootHash:      res.RootHash,
				AlreadyExists: res.AlreadyExists,
			}
			if addToVault && !res.AlreadyExists {
				tx, err := u.Vault.AddFile(gctx, res.RootHash, model.DefaultCategory, "", "")
				if err != nil {
					return eris.Wrapf(err, "register %s", item.Name)
				}
				out.VaultTx = tx
			}
			zap.L().Info("api: file uploaded",
				zap.String("file", item.Name),
				zap.String("root_hash", res.RootHash),
				zap.Bool("already_exists", res.AlreadyExists),
			)
			uploaded[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return uploaded, nil
}
