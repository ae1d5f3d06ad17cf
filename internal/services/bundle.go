package services

import (
	"context"

	"github.com/yungbote/benchwatch-backend/internal/artifacts"
	types "github.com/yungbote/benchwatch-backend/internal/domain"
	"github.com/yungbote/benchwatch-backend/internal/ml/autoencoder"
	"github.com/yungbote/benchwatch-backend/internal/ml/scaler"
	"github.com/yungbote/benchwatch-backend/internal/mlerr"
)

// loadModelBundle restores the scaler and network referenced by one
// registry row.
func loadModelBundle(ctx context.Context, store artifacts.Store, row *types.ModelVersion) (*scaler.Scaler, *autoencoder.Network, error) {
	scalerRaw, err := store.Read(ctx, row.ScalerPath)
	if err != nil {
		return nil, nil, err
	}
	sc, err := scaler.Unmarshal(scalerRaw)
	if err != nil {
		return nil, nil, mlerr.NewArtifactError("decode", row.ScalerPath, err)
	}
	modelRaw, err := store.Read(ctx, row.ModelPath)
	if err != nil {
		return nil, nil, err
	}
	net, err := autoencoder.Unmarshal(modelRaw)
	if err != nil {
		return nil, nil, mlerr.NewArtifactError("decode", row.ModelPath, err)
	}
	return sc, net, nil
}
