package indexer

import (
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/internal/indexer/minhash"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/config"
)

// OptionsFromConfig maps the lsh config section onto engine options.
func OptionsFromConfig(cfg config.LSHConfig, keepText bool) Options {
	return Options{
		Params: minhash.Params{
			NumHashes:   cfg.NumHashes,
			RowsPerBand: cfg.RowsPerBand,
			Prime:       cfg.Prime,
			BandPrime:   cfg.BandPrime,
			Seeds: minhash.Seeds{
				SignatureA: cfg.Seeds.SignatureA,
				SignatureB: cfg.Seeds.SignatureB,
				BandA:      cfg.Seeds.BandA,
				BandB:      cfg.Seeds.BandB,
			},
		},
		ShingleSize: cfg.ShingleSize,
		Workers:     cfg.Workers,
		KeepText:    keepText,
	}
}
