package main

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/dataminer/internal/model"
	"github.com/sells-group/dataminer/internal/store"
)

var seedFile string

// seedSource is one document source entry in the seed file.
type seedSource struct {
	SourceID           string   `yaml:"source_id"`
	SourceName         string   `yaml:"source_name"`
	CountryCode        string   `yaml:"country_code"`
	PrimaryLanguage    string   `yaml:"primary_language"`
	SecondaryLanguages []string `yaml:"secondary_languages"`
	LegalSystem        string   `yaml:"legal_system"`
	DocumentType       string   `yaml:"document_type"`
	Phase              int      `yaml:"phase"`
	DefaultProfile     bool     `yaml:"default_profile"`
}

type seedData struct {
	Sources []seedSource `yaml:"sources"`
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load document sources from a YAML seed file",
	Long:  "Creates any sources from the seed file that do not exist yet. Existing sources are left untouched, so reruns are safe.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if seedFile != "" {
			cfg.Seed.File = seedFile
		}
		if err := cfg.Validate("seed"); err != nil {
			return err
		}

		raw, err := os.ReadFile(cfg.Seed.File)
		if err != nil {
			return eris.Wrapf(err, "seed: read %s", cfg.Seed.File)
		}
		var data seedData
		if err := yaml.Unmarshal(raw, &data); err != nil {
			return eris.Wrapf(err, "seed: parse %s", cfg.Seed.File)
		}

		ctx := cmd.Context()
		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		created, skipped, err := applySeed(ctx, st, data)
		if err != nil {
			return err
		}
		zap.L().Info("seed complete", zap.Int("created", created), zap.Int("skipped", skipped))
		return nil
	},
}

// applySeed creates any seed sources not already present. Existing source
// ids are skipped, never modified.
func applySeed(ctx context.Context, st store.Store, data seedData) (created, skipped int, err error) {
	log := zap.L().With(zap.String("component", "seed"))
	for _, entry := range data.Sources {
		if entry.SourceID == "" || entry.SourceName == "" {
			return created, skipped, eris.Errorf("seed: entry missing source_id or source_name")
		}

		existing, err := st.GetSource(ctx, entry.SourceID)
		if err != nil {
			return created, skipped, err
		}
		if existing != nil {
			skipped++
			continue
		}

		src := model.Source{
			SourceID:           entry.SourceID,
			SourceName:         entry.SourceName,
			SecondaryLanguages: model.NormalizeLanguageCodes(entry.SecondaryLanguages),
			IsActive:           true,
			Phase:              entry.Phase,
		}
		if src.Phase == 0 {
			src.Phase = 1
		}
		if entry.CountryCode != "" {
			cc := model.NormalizeCountryCode(entry.CountryCode)
			src.CountryCode = &cc
		}
		if entry.PrimaryLanguage != "" {
			pl := model.NormalizeLanguageCode(entry.PrimaryLanguage)
			src.PrimaryLanguage = &pl
		}
		if entry.LegalSystem != "" {
			ls := entry.LegalSystem
			src.LegalSystem = &ls
		}
		if entry.DocumentType != "" {
			dt := entry.DocumentType
			src.DocumentType = &dt
		}

		if _, err := st.CreateSource(ctx, src); err != nil {
			return created, skipped, err
		}
		created++

		if entry.DefaultProfile {
			p := model.DefaultProfile()
			p.SourceID = src.SourceID
			p.ProfileName = "default"
			p.IsDefault = true
			if _, err := st.CreateProfile(ctx, p); err != nil {
				return created, skipped, err
			}
		}
		log.Info("seeded source", zap.String("source_id", entry.SourceID))
	}
	return created, skipped, nil
}

func init() {
	seedCmd.Flags().StringVar(&seedFile, "file", "", "seed file path (default from config)")
	rootCmd.AddCommand(seedCmd)
}
