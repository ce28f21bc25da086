package main

import (
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/reliefgrid/reliefgrid/internal/model"
)

var seedFile string

// seedFixture is the YAML shape of a seed file.
type seedFixture struct {
	Resources []seedEntity `yaml:"resources"`
	Disasters []seedEntity `yaml:"disasters"`
}

type seedEntity struct {
	Name         string         `yaml:"name"`
	LocationName string         `yaml:"location_name"`
	Type         string         `yaml:"type"`
	Meta         model.Metadata `yaml:"meta"`
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load entities from a YAML fixture file",
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(seedFile)
		if err != nil {
			return eris.Wrapf(err, "read seed file %s", seedFile)
		}

		var fixture seedFixture
		if err := yaml.Unmarshal(raw, &fixture); err != nil {
			return eris.Wrap(err, "parse seed file")
		}

		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		created := 0
		for _, group := range []struct {
			kind    model.EntityKind
			entries []seedEntity
		}{
			{model.KindResource, fixture.Resources},
			{model.KindDisaster, fixture.Disasters},
		} {
			for _, entry := range group.entries {
				now := time.Now().UTC()
				entity := &model.Entity{
					ID:           uuid.New().String(),
					Kind:         group.kind,
					Name:         entry.Name,
					LocationName: entry.LocationName,
					Type:         entry.Type,
					Meta:         entry.Meta,
					CreatedAt:    now,
					UpdatedAt:    now,
				}

				coord, err := env.Resolver.Resolve(cmd.Context(), entry.LocationName)
				if err != nil {
					zap.L().Warn("seed: location unresolved",
						zap.String("name", entry.Name),
						zap.String("location", entry.LocationName),
						zap.Error(err),
					)
				} else {
					entity.Coord = coord
				}

				if err := env.Store.CreateEntity(cmd.Context(), entity); err != nil {
					return err
				}
				env.Bus.Publish(model.MutationEvent{
					Kind:   group.kind,
					Action: model.ActionCreate,
					Entity: entity,
				})
				created++
			}
		}

		zap.L().Info("seed complete", zap.Int("created", created))
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedFile, "file", "seed.yaml", "seed fixture file")
	rootCmd.AddCommand(seedCmd)
}
