package stages

import (
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/sipeed/emoclaw/cmd/emoclaw/internal"
	"github.com/sipeed/emoclaw/pkg/coordinator"
	"github.com/sipeed/emoclaw/pkg/emotion"
	"github.com/sipeed/emoclaw/pkg/providers"
	"github.com/sipeed/emoclaw/pkg/reflection"
)

func NewStagesCommand() *cobra.Command {
	var resourcesPath string

	cmd := &cobra.Command{
		Use:   "stages",
		Short: "Validate and list the reflection stages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if resourcesPath == "" {
				cfg, err := internal.LoadConfig(internal.ConfigPath(cmd))
				if err != nil {
					return fmt.Errorf("failed to load config: %w", err)
				}
				resourcesPath = cfg.ResolvedResourcesPath()
			}
			return stagesCmd(cmd.OutOrStdout(), resourcesPath)
		},
	}

	cmd.Flags().StringVarP(&resourcesPath, "resources", "r", "", "Resources file (defaults to resources_path from config)")

	return cmd
}

func stagesCmd(out io.Writer, path string) error {
	res, err := coordinator.LoadResources(path)
	if err != nil {
		return err
	}

	// Build runs the same ordinal checks as the coordinator; the pipeline
	// is never started.
	noop := providers.CompleterFunc(func(context.Context, []providers.Message) (string, error) { return "", nil })
	p, err := reflection.Build(res.ReflectionStages, reflection.Options{
		Gates:     emotion.NewProfileStore(0),
		Completer: noop,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%d reflection stages in %s\n", len(p.Stages()), path)
	for _, s := range p.Stages() {
		marker := ""
		if !slices.Contains(emotion.TrackedEmotions, s.Name) {
			marker = " (not a tracked emotion, gate is always closed)"
		}
		fmt.Fprintf(out, "  %d. %s%s\n     %s\n", s.ID, s.Name, marker, s.Goal)
	}
	return nil
}
