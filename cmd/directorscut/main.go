package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bobarin/directorscut/internal/app"
	"github.com/bobarin/directorscut/internal/config"
	"github.com/bobarin/directorscut/internal/db"
	"github.com/bobarin/directorscut/internal/logging"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	projectFlag string
	sceneFlag   string
)

var rootCmd = &cobra.Command{
	Use:   "directorscut",
	Short: "Plan and render music video storyboards from the command line",
	Long: `directorscut runs the storyboard planner and the scene render pipeline
in-process against the project database, without the API or the job queue.

Examples:
  directorscut plan --project 7d0c...
  directorscut render --project 7d0c...
  directorscut render --project 7d0c... --scene scene-3
  directorscut export --project 7d0c... > project.json`,
	SilenceUsage: true,
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Plan a storyboard for a project, replacing any existing scenes",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPipeline(cmd.Context(), func(ctx context.Context, p *app.Pipeline, id uuid.UUID) error {
			n, err := p.PlanProject(ctx, id)
			if err != nil {
				return err
			}
			fmt.Printf("Planned %d scenes\n", n)
			return printScenes(ctx, p, id)
		})
	},
}

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render one scene, or every scene not yet done",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPipeline(cmd.Context(), func(ctx context.Context, p *app.Pipeline, id uuid.UUID) error {
			if sceneFlag != "" {
				err := p.RenderScene(ctx, id, sceneFlag)
				if printErr := printScenes(ctx, p, id); printErr != nil {
					return printErr
				}
				return err
			}

			res, err := p.RenderProject(ctx, id)
			if err != nil {
				return err
			}
			fmt.Printf("Batch complete: %s\n", res)
			return printScenes(ctx, p, id)
		})
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Print the persisted project snapshot as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPipeline(cmd.Context(), func(ctx context.Context, p *app.Pipeline, id uuid.UUID) error {
			export, err := p.Store.Export(ctx, id)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(export)
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&projectFlag, "project", "p", "", "Project ID")
	rootCmd.MarkPersistentFlagRequired("project")
	renderCmd.Flags().StringVarP(&sceneFlag, "scene", "s", "", "Render only this scene ID")

	rootCmd.AddCommand(planCmd, renderCmd, exportCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func withPipeline(ctx context.Context, fn func(context.Context, *app.Pipeline, uuid.UUID) error) error {
	projectID, err := uuid.Parse(projectFlag)
	if err != nil {
		return fmt.Errorf("invalid --project: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.Init(cfg.LogLevel, "console")

	database, err := db.New(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer database.Close()
	if err := database.Migrate(ctx); err != nil {
		return err
	}

	pipeline, err := app.Build(ctx, cfg, database)
	if err != nil {
		return err
	}

	log.Debug().Str("project_id", projectID.String()).Msg("pipeline ready")
	return fn(ctx, pipeline, projectID)
}

func printScenes(ctx context.Context, p *app.Pipeline, id uuid.UUID) error {
	scenes, err := p.Store.ListScenes(ctx, id)
	if err != nil {
		return err
	}
	fmt.Println("--------------------------------------------")
	for _, s := range scenes {
		line := fmt.Sprintf("%-10s %6.1fs-%6.1fs  %-10s %s", s.ID, s.StartTime, s.EndTime, s.Status, s.Description)
		if s.ErrorMsg != nil {
			line += "  (" + *s.ErrorMsg + ")"
		}
		if s.VideoURL != nil {
			line += "\n           " + *s.VideoURL
		}
		fmt.Println(line)
	}
	return nil
}
